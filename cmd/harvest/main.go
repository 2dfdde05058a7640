// Command harvest collects the comments under a list of video, reel and
// post URLs and writes them to a CSV file, optionally publishing them to
// NATS and merging them into Neo4j.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/WessleyAI/threadharvest/engine/browser"
	"github.com/WessleyAI/threadharvest/engine/browser/cdp"
	"github.com/WessleyAI/threadharvest/engine/browser/snapshot"
	"github.com/WessleyAI/threadharvest/engine/harvest"
	"github.com/WessleyAI/threadharvest/engine/progress"
	"github.com/WessleyAI/threadharvest/engine/session"
	"github.com/WessleyAI/threadharvest/engine/sink"
	"github.com/WessleyAI/threadharvest/pkg/configutil"
	"github.com/WessleyAI/threadharvest/pkg/metrics"
	"github.com/WessleyAI/threadharvest/pkg/mid"
	"github.com/WessleyAI/threadharvest/pkg/natsutil"
	"github.com/WessleyAI/threadharvest/pkg/repo"
)

type flags struct {
	urls        string
	cookies     string
	config      string
	out         string
	natsURL     string
	natsSubject string
	graph       sink.GraphConfig
	headless    bool
	viewport    string
	chrome      string
	metricsAddr string
	snapshots   string
	replay      string
	verbose     bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("harvest", flag.ContinueOnError)
	fs.StringVar(&f.urls, "urls", "urls.txt", "file with one URL per line")
	fs.StringVar(&f.cookies, "cookies", "", "cookie export (JSON or JSON5); empty runs logged out")
	fs.StringVar(&f.config, "config", "", "JSON5 config file; <name>.local.json5 overrides it")
	fs.StringVar(&f.out, "out", "output", "directory for the CSV file")
	fs.StringVar(&f.natsURL, "nats", "", "NATS URL to publish records to (disabled if empty)")
	fs.StringVar(&f.natsSubject, "nats-subject", sink.DefaultSubject, "NATS subject")
	fs.StringVar(&f.graph.URI, "neo4j", "", "Neo4j URI to merge records into (disabled if empty)")
	fs.StringVar(&f.graph.User, "neo4j-user", "neo4j", "Neo4j user")
	fs.StringVar(&f.graph.Password, "neo4j-password", os.Getenv("NEO4J_PASSWORD"), "Neo4j password")
	fs.StringVar(&f.graph.Database, "neo4j-db", "", "Neo4j database (server default if empty)")
	fs.IntVar(&f.graph.BatchSize, "neo4j-batch", repo.DefaultBatchSize, "records merged per Neo4j statement")
	fs.BoolVar(&f.headless, "headless", true, "run Chrome without a window")
	fs.StringVar(&f.viewport, "viewport", "laptop", "window preset: laptop or desktop")
	fs.StringVar(&f.chrome, "chrome", "", "Chrome executable (default: autodetect)")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	fs.StringVar(&f.snapshots, "save-snapshots", "", "save each harvested page's HTML into this directory")
	fs.StringVar(&f.replay, "replay", "", "replay pages saved with -save-snapshots instead of launching Chrome")
	fs.BoolVar(&f.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if _, ok := cdp.Viewports[f.viewport]; !ok {
		return f, fmt.Errorf("unknown viewport %q", f.viewport)
	}
	return f, nil
}

func initSlog(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
	return logger
}

func loadConfig(path string) (session.Config, error) {
	if path == "" {
		return session.DefaultConfig(), nil
	}
	cfg, err := configutil.ReadConfig[session.Config](path)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return configutil.WithDefaults(cfg, session.DefaultConfig())
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	log := initSlog(f.verbose)

	cfg, err := loadConfig(f.config)
	if err != nil {
		log.Error("harvest: load config", "error", err)
		return 1
	}
	urls, err := session.LoadURLs(f.urls)
	if err != nil {
		log.Error("harvest: read urls", "error", err)
		return 1
	}
	if len(urls) == 0 {
		log.Error("harvest: no urls to process", "file", f.urls)
		return 1
	}
	var cookies []browser.Cookie
	if f.cookies != "" {
		if cookies, err = session.LoadCookies(f.cookies); err != nil {
			log.Error("harvest: read cookies", "error", err)
			return 1
		}
		log.Info("harvest: cookies loaded", "count", len(cookies))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rc := session.NewRunContext()
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		if _, ok := <-sigs; !ok {
			return
		}
		log.Warn("harvest: stopping after the current comment; interrupt again to abort")
		rc.Stop()
		if _, ok := <-sigs; ok {
			cancel()
		}
	}()

	reg := metrics.New()
	if f.metricsAddr != "" {
		metrics.ServeAsync(ctx, f.metricsAddr, mid.Chain(reg.Mux(),
			mid.Recover(log),
			mid.Logger(log),
			mid.ReadOnly(),
			mid.OTel("threadharvest"),
		))
		log.Info("harvest: metrics listening", "addr", f.metricsAddr)
	}

	br, err := openBrowser(ctx, f, cfg)
	if err != nil {
		log.Error("harvest: browser", "error", err)
		return 1
	}
	defer br.Close()

	csvSink := sink.NewCSV(f.out, log)
	sinks, err := openSinks(ctx, f, log, csvSink)
	if err != nil {
		log.Error("harvest: sinks", "error", err)
		return 1
	}
	defer sinks.Close()

	var recorder session.Recorder
	if f.snapshots != "" {
		rec, err := snapshot.NewRecorder(f.snapshots)
		if err != nil {
			log.Error("harvest: snapshot dir", "error", err)
			return 1
		}
		recorder = rec
	}

	events := progress.NewChannel(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events.Events() {
			if e.Kind != progress.CycleDone {
				fmt.Fprintf(os.Stdout, "%s  %s\n", e.Time.Format(time.Kitchen), e)
			}
		}
	}()

	var reporter progress.Reporter = events
	if f.verbose {
		reporter = progress.Multi{events, progress.Slog{Logger: log.With("component", "progress")}}
	}
	runner := session.NewRunner(cfg, session.Deps{
		Browser:  br,
		Sink:     sinks,
		Logger:   log,
		Reporter: progress.Stamped(reporter, time.Now),
		Metrics:  harvest.NewMetrics(reg),
		Recorder: recorder,
		Cookies:  cookies,
	})
	rep, runErr := runner.Run(ctx, rc, urls)
	events.Close()
	<-done
	if n := events.Dropped(); n > 0 {
		log.Debug("harvest: progress events dropped", "count", n)
	}

	renderSummary(os.Stdout, rep, csvSink.Path())
	if runErr != nil {
		log.Error("harvest: run failed", "error", runErr)
		return 1
	}
	return 0
}

func openBrowser(ctx context.Context, f flags, cfg session.Config) (browser.Browser, error) {
	if f.replay != "" {
		return snapshot.LoadDir(f.replay)
	}
	opts := cdp.DefaultOptions()
	opts.Headless = f.headless
	opts.Viewport = cdp.Viewports[f.viewport]
	opts.ExecPath = f.chrome
	opts.NavigationTimeout = cfg.NavigationTimeout
	opts.OperationTimeout = cfg.Harvest.OpTimeout
	return cdp.Launch(ctx, opts)
}

func openSinks(ctx context.Context, f flags, log *slog.Logger, csvSink *sink.CSV) (sink.Multi, error) {
	sinks := sink.Multi{csvSink}
	if f.natsURL != "" {
		nc, err := natsutil.Connect(f.natsURL, "threadharvest", log)
		if err != nil {
			return nil, fmt.Errorf("nats connect: %w", err)
		}
		sinks = append(sinks, sink.NewNATS(nc, log, sink.WithSubject(f.natsSubject), sink.WithOwnedConn()))
		log.Info("harvest: publishing to nats", "subject", f.natsSubject)
	}
	if f.graph.URI != "" {
		g, err := sink.NewGraph(ctx, f.graph, log)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, g)
		log.Info("harvest: merging into neo4j", "uri", f.graph.URI, "database", f.graph.Database)
	}
	return sinks, nil
}
