// Package session runs a list of URLs through the harvest engine one after
// another, isolating each URL on its own browser surface and persisting
// the combined records once at the end.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/WessleyAI/threadharvest/engine/browser"
	"github.com/WessleyAI/threadharvest/engine/classify"
	"github.com/WessleyAI/threadharvest/engine/domain"
	"github.com/WessleyAI/threadharvest/engine/harvest"
	"github.com/WessleyAI/threadharvest/engine/progress"
	"github.com/WessleyAI/threadharvest/engine/sink"
	"github.com/WessleyAI/threadharvest/pkg/fn"
	"github.com/WessleyAI/threadharvest/pkg/resilience"
)

const blankURL = "about:blank"

// RunContext identifies one run and carries its cooperative stop signal.
// Stop lets in-flight work finish; cancel the context to abort it.
type RunContext struct {
	ID      string
	Started time.Time
	stopped atomic.Bool
}

// NewRunContext starts a run with a fresh ID.
func NewRunContext() *RunContext {
	return &RunContext{ID: uuid.NewString(), Started: time.Now()}
}

// Stop asks the run to wind down at the next check.
func (rc *RunContext) Stop() { rc.stopped.Store(true) }

// Stopped reports whether Stop was called.
func (rc *RunContext) Stopped() bool { return rc.stopped.Load() }

// Config tunes the runner.
type Config struct {
	Harvest harvest.Config `json:"harvest"`

	NavigationTimeout time.Duration `json:"navigation_timeout"`
	// NavigationAttempts counts the first try. Only timeouts are retried.
	NavigationAttempts int           `json:"navigation_attempts"`
	NavigationBackoff  time.Duration `json:"navigation_backoff"`
	HealthCheckTimeout time.Duration `json:"health_check_timeout"`
	// FlushTimeout bounds the final sink write, which runs even after the
	// run context is canceled.
	FlushTimeout time.Duration `json:"flush_timeout"`

	SettleDelay   harvest.Pause `json:"settle_delay"`
	InterURLDelay harvest.Pause `json:"inter_url_delay"`

	// LoginMarkers are URL fragments that mean navigation landed on a
	// login wall.
	LoginMarkers []string               `json:"login_markers"`
	Breaker      resilience.BreakerOpts `json:"breaker"`
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Harvest:            harvest.DefaultConfig(),
		NavigationTimeout:  60 * time.Second,
		NavigationAttempts: 2,
		NavigationBackoff:  2 * time.Second,
		HealthCheckTimeout: 10 * time.Second,
		FlushTimeout:       30 * time.Second,
		SettleDelay:        harvest.Pause{Min: 3 * time.Second, Max: 4 * time.Second},
		InterURLDelay:      harvest.Pause{Min: 3 * time.Second, Max: 5 * time.Second},
		LoginMarkers:       []string{"/login", "login.php"},
		Breaker:            resilience.DefaultBreakerOpts,
	}
}

// Recorder saves the final HTML of each harvested page.
type Recorder interface {
	Save(url, doc string) error
}

// Deps holds the collaborators of a Runner. Browser is required.
type Deps struct {
	Browser  browser.Browser
	Sink     sink.Sink
	Logger   *slog.Logger
	Reporter progress.Reporter
	Metrics  *harvest.Metrics
	Recorder Recorder
	Cookies  []browser.Cookie
}

// Failure is one URL that did not complete.
type Failure struct {
	URL string
	Err error
}

// Report summarizes a run. Records are deduplicated across URLs, the
// first occurrence winning.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Records  []domain.CommentRecord
	Outcomes []harvest.Outcome
	Failures []Failure
	Stopped  bool
}

// Runner drives URLs through the harvest controller sequentially.
type Runner struct {
	cfg      Config
	deps     Deps
	log      *slog.Logger
	report   progress.Reporter
	breaker  *resilience.Breaker
	captions *harvest.CaptionReader
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// NewRunner wires a Runner.
func NewRunner(cfg Config, deps Deps) *Runner {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	report := deps.Reporter
	if report == nil {
		report = progress.Discard
	}
	bopts := cfg.Breaker
	bopts.OnStateChange = func(from, to resilience.State) {
		log.Warn("session: browser breaker", "from", from, "to", to)
	}
	return &Runner{
		cfg:      cfg,
		deps:     deps,
		log:      log,
		report:   report,
		breaker:  resilience.NewBreaker(bopts),
		captions: harvest.NewCaptionReader(cfg.Harvest, log),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Run harvests urls in order. Per-URL failures land in Report.Failures and
// the run continues. A fatal error, a canceled ctx or rc.Stop ends the
// run early; the records accepted so far are written to the sink in every
// case.
func (r *Runner) Run(ctx context.Context, rc *RunContext, urls []string) (Report, error) {
	rep := Report{RunID: rc.ID, Started: rc.Started}
	var all []domain.CommentRecord
	log := r.log.With("run", rc.ID)
	log.Info("session: run started", "urls", len(urls))
	r.report.Report(progress.Event{Kind: progress.RunStarted, Message: fmt.Sprintf("%d urls", len(urls))})

	finish := func(runErr error) (Report, error) {
		rep.Records = sink.Dedup(all)
		rep.Stopped = rc.Stopped()
		if err := r.flush(ctx, rep.Records); err != nil {
			runErr = errors.Join(runErr, err)
		}
		rep.Finished = r.now()
		log.Info("session: run finished",
			"records", len(rep.Records), "failures", len(rep.Failures),
			"stopped", rep.Stopped, "elapsed", rep.Finished.Sub(rep.Started))
		r.report.Report(progress.Event{
			Kind:    progress.RunFinished,
			Message: fmt.Sprintf("%d comments, %d failed urls", len(rep.Records), len(rep.Failures)),
			Total:   len(rep.Records),
		})
		return rep, runErr
	}

	if len(r.deps.Cookies) > 0 {
		if err := r.deps.Browser.SetCookies(ctx, r.deps.Cookies); err != nil {
			return finish(domain.NewSessionError("set cookies", fmt.Errorf("%w: %w", domain.ErrBrowserInit, err)))
		}
		r.report.Report(progress.Event{Kind: progress.Note, Message: fmt.Sprintf("%d cookies installed", len(r.deps.Cookies))})
	}

	ctrl := harvest.NewController(r.cfg.Harvest, harvest.Deps{
		Logger:   r.log,
		Metrics:  r.deps.Metrics,
		Reporter: r.report,
		Stopper:  rc,
	})

	for i, url := range urls {
		if rc.Stopped() {
			log.Info("session: stop requested", "remaining", len(urls)-i)
			r.report.Report(progress.Event{Kind: progress.Note, Message: fmt.Sprintf("stopped, %d urls skipped", len(urls)-i)})
			break
		}
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		out, err := r.harvestURL(ctx, ctrl, url)
		if o, ok := out.Get(); ok {
			rep.Outcomes = append(rep.Outcomes, o)
			all = append(all, o.Records...)
		}
		switch {
		case domain.IsFatal(err):
			r.deps.Metrics.URL("fatal")
			return finish(err)
		case err != nil && ctx.Err() != nil:
			return finish(ctx.Err())
		case err != nil:
			log.Warn("session: url failed", "url", url, "error", err)
			rep.Failures = append(rep.Failures, Failure{URL: url, Err: err})
			r.deps.Metrics.URL("failed")
			r.report.Report(progress.Event{Kind: progress.URLFailed, URL: url, Message: err.Error()})
		default:
			r.deps.Metrics.URL("ok")
		}

		if i < len(urls)-1 && !rc.Stopped() {
			if err := r.sleep(ctx, r.cfg.InterURLDelay.Pick()); err != nil {
				return finish(err)
			}
		}
	}
	return finish(nil)
}

// harvestURL runs one URL on a fresh page that is always released. The
// outcome is present whenever the controller ran.
func (r *Runner) harvestURL(ctx context.Context, ctrl *harvest.Controller, url string) (_ fn.Option[harvest.Outcome], err error) {
	ctx, span := otel.Tracer("engine/session").Start(ctx, "session.url",
		trace.WithAttributes(attribute.String("url", url)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	none := fn.None[harvest.Outcome]()
	r.report.Report(progress.Event{Kind: progress.URLStarted, URL: url})

	page, err := resilience.CallResult(r.breaker, ctx, r.openPage).Unwrap()
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return none, domain.NewSessionError("open page", fmt.Errorf("%w: %w", domain.ErrBrowserInit, err))
		}
		return none, domain.NewURLError(url, "open page", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			r.log.Debug("session: page close failed", "url", url, "error", cerr)
		}
	}()

	final, err := r.navigate(page)(ctx, url).Unwrap()
	if err != nil {
		return none, domain.NewURLError(url, "navigate", err)
	}
	ct := classify.ContentTypeOf(final)
	span.SetAttributes(attribute.String("content_type", ct.String()))
	r.report.Report(progress.Event{Kind: progress.URLClassified, URL: url, Message: ct.String()})
	if err := r.sleep(ctx, r.cfg.SettleDelay.Pick()); err != nil {
		return none, domain.NewURLError(url, "settle", err)
	}

	caption := r.captions.Read(ctx, page, ct)
	out := ctrl.Run(ctx, page, harvest.Target{URL: url, ContentType: ct, Caption: caption})
	r.record(ctx, page, url)

	if out.State == harvest.StateFailed {
		return fn.Some(out), out.Err
	}
	r.report.Report(progress.Event{Kind: progress.URLFinished, URL: url, Cycle: out.Cycles, Total: len(out.Records)})
	return fn.Some(out), nil
}

// openPage allocates a surface and proves it can load a blank document.
func (r *Runner) openPage(ctx context.Context) fn.Result[browser.Page] {
	res := fn.FromPair(r.deps.Browser.NewPage(ctx))
	page, err := res.Unwrap()
	if err != nil {
		return res
	}
	hctx, cancel := context.WithTimeout(ctx, r.cfg.HealthCheckTimeout)
	defer cancel()
	if err := page.Navigate(hctx, blankURL); err != nil {
		_ = page.Close()
		return fn.Err[browser.Page](fmt.Errorf("%w: %w", domain.ErrHealthCheck, err))
	}
	return fn.Ok(page)
}

// navigate loads a URL, retrying timeouts, and rejects login walls. The
// stage yields the URL the page settled on.
func (r *Runner) navigate(page browser.Page) fn.Stage[string, string] {
	load := fn.Stage[string, string](func(ctx context.Context, url string) fn.Result[string] {
		ctx, cancel := context.WithTimeout(ctx, r.cfg.NavigationTimeout)
		defer cancel()
		if err := page.Navigate(ctx, url); err != nil {
			return fn.Err[string](fmt.Errorf("%w: %w", domain.ErrNavigation, err))
		}
		loc, err := page.Location(ctx)
		if err != nil {
			return fn.Err[string](fmt.Errorf("%w: %w", domain.ErrNavigation, err))
		}
		return fn.Ok(loc)
	})
	retry := fn.RetryOpts{
		MaxAttempts: max(r.cfg.NavigationAttempts, 1),
		InitialWait: r.cfg.NavigationBackoff,
		MaxWait:     r.cfg.NavigationBackoff,
		ShouldRetry: func(err error) bool { return errors.Is(err, context.DeadlineExceeded) },
	}
	return fn.Then[string, string, string](
		fn.TracedStage("session.navigate", fn.RetryStage(retry, load)),
		r.checkLogin,
	)
}

func (r *Runner) checkLogin(_ context.Context, final string) fn.Result[string] {
	lower := strings.ToLower(final)
	for _, m := range r.cfg.LoginMarkers {
		if strings.Contains(lower, m) {
			return fn.Errf[string]("%w: redirected to %s", domain.ErrNotLoggedIn, final)
		}
	}
	return fn.Ok(final)
}

func (r *Runner) record(ctx context.Context, page browser.Page, url string) {
	if r.deps.Recorder == nil {
		return
	}
	doc, err := page.HTML(ctx)
	if err == nil {
		err = r.deps.Recorder.Save(url, doc)
	}
	if err != nil {
		r.log.Warn("session: snapshot not saved", "url", url, "error", err)
	}
}

// flush writes recs with a context that survives cancellation of ctx.
func (r *Runner) flush(ctx context.Context, recs []domain.CommentRecord) error {
	if r.deps.Sink == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.FlushTimeout)
	defer cancel()
	if err := r.deps.Sink.Write(ctx, recs); err != nil {
		return fmt.Errorf("session: write records: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
