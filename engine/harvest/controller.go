package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/WessleyAI/threadharvest/engine/browser"
	"github.com/WessleyAI/threadharvest/engine/domain"
	"github.com/WessleyAI/threadharvest/engine/progress"
)

// State is the controller's position in its per-URL lifecycle.
type State int

const (
	StateInit State = iota
	StateLocating
	StateCycling
	StateConverged
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateLocating:
		return "locating"
	case StateCycling:
		return "cycling"
	case StateConverged:
		return "converged"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StopReason says why a URL reached a terminal state.
type StopReason string

const (
	ReasonStreak          StopReason = "streak"
	ReasonFirstCycleEmpty StopReason = "first_cycle_empty"
	ReasonBudget          StopReason = "budget"
	ReasonStopped         StopReason = "stopped"
	ReasonNoContainer     StopReason = "no_container"
	ReasonError           StopReason = "error"
)

// Stopper is the cooperative stop signal. It is polled between cycles and
// between comment elements.
type Stopper interface {
	Stopped() bool
}

// StopFunc adapts a function to Stopper.
type StopFunc func() bool

func (f StopFunc) Stopped() bool { return f() }

var neverStop = StopFunc(func() bool { return false })

// Target is one URL ready for harvesting.
type Target struct {
	URL         string
	ContentType domain.ContentType
	Caption     string
}

// Outcome is the result of one controller run. Records holds everything
// accepted before the terminal state, including on failure.
type Outcome struct {
	Target
	State    State
	Reason   StopReason
	Cycles   int
	Records  []domain.CommentRecord
	Skipped  int
	Expanded int
	Elapsed  time.Duration
	Err      error
}

// Deps holds the collaborators of a Controller. Every field is optional.
type Deps struct {
	Logger   *slog.Logger
	Metrics  *Metrics
	Reporter progress.Reporter
	Stopper  Stopper
}

// Controller drives the harvest loop. Per-URL state lives inside Run, so
// one Controller can serve URLs one after another.
type Controller struct {
	cfg     Config
	log     *slog.Logger
	metrics *Metrics
	report  progress.Reporter
	stop    Stopper
	locator *Locator
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// NewController wires a Controller from cfg and deps.
func NewController(cfg Config, deps Deps) *Controller {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	report := deps.Reporter
	if report == nil {
		report = progress.Discard
	}
	stop := deps.Stopper
	if stop == nil {
		stop = neverStop
	}
	return &Controller{
		cfg:     cfg,
		log:     log,
		metrics: deps.Metrics,
		report:  report,
		stop:    stop,
		locator: NewLocator(cfg, log),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// harvestState is owned by one Run and discarded with it.
type harvestState struct {
	store  *Store
	reveal *Revealer
	scan   *scanner
	streak int
}

func (c *Controller) newState(t Target) *harvestState {
	store := NewStore()
	rv := NewRevealer(c.cfg, c.log, c.metrics)
	rv.sleep = c.sleep
	return &harvestState{
		store:  store,
		reveal: rv,
		scan: &scanner{
			cfg:     c.cfg,
			target:  t,
			store:   store,
			stop:    c.stop,
			metrics: c.metrics,
			clock:   c.now,
		},
	}
}

// Run harvests one already-navigated page. Locating failures and
// mid-loop errors end in StateFailed with Err set to a URL-scoped
// *domain.HarvestError; the records accepted up to that point are kept.
func (c *Controller) Run(ctx context.Context, page browser.Page, t Target) (out Outcome) {
	start := c.now()
	out = Outcome{Target: t, State: StateInit}
	st := c.newState(t)
	log := c.log.With("url", t.URL, "type", t.ContentType)

	defer func() {
		out.Records = st.store.Records()
		out.Expanded = st.reveal.Expanded()
		out.Elapsed = c.now().Sub(start)
	}()

	out.State = StateLocating
	loc, err := c.locator.Locate(ctx, page, t.ContentType)
	if err != nil {
		c.fail(&out, "locate", err)
		return out
	}
	cont, ok := loc.Get()
	if !ok {
		out.State = StateFailed
		out.Reason = ReasonNoContainer
		out.Err = domain.NewURLError(t.URL, "locate", domain.ErrContainerNotFound)
		return out
	}

	out.State = StateCycling
	budget := c.cfg.Budget(t.ContentType)
	for cycle := 1; ; cycle++ {
		if c.stop.Stopped() {
			c.converge(&out, ReasonStopped)
			break
		}
		if cycle > budget.MaxCycles {
			c.converge(&out, ReasonBudget)
			break
		}

		res, err := c.cycle(ctx, page, cont, st, t, cycle)
		out.Cycles = cycle
		out.Skipped += res.skipped
		c.metrics.store(st.store.Len())
		c.report.Report(progress.Event{
			Kind:  progress.CycleDone,
			URL:   t.URL,
			Cycle: cycle,
			New:   res.accepted,
			Total: st.store.Len(),
		})
		if err != nil {
			c.fail(&out, "cycle", err)
			break
		}
		if res.stopped {
			c.converge(&out, ReasonStopped)
			break
		}

		log.Debug("harvest: cycle done", "cycle", cycle, "new", res.accepted, "total", st.store.Len(), "revealed", res.revealed)
		switch {
		case res.accepted > 0:
			st.streak = 0
		case res.revealed == 0:
			st.streak++
		}
		if cycle == 1 && res.accepted == 0 && budget.ExitOnEmptyFirst {
			c.converge(&out, ReasonFirstCycleEmpty)
			break
		}
		if st.streak >= budget.StreakThreshold {
			c.converge(&out, ReasonStreak)
			break
		}
	}
	log.Info("harvest: url done", "state", out.State, "reason", out.Reason, "cycles", out.Cycles, "records", st.store.Len())
	return out
}

func (c *Controller) converge(out *Outcome, reason StopReason) {
	out.State = StateConverged
	out.Reason = reason
}

func (c *Controller) fail(out *Outcome, op string, err error) {
	out.State = StateFailed
	out.Reason = ReasonError
	var he *domain.HarvestError
	if errors.As(err, &he) {
		out.Err = err
		return
	}
	out.Err = domain.NewURLError(out.URL, op, err)
}

// cycleResult tallies one cycle.
type cycleResult struct {
	accepted int
	skipped  int
	revealed int
	stopped  bool
}

// cycle runs expand, load more, scan and scroll, then one more expand and
// scan when the scroll moved.
func (c *Controller) cycle(ctx context.Context, page browser.Page, cont Container, st *harvestState, t Target, n int) (res cycleResult, err error) {
	ctx, span := otel.Tracer("engine/harvest").Start(ctx, "harvest.cycle")
	span.SetAttributes(attribute.Int("cycle", n), attribute.String("content_type", t.ContentType.String()))
	start := c.now()
	defer func() {
		c.metrics.cycle(t.ContentType, start)
		c.metrics.accept(t.ContentType, res.accepted)
		span.SetAttributes(attribute.Int("accepted", res.accepted), attribute.Int("revealed", res.revealed))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	scan := func() error {
		root, err := resolve(ctx, page, cont)
		if err != nil {
			return err
		}
		sr, err := st.scan.scan(ctx, page, root)
		res.accepted += sr.accepted
		res.skipped += sr.skipped
		res.stopped = res.stopped || sr.stopped
		return err
	}

	expanded, err := st.reveal.ExpandReplies(ctx, page, cont)
	res.revealed += expanded
	if err != nil {
		return res, err
	}
	more, err := st.reveal.ClickLoadMore(ctx, page, cont)
	res.revealed += more
	if err != nil {
		return res, err
	}
	if err := scan(); err != nil || res.stopped {
		return res, err
	}

	scrolled, err := st.reveal.ScrollContainer(ctx, page, cont)
	res.revealed += scrolled
	if err != nil || scrolled == 0 || c.stop.Stopped() {
		return res, err
	}
	expanded, err = st.reveal.ExpandReplies(ctx, page, cont)
	res.revealed += expanded
	if err != nil {
		return res, err
	}
	return res, scan()
}
