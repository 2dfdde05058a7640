package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/WessleyAI/threadharvest/engine/browser"
	"github.com/WessleyAI/threadharvest/engine/domain"
	"github.com/WessleyAI/threadharvest/pkg/fn"
)

// Container names the one DOM subtree holding a URL's comment thread. It
// is resolved once per URL. Selector is pinned to the located node when the
// backend can run scripts; node is that element's handle, zero when unknown.
type Container struct {
	Selector string
	node     int64
}

func (c Container) String() string { return c.Selector }

// pinAttr marks the container node chosen by the locator.
const pinAttr = "data-harvest-container"

// pinScript tags the idx-th match of sel with pinAttr=token.
const pinScript = `(sel, idx, attr, token) => {
	const el = document.querySelectorAll(sel)[idx];
	if (!el) return false;
	el.setAttribute(attr, token);
	return true;
}`

var pinSeq atomic.Int64

// Locator finds the comment container for a content type.
type Locator struct {
	cfg   Config
	log   *slog.Logger
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewLocator returns a Locator using cfg's candidates and wait budgets.
func NewLocator(cfg Config, log *slog.Logger) *Locator {
	if log == nil {
		log = slog.Default()
	}
	return &Locator{cfg: cfg, log: log, now: time.Now, sleep: sleepCtx}
}

// Locate tries each candidate for ct in order, polling each for at most
// LocateWait, and returns the first that exists and is visible. An empty
// Option means nothing resolved within LocateBudget. The error is non-nil
// only when ctx ends.
func (l *Locator) Locate(ctx context.Context, page browser.Page, ct domain.ContentType) (fn.Option[Container], error) {
	ctx, span := otel.Tracer("engine/harvest").Start(ctx, "harvest.locate")
	defer span.End()
	span.SetAttributes(attribute.String("content_type", ct.String()))

	if ct == domain.Reel {
		l.openReelComments(ctx, page)
	}

	deadline := l.now().Add(l.cfg.LocateBudget)
	for _, sel := range l.cfg.Selectors.Containers[ct] {
		wait := l.now().Add(l.cfg.LocateWait)
		if wait.After(deadline) {
			wait = deadline
		}
		for {
			c, ok, err := l.check(ctx, page, sel)
			if err != nil {
				return fn.None[Container](), err
			}
			if ok {
				span.SetAttributes(attribute.String("container", c.Selector))
				l.log.Debug("harvest: container located", "selector", sel, "container", c.Selector)
				return fn.Some(c), nil
			}
			if !l.now().Before(wait) {
				break
			}
			if err := l.sleep(ctx, l.cfg.PollInterval); err != nil {
				return fn.None[Container](), err
			}
		}
		if !l.now().Before(deadline) {
			break
		}
	}
	l.log.Info("harvest: no comment container", "type", ct)
	return fn.None[Container](), nil
}

// check reports whether sel currently has a visible match. Capability
// errors other than cancellation count as "not yet".
func (l *Locator) check(ctx context.Context, page browser.Page, sel string) (Container, bool, error) {
	els, err := page.QueryAll(ctx, sel)
	if err != nil {
		if ctx.Err() != nil {
			return Container{}, false, ctx.Err()
		}
		l.log.Debug("harvest: candidate check failed", "selector", sel, "error", err)
		return Container{}, false, nil
	}
	for i, el := range els {
		vis, err := page.IsVisible(ctx, el)
		if err != nil || !vis {
			continue
		}
		return l.pin(ctx, page, sel, i, el), true, nil
	}
	return Container{}, false, ctx.Err()
}

// pin tags the chosen match so the selector names that node and no other.
// Backends that cannot run scripts keep the raw selector; the node handle
// still ties the container to the element found here.
func (l *Locator) pin(ctx context.Context, page browser.Page, sel string, idx int, el browser.Element) Container {
	token := fmt.Sprintf("c%d", pinSeq.Add(1))
	var ok bool
	if err := page.Evaluate(ctx, pinScript, &ok, sel, idx, pinAttr, token); err != nil || !ok {
		if err != nil && !errors.Is(err, browser.ErrUnsupported) {
			l.log.Debug("harvest: pin failed", "selector", sel, "error", err)
		}
		return Container{Selector: sel, node: el.ID}
	}
	return Container{Selector: fmt.Sprintf("[%s='%s']", pinAttr, token), node: el.ID}
}

// openReelComments clicks the first visible comment button, which opens
// the side panel on reel pages. Failures are ignored: the panel may
// already be open.
func (l *Locator) openReelComments(ctx context.Context, page browser.Page) {
	for _, sel := range l.cfg.Selectors.ReelOpeners {
		els, err := page.QueryAll(ctx, sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			if vis, err := page.IsVisible(ctx, el); err != nil || !vis {
				continue
			}
			_ = page.ScrollIntoView(ctx, el)
			if err := page.Click(ctx, el); err != nil {
				l.log.Debug("harvest: reel opener click failed", "error", err)
				continue
			}
			l.log.Debug("harvest: opened reel comments", "selector", sel)
			_ = l.sleep(ctx, l.cfg.AfterReelOpen.Pick())
			return
		}
	}
}

// resolve returns the live container node or ErrContainerDetached. A
// selector that now matches a different node counts as detached: the
// thread is never switched mid-harvest.
func resolve(ctx context.Context, page browser.Page, c Container) (browser.Element, error) {
	opt, err := page.Query(ctx, c.Selector)
	if err != nil {
		if ctx.Err() != nil {
			return browser.Element{}, ctx.Err()
		}
		return browser.Element{}, fmt.Errorf("%w: %v", domain.ErrContainerDetached, err)
	}
	el, ok := opt.Get()
	if !ok || (c.node != 0 && el.ID != c.node) {
		return browser.Element{}, domain.ErrContainerDetached
	}
	return el, nil
}
