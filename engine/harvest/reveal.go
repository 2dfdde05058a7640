package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/threadharvest/engine/browser"
	"github.com/WessleyAI/threadharvest/engine/domain"
)

var (
	replyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)view.*repl`),
		regexp.MustCompile(`(?i)replied`),
		regexp.MustCompile(`(?i)\d+\s*repl`),
		regexp.MustCompile(`ดู.*ตอบกลับ`),
		regexp.MustCompile(`ตอบกลับ\s*\d+`),
	}
	loadMorePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(view|see|load|show)\s+(\d+\s+)?(more|previous|older)\s+comments?`),
		regexp.MustCompile(`(?i)^more comments$`),
		regexp.MustCompile(`ดูความคิดเห็น(เพิ่มเติม|ก่อนหน้า|อื่นๆ)`),
	}
)

const maxActionTextRunes = 100

func isReplyControl(text string) bool {
	for _, re := range replyPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func isLoadMoreControl(text string) bool {
	if isReplyControl(text) {
		return false
	}
	for _, re := range loadMorePatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// scrollScript finds the scrollable region around the container, caches it
// on window, and moves it to just past the last loaded comment.
const scrollScript = `(sel, commentSel, ratio) => {
	const root = document.querySelector(sel);
	if (!root) return {detached: true};
	const scrollable = (el) => {
		if (!el || el.nodeType !== 1) return false;
		const s = getComputedStyle(el);
		return (s.overflowY === 'auto' || s.overflowY === 'scroll') && el.scrollHeight > el.clientHeight;
	};
	const page = document.scrollingElement || document.documentElement;
	let box = window.__harvestScroller;
	if (!box || !box.isConnected || !(box === page || box === root || root.contains(box) || box.contains(root))) {
		box = null;
		if (scrollable(root)) box = root;
		if (!box) box = Array.from(root.querySelectorAll('*')).find(scrollable) || null;
		for (let el = root.parentElement; !box && el; el = el.parentElement) {
			if (scrollable(el)) box = el;
		}
		if (!box) box = page;
		window.__harvestScroller = box;
	}
	const before = box.scrollTop;
	const view = box === page ? window.innerHeight : box.clientHeight;
	const max = Math.max(0, box.scrollHeight - view);
	const items = root.querySelectorAll(commentSel);
	const last = items[items.length - 1];
	let target;
	if (last) {
		const origin = box === page ? 0 : box.getBoundingClientRect().top;
		const top = last.getBoundingClientRect().top - origin + box.scrollTop;
		target = Math.min(top + view * ratio, max);
	} else {
		target = Math.min(before + Math.max(view, (max - before) * ratio), max);
	}
	box.scrollTop = target;
	const after = box.scrollTop;
	return {detached: false, before: before, after: after, max: max};
}`

type scrollResult struct {
	Detached bool    `json:"detached"`
	Before   float64 `json:"before"`
	After    float64 `json:"after"`
	Max      float64 `json:"max"`
}

// Revealer holds the reveal actions for one URL. Expanded reply controls
// are remembered so later cycles do not click them again.
type Revealer struct {
	cfg      Config
	log      *slog.Logger
	metrics  *Metrics
	limiter  *rate.Limiter
	sleep    func(context.Context, time.Duration) error
	expanded map[string]struct{}
}

// NewRevealer returns a Revealer with an empty expansion set.
func NewRevealer(cfg Config, log *slog.Logger, m *Metrics) *Revealer {
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Inf
	if cfg.ClickInterval > 0 {
		limit = rate.Every(cfg.ClickInterval)
	}
	burst := cfg.ClickBurst
	if burst <= 0 {
		burst = 1
	}
	return &Revealer{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		limiter:  rate.NewLimiter(limit, burst),
		sleep:    sleepCtx,
		expanded: make(map[string]struct{}),
	}
}

// Expanded is the number of distinct reply controls clicked so far.
func (r *Revealer) Expanded() int { return len(r.expanded) }

// ExpandReplies clicks reply-thread controls not clicked before, repeating
// for up to MaxExpandRounds rounds while new controls keep appearing. It
// returns the number of clicks. Only cancellation and a detached container
// are reported as errors.
func (r *Revealer) ExpandReplies(ctx context.Context, page browser.Page, c Container) (int, error) {
	total := 0
	for round := 0; round < r.cfg.MaxExpandRounds; round++ {
		root, err := resolve(ctx, page, c)
		if err != nil {
			return total, err
		}
		buttons, err := page.QueryWithin(ctx, root, r.cfg.Selectors.Buttons)
		if err != nil {
			return total, ctx.Err()
		}
		clicked := 0
		for _, b := range buttons {
			text, err := r.controlText(ctx, page, b)
			if err != nil || !isReplyControl(text) {
				continue
			}
			id := r.actionID(ctx, page, b, text)
			if _, done := r.expanded[id]; done {
				continue
			}
			if vis, err := page.IsVisible(ctx, b); err != nil || !vis {
				continue
			}
			r.expanded[id] = struct{}{}
			if err := r.click(ctx, page, b); err != nil {
				if ctx.Err() != nil {
					return total + clicked, ctx.Err()
				}
				r.log.Debug("harvest: expand click failed", "control", text, "error", err)
				continue
			}
			clicked++
			if err := r.sleep(ctx, r.cfg.AfterClick.Pick()); err != nil {
				return total + clicked, err
			}
		}
		total += clicked
		if clicked == 0 {
			break
		}
		r.log.Debug("harvest: expanded replies", "round", round+1, "clicked", clicked)
		if err := r.sleep(ctx, r.cfg.AfterRound.Pick()); err != nil {
			return total, err
		}
	}
	r.metrics.reveal("expand", total)
	return total, nil
}

// ClickLoadMore clicks at most one visible "more comments" control.
func (r *Revealer) ClickLoadMore(ctx context.Context, page browser.Page, c Container) (int, error) {
	root, err := resolve(ctx, page, c)
	if err != nil {
		return 0, err
	}
	buttons, err := page.QueryWithin(ctx, root, r.cfg.Selectors.Buttons)
	if err != nil {
		return 0, ctx.Err()
	}
	for _, b := range buttons {
		text, err := r.controlText(ctx, page, b)
		if err != nil || !isLoadMoreControl(text) {
			continue
		}
		if vis, err := page.IsVisible(ctx, b); err != nil || !vis {
			continue
		}
		if err := r.click(ctx, page, b); err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			r.log.Debug("harvest: load more click failed", "control", text, "error", err)
			return 0, nil
		}
		r.log.Debug("harvest: clicked load more", "control", text)
		r.metrics.reveal("load_more", 1)
		return 1, r.sleep(ctx, r.cfg.AfterLoadMore.Pick())
	}
	return 0, nil
}

// ScrollContainer advances the container's scrollable region toward the
// last loaded comment. It returns 1 when the offset moved.
func (r *Revealer) ScrollContainer(ctx context.Context, page browser.Page, c Container) (int, error) {
	opCtx, cancel := r.opContext(ctx)
	defer cancel()

	var res scrollResult
	err := page.Evaluate(opCtx, scrollScript, &res, c.Selector, r.cfg.Selectors.CommentSelector(), r.cfg.ScrollRatio)
	switch {
	case ctx.Err() != nil:
		return 0, ctx.Err()
	case errors.Is(err, browser.ErrUnsupported):
		return 0, nil
	case err != nil:
		r.log.Debug("harvest: scroll failed", "error", err)
		return 0, nil
	case res.Detached:
		return 0, domain.ErrContainerDetached
	case res.After <= res.Before:
		return 0, nil
	}
	r.log.Debug("harvest: scrolled", "from", res.Before, "to", res.After, "max", res.Max)
	r.metrics.reveal("scroll", 1)
	return 1, r.sleep(ctx, r.cfg.AfterScroll.Pick())
}

func (r *Revealer) controlText(ctx context.Context, page browser.Page, el browser.Element) (string, error) {
	text, err := page.Text(ctx, el)
	if err != nil {
		return "", err
	}
	return domain.CollapseSpace(text), nil
}

// actionID keys a control by its text and rounded vertical offset, so the
// same control re-rendered after a layout shift is not clicked twice.
func (r *Revealer) actionID(ctx context.Context, page browser.Page, el browser.Element, text string) string {
	if rs := []rune(text); len(rs) > maxActionTextRunes {
		text = string(rs[:maxActionTextRunes])
	}
	y := -1.0
	if box, err := page.Box(ctx, el); err == nil {
		if rect, ok := box.Get(); ok {
			y = math.Round(rect.Y)
		}
	}
	return fmt.Sprintf("%s@%.0f", strings.ToLower(text), y)
}

func (r *Revealer) click(ctx context.Context, page browser.Page, el browser.Element) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	opCtx, cancel := r.opContext(ctx)
	defer cancel()
	_ = page.ScrollIntoView(opCtx, el)
	return page.Click(opCtx, el)
}

func (r *Revealer) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.OpTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.OpTimeout)
}
