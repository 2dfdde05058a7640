package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WessleyAI/threadharvest/engine/browser"
	"github.com/WessleyAI/threadharvest/engine/classify"
	"github.com/WessleyAI/threadharvest/engine/domain"
	"github.com/WessleyAI/threadharvest/pkg/fn"
)

// errNoText is the skip reason for elements with nothing worth keeping.
var errNoText = errors.New("no meaningful text")

// candidate is a parsed comment element before dedup.
type candidate struct {
	author string
	body   string
}

// scanResult tallies one pass over the container.
type scanResult struct {
	accepted int
	skipped  int
	stopped  bool
}

// scanner turns the comment elements of a container into store entries.
type scanner struct {
	cfg     Config
	target  Target
	store   *Store
	stop    Stopper
	metrics *Metrics
	clock   func() time.Time
}

// scan reads every comment element under root. Elements that fail to parse
// are skipped and counted; the stop signal is checked before each element.
func (s *scanner) scan(ctx context.Context, page browser.Page, root browser.Element) (scanResult, error) {
	var res scanResult
	els, err := page.QueryWithin(ctx, root, s.cfg.Selectors.CommentSelector())
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if errors.Is(err, browser.ErrStaleElement) {
			return res, domain.ErrContainerDetached
		}
		return res, err
	}
	for _, el := range els {
		if s.stop.Stopped() {
			res.stopped = true
			break
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		c, err := s.parse(ctx, page, el).Unwrap()
		if err != nil {
			res.skipped++
			s.metrics.skip(skipReason(err))
			continue
		}
		rec := domain.NewCommentRecord(s.target.URL, s.target.ContentType, s.target.Caption, c.author, c.body, s.clock())
		if s.store.TryAdd(rec) {
			res.accepted++
		}
	}
	return res, nil
}

// parse extracts author and body from one comment element. An element with
// no label and no profile link keeps domain.UnknownAuthor. Body text is
// taken from the first meaningful text block, then a sticker label, then
// the element's whole text.
func (s *scanner) parse(ctx context.Context, page browser.Page, el browser.Element) fn.Result[candidate] {
	sel := s.cfg.Selectors
	label, err := page.Attribute(ctx, el, "aria-label")
	if err != nil {
		return elementErr[candidate](s.target.URL, err)
	}
	author := classify.ExtractAuthor(label.UnwrapOr(""), s.firstText(ctx, page, el, sel.ProfileLinks))

	blocks, err := page.QueryWithin(ctx, el, sel.BodyText)
	if err != nil {
		return elementErr[candidate](s.target.URL, err)
	}
	for _, b := range blocks {
		raw, err := page.Text(ctx, b)
		if err != nil {
			continue
		}
		body := classify.CleanBody(raw, author, s.texts(ctx, page, b, sel.BodyLinks))
		if classify.IsMeaningfulComment(body, author) {
			return fn.Ok(candidate{author: author, body: body})
		}
	}

	if sticker, err := page.QueryWithin(ctx, el, sel.Stickers); err == nil {
		if st, ok := fn.First(sticker).Get(); ok {
			l, _ := page.Attribute(ctx, st, "aria-label")
			return fn.Ok(candidate{author: author, body: classify.StickerBody(l.UnwrapOr(""))})
		}
	}

	raw, err := page.Text(ctx, el)
	if err != nil {
		return elementErr[candidate](s.target.URL, err)
	}
	body := classify.CleanBody(raw, author, s.texts(ctx, page, el, sel.BodyLinks))
	if !classify.IsMeaningfulComment(body, author) {
		return elementErr[candidate](s.target.URL, errNoText)
	}
	return fn.Ok(candidate{author: author, body: body})
}

func (s *scanner) firstText(ctx context.Context, page browser.Page, el browser.Element, selector string) string {
	if t := s.texts(ctx, page, el, selector); len(t) > 0 {
		return t[0]
	}
	return ""
}

// texts returns the non-empty texts of selector matches under el.
func (s *scanner) texts(ctx context.Context, page browser.Page, el browser.Element, selector string) []string {
	els, err := page.QueryWithin(ctx, el, selector)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range els {
		if t, err := page.Text(ctx, e); err == nil && domain.CollapseSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}

func elementErr[T any](url string, err error) fn.Result[T] {
	return fn.Err[T](&domain.HarvestError{
		Kind:    domain.KindElement,
		URL:     url,
		Op:      "parse comment",
		Wrapped: fmt.Errorf("%w: %w", domain.ErrElementParse, err),
	})
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, errNoText):
		return "no_text"
	case errors.Is(err, browser.ErrStaleElement):
		return "stale"
	default:
		return "error"
	}
}
