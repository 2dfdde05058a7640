package harvest

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/WessleyAI/threadharvest/engine/browser"
	"github.com/WessleyAI/threadharvest/engine/classify"
	"github.com/WessleyAI/threadharvest/engine/domain"
	"github.com/WessleyAI/threadharvest/pkg/fn"
)

var (
	seeMorePattern = regexp.MustCompile(`(?i)^(see more|ดูเพิ่มเติม)$`)
	seeMoreSuffix  = regexp.MustCompile(`(?i)(…|\.\.\.)?\s*(see more|see less|ดูเพิ่มเติม|ดูน้อยลง)$`)
	captionNoise   = regexp.MustCompile(`(?i)(comment by|reply by|replied|explore more|latest videos|^comments$)`)
)

// CaptionReader reads the caption of the post or video a thread hangs off.
type CaptionReader struct {
	cfg   Config
	log   *slog.Logger
	sleep func(context.Context, time.Duration) error
}

// NewCaptionReader returns a CaptionReader for cfg's selectors.
func NewCaptionReader(cfg Config, log *slog.Logger) *CaptionReader {
	if log == nil {
		log = slog.Default()
	}
	return &CaptionReader{cfg: cfg, log: log, sleep: sleepCtx}
}

// Read expands a truncated caption and returns its text, or
// domain.NoCaption. Posts read the message block; other types take the
// first long text span outside the comments.
func (r *CaptionReader) Read(ctx context.Context, page browser.Page, ct domain.ContentType) string {
	sel := r.cfg.Selectors
	scope := r.scope(ctx, page, ct)
	inComments := r.commentSpans(ctx, page, scope)

	r.expand(ctx, page, scope, inComments)

	if ct == domain.Post {
		if els, err := query(ctx, page, scope, sel.PostCaption); err == nil {
			for _, el := range els {
				if t := r.text(ctx, page, el); t != "" {
					return t
				}
			}
		}
	}
	spans, err := query(ctx, page, scope, sel.VideoCaption)
	if err != nil {
		return domain.NoCaption
	}
	for _, el := range spans {
		if _, skip := inComments[el.ID]; skip {
			continue
		}
		t := r.text(ctx, page, el)
		if utf8.RuneCountInString(t) < r.cfg.MinCaptionRunes || captionNoise.MatchString(t) || classify.IsTimestamp(t) {
			continue
		}
		return t
	}
	return domain.NoCaption
}

// scope is the first container candidate present on the page.
func (r *CaptionReader) scope(ctx context.Context, page browser.Page, ct domain.ContentType) fn.Option[browser.Element] {
	for _, sel := range r.cfg.Selectors.Containers[ct] {
		if el, err := page.Query(ctx, sel); err == nil && el.IsSome() {
			return el
		}
	}
	return fn.None[browser.Element]()
}

// commentSpans collects the ids of caption-like spans that sit inside
// comments so they are never mistaken for the caption.
func (r *CaptionReader) commentSpans(ctx context.Context, page browser.Page, scope fn.Option[browser.Element]) map[int64]struct{} {
	out := make(map[int64]struct{})
	comments, err := query(ctx, page, scope, r.cfg.Selectors.CommentSelector())
	if err != nil {
		return out
	}
	for _, c := range comments {
		for _, sub := range []string{r.cfg.Selectors.VideoCaption, r.cfg.Selectors.SeeMore} {
			els, err := page.QueryWithin(ctx, c, sub)
			if err != nil {
				continue
			}
			for _, el := range els {
				out[el.ID] = struct{}{}
			}
		}
	}
	return out
}

func (r *CaptionReader) expand(ctx context.Context, page browser.Page, scope fn.Option[browser.Element], skip map[int64]struct{}) {
	buttons, err := query(ctx, page, scope, r.cfg.Selectors.SeeMore)
	if err != nil {
		return
	}
	for _, b := range buttons {
		if _, ok := skip[b.ID]; ok {
			continue
		}
		text, err := page.Text(ctx, b)
		if err != nil || !seeMorePattern.MatchString(domain.CollapseSpace(text)) {
			continue
		}
		if vis, err := page.IsVisible(ctx, b); err != nil || !vis {
			continue
		}
		if err := page.Click(ctx, b); err != nil {
			r.log.Debug("harvest: see more click failed", "error", err)
			return
		}
		_ = r.sleep(ctx, r.cfg.AfterClick.Pick())
		return
	}
}

func (r *CaptionReader) text(ctx context.Context, page browser.Page, el browser.Element) string {
	t, err := page.Text(ctx, el)
	if err != nil {
		return ""
	}
	t = strings.TrimSpace(seeMoreSuffix.ReplaceAllString(domain.CollapseSpace(t), ""))
	return t
}

func query(ctx context.Context, page browser.Page, scope fn.Option[browser.Element], sel string) ([]browser.Element, error) {
	if root, ok := scope.Get(); ok {
		return page.QueryWithin(ctx, root, sel)
	}
	return page.QueryAll(ctx, sel)
}
