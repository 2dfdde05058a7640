// Package harvest runs the convergence loop that pulls comments out of a live
// page: locate the comment container, reveal hidden content, scan and
// classify what is visible, and stop once nothing new turns up.
package harvest

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/WessleyAI/threadharvest/engine/domain"
)

// Budget bounds the cycle loop for one content type.
type Budget struct {
	MaxCycles        int  `json:"max_cycles"`
	StreakThreshold  int  `json:"streak_threshold"`
	ExitOnEmptyFirst bool `json:"exit_on_empty_first"`
}

// Pause is a jittered delay drawn uniformly from [Min, Max].
type Pause struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
}

// Pick draws one delay.
func (p Pause) Pick() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + time.Duration(rand.Int63n(int64(p.Max-p.Min)))
}

// Selectors are the CSS selectors the engine reads the page with. Lists
// are tried in order.
type Selectors struct {
	Containers   map[domain.ContentType][]string `json:"containers"`
	Comments     []string                        `json:"comments"`
	Buttons      string                          `json:"buttons"`
	ProfileLinks string                          `json:"profile_links"`
	BodyText     string                          `json:"body_text"`
	BodyLinks    string                          `json:"body_links"`
	Stickers     string                          `json:"stickers"`
	ReelOpeners  []string                        `json:"reel_openers"`
	SeeMore      string                          `json:"see_more"`
	PostCaption  string                          `json:"post_caption"`
	VideoCaption string                          `json:"video_caption"`
}

// CommentSelector joins the comment selectors into one selector list.
func (s Selectors) CommentSelector() string { return strings.Join(s.Comments, ", ") }

// Config tunes the harvest loop.
type Config struct {
	Budgets map[domain.ContentType]Budget `json:"budgets"`

	// LocateWait is how long one container candidate is polled.
	LocateWait time.Duration `json:"locate_wait"`
	// LocateBudget bounds locating across all candidates.
	LocateBudget time.Duration `json:"locate_budget"`
	PollInterval time.Duration `json:"poll_interval"`
	// OpTimeout bounds a single capability call made by a reveal action.
	OpTimeout time.Duration `json:"op_timeout"`

	MaxExpandRounds int `json:"max_expand_rounds"`
	// ClickInterval and ClickBurst pace clicks through a token bucket.
	// A zero interval disables pacing.
	ClickInterval time.Duration `json:"click_interval"`
	ClickBurst    int           `json:"click_burst"`
	// ScrollRatio is the fraction of the viewport scrolled past the last
	// loaded comment.
	ScrollRatio float64 `json:"scroll_ratio"`
	// MinCaptionRunes is the shortest span accepted as a video caption.
	MinCaptionRunes int `json:"min_caption_runes"`

	AfterClick    Pause `json:"after_click"`
	AfterRound    Pause `json:"after_round"`
	AfterLoadMore Pause `json:"after_load_more"`
	AfterScroll   Pause `json:"after_scroll"`
	AfterReelOpen Pause `json:"after_reel_open"`

	Selectors Selectors `json:"selectors"`
}

// DefaultConfig returns the tuning the engine ships with.
func DefaultConfig() Config {
	return Config{
		Budgets: map[domain.ContentType]Budget{
			domain.Post:  {MaxCycles: 20, StreakThreshold: 3, ExitOnEmptyFirst: true},
			domain.Watch: {MaxCycles: 30, StreakThreshold: 3},
			domain.Reel:  {MaxCycles: 50, StreakThreshold: 4, ExitOnEmptyFirst: true},
		},
		LocateWait:      3 * time.Second,
		LocateBudget:    10 * time.Second,
		PollInterval:    250 * time.Millisecond,
		OpTimeout:       5 * time.Second,
		MaxExpandRounds: 10,
		ClickInterval:   150 * time.Millisecond,
		ClickBurst:      3,
		ScrollRatio:     0.8,
		MinCaptionRunes: 10,
		AfterClick:      Pause{Min: 200 * time.Millisecond, Max: 400 * time.Millisecond},
		AfterRound:      Pause{Min: 1500 * time.Millisecond, Max: 2 * time.Second},
		AfterLoadMore:   Pause{Min: 1500 * time.Millisecond, Max: 2500 * time.Millisecond},
		AfterScroll:     Pause{Min: time.Second, Max: 1500 * time.Millisecond},
		AfterReelOpen:   Pause{Min: 2 * time.Second, Max: 3 * time.Second},
		Selectors:       DefaultSelectors(),
	}
}

// DefaultSelectors matches the markup of the comment surfaces in English
// and Thai.
func DefaultSelectors() Selectors {
	return Selectors{
		Containers: map[domain.ContentType][]string{
			domain.Watch: {"div[role='complementary']", "div[role='main']"},
			domain.Reel:  {"div[role='complementary']", "div[role='dialog']", "div[role='main']"},
			domain.Post:  {"div[role='dialog']", "div[role='main']"},
		},
		Comments: []string{
			"div[role='article'][aria-label*='Comment']",
			"div[role='article'][aria-label*='Reply']",
			"div[role='article'][aria-label*='ความคิดเห็น']",
			"div[role='article'][aria-label*='ตอบกลับ']",
		},
		Buttons:      "[role='button']",
		ProfileLinks: "a[href*='/user/'], a[href*='profile.php'], a[role='link']",
		BodyText:     "div[dir='auto']",
		BodyLinks:    "a",
		Stickers:     "div[aria-label*='sticker'], div[aria-label*='Sticker'], div[aria-label*='สติกเกอร์']",
		ReelOpeners: []string{
			"div[aria-label*='Comment'][role='button']",
			"div[aria-label*='ความคิดเห็น'][role='button']",
		},
		SeeMore:      "div[role='button']",
		PostCaption:  "[data-ad-preview='message']",
		VideoCaption: "span[dir='auto']",
	}
}

// Budget returns the budget for ct. A missing entry takes the default
// budget and zero bounds take the default bounds.
func (c Config) Budget(ct domain.ContentType) Budget {
	d := DefaultConfig().Budgets[ct]
	b, ok := c.Budgets[ct]
	if !ok {
		return d
	}
	if b.MaxCycles <= 0 {
		b.MaxCycles = d.MaxCycles
	}
	if b.StreakThreshold <= 0 {
		b.StreakThreshold = d.StreakThreshold
	}
	return b
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
