package harvest

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/WessleyAI/threadharvest/engine/domain"
)

func TestCaptionPostExpandsSeeMore(t *testing.T) {
	p := newPage(t, postURL, panel("dialog",
		`<div data-ad-preview="message"><span>Swapped the alternator…</span><div role="button">See more</div></div>`,
		comment("Alice Smith", "Nice work"),
	))
	p.OnClick = func(doc *goquery.Document, el *goquery.Selection) {
		if strings.TrimSpace(el.Text()) == "See more" {
			doc.Find("[data-ad-preview='message']").SetHtml("<span>Swapped the alternator and the battery light is gone</span>")
		}
	}
	got := NewCaptionReader(testConfig(), nil).Read(context.Background(), p, domain.Post)
	if got != "Swapped the alternator and the battery light is gone" {
		t.Errorf("caption = %q", got)
	}
}

func TestCaptionVideoSkipsComments(t *testing.T) {
	p := newPage(t, watchURL, panel("complementary",
		`<span dir="auto">12 min</span>`,
		`<div role="article" aria-label="Comment by Alice Smith 1 hour ago"><span dir="auto">This comment text is long enough</span></div>`,
		`<span dir="auto">How I rebuilt the carburetor in one afternoon</span>`,
	))
	got := NewCaptionReader(testConfig(), nil).Read(context.Background(), p, domain.Watch)
	if got != "How I rebuilt the carburetor in one afternoon" {
		t.Errorf("caption = %q", got)
	}
}

func TestCaptionMissing(t *testing.T) {
	p := newPage(t, reelURL, panel("complementary", comment("Alice Smith", "Nice")))
	if got := NewCaptionReader(testConfig(), nil).Read(context.Background(), p, domain.Reel); got != domain.NoCaption {
		t.Errorf("caption = %q, want %q", got, domain.NoCaption)
	}
}
