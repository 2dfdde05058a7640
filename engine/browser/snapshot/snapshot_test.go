package snapshot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/WessleyAI/threadharvest/engine/browser"
)

const thread = `<html><body>
<div role="main">
  <div role="article" aria-label="Comment by Ann Lee 2 hours ago">
    <a href="/user/1">Ann Lee</a>
    <div dir="auto">first <b>comment</b></div>
    <span>Like</span><span>Reply</span>
  </div>
  <div role="button" style="display: none">hidden control</div>
  <div role="button">View 2 replies</div>
  <script>var x = 1;</script>
</div>
</body></html>`

func TestQueryAndText(t *testing.T) {
	ctx := context.Background()
	p, err := FromHTML("https://x/watch/?v=1", thread)
	if err != nil {
		t.Fatal(err)
	}
	arts, err := p.QueryAll(ctx, "div[role='article'][aria-label*='Comment by']")
	if err != nil || len(arts) != 1 {
		t.Fatalf("articles = %v, %v", arts, err)
	}
	text, err := p.Text(ctx, arts[0])
	if err != nil {
		t.Fatal(err)
	}
	if text != "Ann Lee\nfirst comment\nLikeReply" {
		t.Errorf("Text = %q", text)
	}
	label, _ := p.Attribute(ctx, arts[0], "aria-label")
	if v, ok := label.Get(); !ok || !strings.HasPrefix(v, "Comment by") {
		t.Errorf("aria-label = %q, %v", v, ok)
	}
	missing, _ := p.Attribute(ctx, arts[0], "data-nope")
	if missing.IsSome() {
		t.Error("missing attribute should be None")
	}
	links, err := p.QueryWithin(ctx, arts[0], "a[href*='/user/']")
	if err != nil || len(links) != 1 {
		t.Fatalf("links = %v, %v", links, err)
	}
	again, _ := p.QueryAll(ctx, "div[role='article']")
	if again[0] != arts[0] {
		t.Error("re-querying the same node should give the same handle")
	}
}

func TestVisibility(t *testing.T) {
	ctx := context.Background()
	p, _ := FromHTML("u", thread)
	buttons, _ := p.QueryAll(ctx, "div[role='button']")
	if len(buttons) != 2 {
		t.Fatalf("buttons = %d", len(buttons))
	}
	if vis, _ := p.IsVisible(ctx, buttons[0]); vis {
		t.Error("display:none button should be hidden")
	}
	if vis, _ := p.IsVisible(ctx, buttons[1]); !vis {
		t.Error("plain button should be visible")
	}
	none, _ := p.Query(ctx, "div[role='dialog']")
	if none.IsSome() {
		t.Error("missing dialog should be None")
	}
}

func TestClickHookAndStaleness(t *testing.T) {
	ctx := context.Background()
	p, _ := FromHTML("u", thread)
	p.OnClick = func(doc *goquery.Document, el *goquery.Selection) {
		el.Remove()
		doc.Find("div[role='main']").AppendHtml(`<div role="article" aria-label="Reply by Bob to Ann Lee's comment"><div dir="auto">a reply</div></div>`)
	}
	btn, _ := p.Query(ctx, "div[role='button']:not([style])")
	el, ok := btn.Get()
	if !ok {
		t.Fatal("button not found")
	}
	if err := p.Click(ctx, el); err != nil {
		t.Fatal(err)
	}
	if got := p.Clicks(); len(got) != 1 || got[0] != "View 2 replies" {
		t.Errorf("Clicks = %v", got)
	}
	arts, _ := p.QueryAll(ctx, "div[role='article']")
	if len(arts) != 2 {
		t.Errorf("articles after click = %d, want 2", len(arts))
	}
	if _, err := p.Text(ctx, el); !errors.Is(err, browser.ErrStaleElement) {
		t.Errorf("removed element err = %v, want ErrStaleElement", err)
	}
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	p, _ := FromHTML("u", thread)
	if err := p.Evaluate(ctx, "() => 1", nil); !errors.Is(err, browser.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
	p.OnEvaluate = func(_ *goquery.Document, script string, args []any) (any, error) {
		return map[string]any{"scrolled": true, "arg": args[0]}, nil
	}
	var res struct {
		Scrolled bool   `json:"scrolled"`
		Arg      string `json:"arg"`
	}
	if err := p.Evaluate(ctx, "() => 1", &res, "sel"); err != nil {
		t.Fatal(err)
	}
	if !res.Scrolled || res.Arg != "sel" {
		t.Errorf("res = %+v", res)
	}
}

func TestBoxIsDocumentOrder(t *testing.T) {
	ctx := context.Background()
	p, _ := FromHTML("u", thread)
	buttons, _ := p.QueryAll(ctx, "div[role='button']")
	a, _ := p.Box(ctx, buttons[0])
	b, _ := p.Box(ctx, buttons[1])
	ra, _ := a.Get()
	rb, _ := b.Get()
	if ra.Y >= rb.Y {
		t.Errorf("Y order %v >= %v", ra.Y, rb.Y)
	}
}

func TestNavigateRedirectAndMissing(t *testing.T) {
	ctx := context.Background()
	b := New(map[string]string{"https://x/login": "<html><body>login</body></html>"})
	b.Redirect("https://x/posts/1", "https://x/login")
	pg, err := b.NewPage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := pg.Navigate(ctx, "https://x/posts/1"); err != nil {
		t.Fatal(err)
	}
	if loc, _ := pg.Location(ctx); loc != "https://x/login" {
		t.Errorf("Location = %q", loc)
	}
	if err := pg.Navigate(ctx, "https://x/other"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("err = %v, want ErrNoSnapshot", err)
	}
	if err := pg.Navigate(ctx, BlankURL); err != nil {
		t.Errorf("blank page: %v", err)
	}
	if b.Opened() != 1 {
		t.Errorf("Opened = %d", b.Opened())
	}
}

func TestRecorderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Save("https://x/reel/1", "<html><body>one</body></html>"); err != nil {
		t.Fatal(err)
	}
	if err := r.Save("https://x/reel/1", "<html><body>two</body></html>"); err != nil {
		t.Fatal(err)
	}
	if err := r.Save("https://x/posts/2", "<html><body>post</body></html>"); err != nil {
		t.Fatal(err)
	}

	b, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	pg, _ := b.NewPage(context.Background())
	if err := pg.Navigate(context.Background(), "https://x/reel/1"); err != nil {
		t.Fatal(err)
	}
	body, _ := pg.Query(context.Background(), "body")
	el, _ := body.Get()
	if text, _ := pg.Text(context.Background(), el); text != "two" {
		t.Errorf("replayed text = %q, want latest save", text)
	}
}
