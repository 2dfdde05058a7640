// Package snapshot implements the browser capability over saved HTML with
// goquery. It has no layout engine and runs no scripts; hooks let callers
// simulate the page reacting to clicks and evaluations.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/WessleyAI/threadharvest/engine/browser"
	"github.com/WessleyAI/threadharvest/pkg/fn"
)

// ErrNoSnapshot is returned when navigating to a URL with no saved page.
var ErrNoSnapshot = errors.New("snapshot: no page saved for url")

var errClosed = errors.New("snapshot: page closed")

// BlankURL always loads, as in a real browser.
const BlankURL = "about:blank"

// Page is a document parsed from saved HTML.
type Page struct {
	// OnClick runs after el is clicked and may mutate doc.
	OnClick func(doc *goquery.Document, el *goquery.Selection)
	// OnEvaluate answers Evaluate calls. Without it Evaluate returns
	// browser.ErrUnsupported.
	OnEvaluate func(doc *goquery.Document, script string, args []any) (any, error)

	mu        sync.Mutex
	pages     map[string]string
	redirects map[string]string
	url       string
	doc       *goquery.Document
	ids       map[*html.Node]int64
	nodes     map[int64]*html.Node
	clicks    []string
	closed    bool
}

var _ browser.Page = (*Page)(nil)

// NewPage returns a Page that can navigate to any URL in pages.
func NewPage(pages map[string]string) *Page {
	return &Page{pages: pages}
}

// FromHTML returns a Page already showing doc at url.
func FromHTML(url, doc string) (*Page, error) {
	p := NewPage(map[string]string{url: doc})
	if err := p.Navigate(context.Background(), url); err != nil {
		return nil, err
	}
	return p, nil
}

// Document exposes the parsed document for inspection.
func (p *Page) Document() *goquery.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

// Clicks returns the text of every clicked element in order.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errClosed
	}
	final := url
	if to, ok := p.redirects[url]; ok {
		final = to
	}
	src, ok := p.pages[final]
	if final == BlankURL {
		src, ok = "<html><head></head><body></body></html>", true
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSnapshot, final)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return fmt.Errorf("parse snapshot %s: %w", final, err)
	}
	p.url = final
	p.doc = doc
	p.ids = make(map[*html.Node]int64)
	p.nodes = make(map[int64]*html.Node)
	return nil
}

func (p *Page) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

// ready must be called with mu held.
func (p *Page) ready() error {
	if p.closed {
		return errClosed
	}
	if p.doc == nil {
		return errors.New("snapshot: no document loaded")
	}
	return nil
}

func (p *Page) handles(sel *goquery.Selection) []browser.Element {
	out := make([]browser.Element, 0, sel.Length())
	for _, n := range sel.Nodes {
		id, ok := p.ids[n]
		if !ok {
			id = int64(len(p.ids) + 1)
			p.ids[n] = id
			p.nodes[id] = n
		}
		out = append(out, browser.Element{ID: id})
	}
	return out
}

// selection resolves el, failing if its node left the document.
func (p *Page) selection(el browser.Element) (*goquery.Selection, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	n, ok := p.nodes[el.ID]
	if !ok || !attached(n, p.doc.Nodes[0]) {
		return nil, browser.ErrStaleElement
	}
	return p.doc.FindNodes(n), nil
}

func attached(n, root *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ready(); err != nil {
		return nil, err
	}
	return p.handles(p.doc.Find(selector)), nil
}

func (p *Page) QueryWithin(ctx context.Context, parent browser.Element, selector string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.selection(parent)
	if err != nil {
		return nil, err
	}
	return p.handles(s.Find(selector)), nil
}

func (p *Page) Query(ctx context.Context, selector string) (fn.Option[browser.Element], error) {
	els, err := p.QueryAll(ctx, selector)
	if err != nil {
		return fn.None[browser.Element](), err
	}
	return fn.First(els), nil
}

func (p *Page) IsVisible(ctx context.Context, el browser.Element) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.selection(el)
	if err != nil {
		return false, err
	}
	for n := s.Get(0); n != nil; n = n.Parent {
		if n.Type == html.ElementNode && hidden(n) {
			return false, nil
		}
	}
	return true, nil
}

func hidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

func (p *Page) Click(ctx context.Context, el browser.Element) error {
	p.mu.Lock()
	s, err := p.selection(el)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.clicks = append(p.clicks, strings.TrimSpace(s.Text()))
	hook, doc := p.OnClick, p.doc
	p.mu.Unlock()
	if hook != nil {
		hook(doc, s)
	}
	return nil
}

func (p *Page) Text(ctx context.Context, el browser.Element) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.selection(el)
	if err != nil {
		return "", err
	}
	return innerText(s.Get(0)), nil
}

func (p *Page) Attribute(ctx context.Context, el browser.Element, name string) (fn.Option[string], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.selection(el)
	if err != nil {
		return fn.None[string](), err
	}
	if v, ok := s.Attr(name); ok {
		return fn.Some(v), nil
	}
	return fn.None[string](), nil
}

func (p *Page) Evaluate(ctx context.Context, script string, res any, args ...any) error {
	p.mu.Lock()
	if err := p.ready(); err != nil {
		p.mu.Unlock()
		return err
	}
	hook, doc := p.OnEvaluate, p.doc
	p.mu.Unlock()
	if hook == nil {
		return browser.ErrUnsupported
	}
	v, err := hook(doc, script, args)
	if err != nil || res == nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode evaluate result: %w", err)
	}
	return json.Unmarshal(b, res)
}

func (p *Page) ScrollIntoView(ctx context.Context, el browser.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.selection(el)
	return err
}

// Box reports the element's position in document order as its Y offset.
// Snapshots have no layout, but document order is stable across re-queries.
func (p *Page) Box(ctx context.Context, el browser.Element) (fn.Option[browser.Rect], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.selection(el)
	if err != nil {
		return fn.None[browser.Rect](), err
	}
	target := s.Get(0)
	order := 0
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n == target {
			return true
		}
		if n.Type == html.ElementNode {
			order++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(p.doc.Nodes[0])
	return fn.Some(browser.Rect{Y: float64(order)}), nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ready(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, p.doc.Nodes[0]); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
