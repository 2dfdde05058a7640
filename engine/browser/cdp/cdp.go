// Package cdp implements the browser capability on Chrome via chromedp.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/WessleyAI/threadharvest/engine/browser"
	"github.com/WessleyAI/threadharvest/pkg/fn"
)

// Viewport is a window size preset.
type Viewport struct {
	Width, Height int
}

// Viewports are the named window sizes accepted on the command line.
var Viewports = map[string]Viewport{
	"laptop":  {1280, 800},
	"desktop": {1920, 1080},
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Options configures the Chrome process.
type Options struct {
	Headless          bool
	UserAgent         string
	Viewport          Viewport
	ExecPath          string
	BlockImages       bool
	NavigationTimeout time.Duration
	OperationTimeout  time.Duration
	Logf              func(string, ...any)
}

// DefaultOptions returns headless defaults with image loading disabled.
func DefaultOptions() Options {
	return Options{
		Headless:          true,
		UserAgent:         defaultUserAgent,
		Viewport:          Viewports["laptop"],
		BlockImages:       true,
		NavigationTimeout: 60 * time.Second,
		OperationTimeout:  10 * time.Second,
	}
}

func allocatorOptions(o Options) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-component-update", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("no-service-autorun", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.Flag("use-mock-keychain", true),
		chromedp.UserAgent(o.UserAgent),
		chromedp.WindowSize(o.Viewport.Width, o.Viewport.Height),
	}
	if o.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if o.BlockImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return opts
}

// Browser is a running Chrome process.
type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	opts        Options
}

var _ browser.Browser = (*Browser)(nil)

// Launch starts Chrome. The process lives until Close or until ctx ends.
func Launch(ctx context.Context, o Options) (*Browser, error) {
	def := DefaultOptions()
	if o.UserAgent == "" {
		o.UserAgent = def.UserAgent
	}
	if o.Viewport.Width == 0 || o.Viewport.Height == 0 {
		o.Viewport = def.Viewport
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = def.NavigationTimeout
	}
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = def.OperationTimeout
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(o)...)
	var ctxOpts []chromedp.ContextOption
	if o.Logf != nil {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(o.Logf))
	}
	bctx, cancel := chromedp.NewContext(allocCtx, ctxOpts...)
	if err := chromedp.Run(bctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	return &Browser{ctx: bctx, cancel: cancel, allocCancel: allocCancel, opts: o}, nil
}

// NewPage opens a new tab. Tabs share the browser's cookie jar.
func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	tctx, cancel := chromedp.NewContext(b.ctx)
	// The first Run binds the tab to tctx; later runs use derived contexts.
	if err := chromedp.Run(tctx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &Page{
		ctx:        tctx,
		cancel:     cancel,
		navTimeout: b.opts.NavigationTimeout,
		opTimeout:  b.opts.OperationTimeout,
		nodes:      make(map[cdp.NodeID]*cdp.Node),
	}, nil
}

// SetCookies installs cookies into the shared jar.
func (b *Browser) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	return runWith(ctx, b.ctx, b.opts.OperationTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			p := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				WithSameSite(sameSite(c.SameSite))
			if !c.Expires.IsZero() {
				exp := cdp.TimeSinceEpoch(c.Expires)
				p = p.WithExpires(&exp)
			}
			if err := p.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

// Close shuts Chrome down.
func (b *Browser) Close() error {
	b.cancel()
	b.allocCancel()
	return nil
}

func sameSite(s browser.SameSite) network.CookieSameSite {
	switch s {
	case browser.SameSiteStrict:
		return network.CookieSameSiteStrict
	case browser.SameSiteNone:
		return network.CookieSameSiteNone
	default:
		return network.CookieSameSiteLax
	}
}

// runWith runs actions on the chromedp context target, bounded by timeout
// and aborted early if ctx ends.
func runWith(ctx, target context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(target, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Page is one Chrome tab.
type Page struct {
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	opTimeout  time.Duration

	mu    sync.Mutex
	nodes map[cdp.NodeID]*cdp.Node
}

var _ browser.Page = (*Page)(nil)

const (
	visibleJS = `function() {
	const r = this.getBoundingClientRect();
	const s = window.getComputedStyle(this);
	return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
}`
	textJS      = `function() { return this.innerText || this.textContent || ''; }`
	attributeJS = `function(name) { return {present: this.hasAttribute(name), value: this.getAttribute(name) || ''}; }`
	clickJS     = `function() { this.click(); }`
	scrollJS    = `function() { this.scrollIntoView({block: 'center'}); }`
	boxJS       = `function() {
	let y = 0, x = 0, e = this;
	while (e) { y += e.offsetTop; x += e.offsetLeft; e = e.offsetParent; }
	const r = this.getBoundingClientRect();
	return {x: x, y: y, width: r.width, height: r.height};
}`
)

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	return runWith(ctx, p.ctx, p.opTimeout, actions...)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	clear(p.nodes)
	p.mu.Unlock()
	return runWith(ctx, p.ctx, p.navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *Page) Location(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *Page) remember(nodes []*cdp.Node) []browser.Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]browser.Element, len(nodes))
	for i, n := range nodes {
		p.nodes[n.NodeID] = n
		out[i] = browser.Element{ID: int64(n.NodeID)}
	}
	return out
}

func (p *Page) node(el browser.Element) (*cdp.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[cdp.NodeID(el.ID)]
	if !ok {
		return nil, browser.ErrStaleElement
	}
	return n, nil
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return p.remember(nodes), nil
}

func (p *Page) QueryWithin(ctx context.Context, parent browser.Element, selector string) ([]browser.Element, error) {
	pn, err := p.node(parent)
	if err != nil {
		return nil, err
	}
	var nodes []*cdp.Node
	err = p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0), chromedp.FromNode(pn)))
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return p.remember(nodes), nil
}

func (p *Page) Query(ctx context.Context, selector string) (fn.Option[browser.Element], error) {
	els, err := p.QueryAll(ctx, selector)
	if err != nil {
		return fn.None[browser.Element](), err
	}
	return fn.First(els), nil
}

// call runs a JavaScript function with el bound to this.
func (p *Page) call(ctx context.Context, el browser.Element, js string, res any, args ...any) error {
	n, err := p.node(el)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return chromedp.CallFunctionOnNode(ctx, n, js, res, args...)
	}))
}

func (p *Page) IsVisible(ctx context.Context, el browser.Element) (bool, error) {
	var v bool
	err := p.call(ctx, el, visibleJS, &v)
	return v, err
}

func (p *Page) Click(ctx context.Context, el browser.Element) error {
	return p.call(ctx, el, clickJS, nil)
}

func (p *Page) Text(ctx context.Context, el browser.Element) (string, error) {
	var s string
	err := p.call(ctx, el, textJS, &s)
	return s, err
}

func (p *Page) Attribute(ctx context.Context, el browser.Element, name string) (fn.Option[string], error) {
	var a struct {
		Present bool   `json:"present"`
		Value   string `json:"value"`
	}
	if err := p.call(ctx, el, attributeJS, &a, name); err != nil {
		return fn.None[string](), err
	}
	if !a.Present {
		return fn.None[string](), nil
	}
	return fn.Some(a.Value), nil
}

func (p *Page) ScrollIntoView(ctx context.Context, el browser.Element) error {
	return p.call(ctx, el, scrollJS, nil)
}

func (p *Page) Box(ctx context.Context, el browser.Element) (fn.Option[browser.Rect], error) {
	var raw struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := p.call(ctx, el, boxJS, &raw); err != nil {
		return fn.None[browser.Rect](), err
	}
	return fn.Some(browser.Rect{X: raw.X, Y: raw.Y, Width: raw.Width, Height: raw.Height}), nil
}

func (p *Page) Evaluate(ctx context.Context, script string, res any, args ...any) error {
	expr, err := callExpression(script, args)
	if err != nil {
		return err
	}
	awaitPromise := func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}
	if res == nil {
		return p.run(ctx, chromedp.Evaluate(expr, nil, awaitPromise))
	}
	var raw []byte
	if err := p.run(ctx, chromedp.Evaluate(expr, &raw, awaitPromise)); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, res); err != nil {
		return fmt.Errorf("decode evaluate result: %w", err)
	}
	return nil
}

// callExpression renders `(script)(arg0, arg1, ...)` with JSON-encoded args.
func callExpression(script string, args []any) (string, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode evaluate arg %d: %w", i, err)
		}
		parts[i] = string(b)
	}
	return "(" + strings.TrimSpace(script) + ")(" + strings.Join(parts, ", ") + ")", nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	var s string
	err := p.run(ctx, chromedp.OuterHTML("html", &s, chromedp.ByQuery))
	return s, err
}

// Close closes the tab.
func (p *Page) Close() error {
	p.cancel()
	return nil
}
