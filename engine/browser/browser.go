// Package browser is the narrow capability set the harvest engine drives a
// page through. Implementations live in subpackages: cdp drives a real
// Chrome over the DevTools protocol and snapshot replays saved HTML.
package browser

import (
	"context"
	"errors"
	"time"

	"github.com/WessleyAI/threadharvest/pkg/fn"
)

// ErrUnsupported is returned by backends that cannot perform an operation,
// such as script evaluation on a static snapshot.
var ErrUnsupported = errors.New("browser: operation not supported")

// ErrStaleElement is returned when an Element no longer refers to a node in
// the current document.
var ErrStaleElement = errors.New("browser: stale element")

// Element identifies one node on the Page that produced it.
type Element struct {
	ID int64
}

// Rect is an element's border box in page coordinates.
type Rect struct {
	X, Y, Width, Height float64
}

// SameSite is the normalized cookie SameSite attribute.
type SameSite string

const (
	SameSiteStrict SameSite = "Strict"
	SameSiteLax    SameSite = "Lax"
	SameSiteNone   SameSite = "None"
)

// Cookie is a normalized cookie ready to be installed in a browser.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	SameSite SameSite
	Secure   bool
	HTTPOnly bool
	Expires  time.Time
}

// Page is one isolated browsing surface.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Location returns the URL after redirects settled.
	Location(ctx context.Context) (string, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	QueryWithin(ctx context.Context, parent Element, selector string) ([]Element, error)
	Query(ctx context.Context, selector string) (fn.Option[Element], error)
	IsVisible(ctx context.Context, el Element) (bool, error)
	Click(ctx context.Context, el Element) error
	// Text returns the rendered text of el with block boundaries as newlines.
	Text(ctx context.Context, el Element) (string, error)
	Attribute(ctx context.Context, el Element, name string) (fn.Option[string], error)
	// Evaluate calls script, a JavaScript function expression, with args and
	// decodes its JSON result into res. res may be nil.
	Evaluate(ctx context.Context, script string, res any, args ...any) error
	ScrollIntoView(ctx context.Context, el Element) error
	Box(ctx context.Context, el Element) (fn.Option[Rect], error)
	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Browser allocates Pages that share one cookie jar.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	Close() error
}
