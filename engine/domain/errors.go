package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for harvest failures.
var (
	ErrContainerNotFound = errors.New("comment container not found")
	ErrContainerDetached = errors.New("comment container detached")
	ErrNavigation        = errors.New("navigation failed")
	ErrNotLoggedIn       = errors.New("session is not logged in")
	ErrHealthCheck       = errors.New("browser health check failed")
	ErrBrowserInit       = errors.New("browser could not be initialized")
	ErrElementParse      = errors.New("comment element could not be parsed")
)

// Kind is the recovery scope of a failure.
type Kind int

const (
	// KindElement failures skip one comment element.
	KindElement Kind = iota
	// KindURL failures abort one URL and the run continues.
	KindURL
	// KindSession failures abort the run after flushing accepted records.
	KindSession
)

func (k Kind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindURL:
		return "url"
	case KindSession:
		return "session"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// HarvestError wraps a sentinel with the scope and location it occurred at.
type HarvestError struct {
	Kind    Kind
	URL     string
	Op      string
	Wrapped error
}

func (e *HarvestError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Op, e.URL, e.Wrapped)
}

func (e *HarvestError) Unwrap() error { return e.Wrapped }

// NewURLError creates a per-URL HarvestError.
func NewURLError(url, op string, wrapped error) *HarvestError {
	return &HarvestError{Kind: KindURL, URL: url, Op: op, Wrapped: wrapped}
}

// NewSessionError creates a run-fatal HarvestError.
func NewSessionError(op string, wrapped error) *HarvestError {
	return &HarvestError{Kind: KindSession, Op: op, Wrapped: wrapped}
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	var he *HarvestError
	return errors.As(err, &he) && he.Kind == KindSession
}
