// Package progress carries harvest events to whatever front end is
// watching. Reporters never block the harvest loop.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Kind names an event.
type Kind string

const (
	RunStarted    Kind = "run_started"
	URLStarted    Kind = "url_started"
	URLClassified Kind = "url_classified"
	CycleDone     Kind = "cycle_done"
	URLFinished   Kind = "url_finished"
	URLFailed     Kind = "url_failed"
	RunFinished   Kind = "run_finished"
	Note          Kind = "note"
)

// Event is one progress update.
type Event struct {
	Time    time.Time
	Kind    Kind
	URL     string
	Message string
	// Cycle, New and Total are set on CycleDone and URLFinished.
	Cycle int
	New   int
	Total int
}

func (e Event) String() string {
	switch e.Kind {
	case CycleDone:
		return fmt.Sprintf("cycle %d: +%d (total %d)", e.Cycle, e.New, e.Total)
	case URLFinished:
		return fmt.Sprintf("finished %s: %d comments in %d cycles", e.URL, e.Total, e.Cycle)
	default:
		if e.URL == "" {
			return e.Message
		}
		return e.URL + ": " + e.Message
	}
}

// Reporter receives events.
type Reporter interface {
	Report(Event)
}

// Func adapts a function to Reporter.
type Func func(Event)

func (f Func) Report(e Event) { f(e) }

// Discard drops every event.
var Discard Reporter = Func(func(Event) {})

// Channel buffers events for a consumer goroutine, dropping events when
// the buffer is full.
type Channel struct {
	ch      chan Event
	dropped atomic.Int64
}

// NewChannel creates a Channel with the given buffer size.
func NewChannel(size int) *Channel {
	return &Channel{ch: make(chan Event, size)}
}

func (c *Channel) Report(e Event) {
	select {
	case c.ch <- e:
	default:
		c.dropped.Add(1)
	}
}

// Events is the receive side. It is closed by Close.
func (c *Channel) Events() <-chan Event { return c.ch }

// Dropped counts events lost to a full buffer.
func (c *Channel) Dropped() int64 { return c.dropped.Load() }

// Close ends the stream. Report must not be called afterwards.
func (c *Channel) Close() { close(c.ch) }

// Slog writes events to a structured logger.
type Slog struct {
	Logger *slog.Logger
}

func (s Slog) Report(e Event) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	level := slog.LevelInfo
	switch e.Kind {
	case CycleDone:
		level = slog.LevelDebug
	case URLFailed:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{slog.String("event", string(e.Kind))}
	if e.URL != "" {
		attrs = append(attrs, slog.String("url", e.URL))
	}
	if e.Kind == CycleDone || e.Kind == URLFinished {
		attrs = append(attrs, slog.Int("cycle", e.Cycle), slog.Int("new", e.New), slog.Int("total", e.Total))
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	l.LogAttrs(context.Background(), level, msg, attrs...)
}

// Multi fans an event out to several reporters.
type Multi []Reporter

func (m Multi) Report(e Event) {
	for _, r := range m {
		r.Report(e)
	}
}

// Stamped fills in Event.Time before forwarding.
func Stamped(r Reporter, now func() time.Time) Reporter {
	return Func(func(e Event) {
		if e.Time.IsZero() {
			e.Time = now()
		}
		r.Report(e)
	})
}
