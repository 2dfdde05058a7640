package progress

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestChannelNeverBlocks(t *testing.T) {
	c := NewChannel(2)
	for i := 0; i < 5; i++ {
		c.Report(Event{Kind: Note, Message: "x"})
	}
	if got := c.Dropped(); got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}
	c.Close()
	n := 0
	for range c.Events() {
		n++
	}
	if n != 2 {
		t.Errorf("received %d events, want 2", n)
	}
}

func TestSlogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := Slog{Logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	r.Report(Event{Kind: CycleDone, URL: "https://x/reel/1", Cycle: 2, New: 3, Total: 7})
	r.Report(Event{Kind: URLFailed, URL: "https://x/posts/1", Message: "container not found"})
	out := buf.String()
	for _, want := range []string{"level=DEBUG", "cycle=2", "new=3", "total=7", "level=WARN", "container not found"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestMultiAndStamped(t *testing.T) {
	var got []Event
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	r := Stamped(Multi{Func(func(e Event) { got = append(got, e) }), Discard}, func() time.Time { return fixed })
	r.Report(Event{Kind: RunStarted})
	if len(got) != 1 || !got[0].Time.Equal(fixed) {
		t.Fatalf("got %+v", got)
	}
}

func TestEventString(t *testing.T) {
	if s := (Event{Kind: CycleDone, Cycle: 1, New: 2, Total: 2}).String(); s != "cycle 1: +2 (total 2)" {
		t.Errorf("String = %q", s)
	}
	if s := (Event{Kind: Note, URL: "u", Message: "m"}).String(); s != "u: m" {
		t.Errorf("String = %q", s)
	}
}
