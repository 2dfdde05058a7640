package harvest

import (
	"time"

	"github.com/WessleyAI/threadharvest/engine/domain"
	"github.com/WessleyAI/threadharvest/pkg/metrics"
)

// Metrics are the harvest counters. A nil *Metrics records nothing.
type Metrics struct {
	cycles   *metrics.CounterVec
	accepted *metrics.CounterVec
	skipped  *metrics.CounterVec
	clicks   *metrics.CounterVec
	urls     *metrics.CounterVec
	cycleDur *metrics.Histogram
	stored   *metrics.Gauge
}

// NewMetrics registers the harvest metrics on reg.
func NewMetrics(reg *metrics.Registry) *Metrics {
	return &Metrics{
		cycles:   reg.CounterVec("harvest_cycles_total", "type", "Harvest cycles run"),
		accepted: reg.CounterVec("harvest_comments_accepted_total", "type", "Comments accepted into the store"),
		skipped:  reg.CounterVec("harvest_elements_skipped_total", "reason", "Comment elements skipped while scanning"),
		clicks:   reg.CounterVec("harvest_reveal_clicks_total", "action", "Reveal actions that took effect"),
		urls:     reg.CounterVec("harvest_urls_total", "outcome", "URLs processed by outcome"),
		cycleDur: reg.Histogram("harvest_cycle_seconds", "Duration of one harvest cycle", nil),
		stored:   reg.Gauge("harvest_store_records", "Records held for the URL being harvested"),
	}
}

func (m *Metrics) cycle(ct domain.ContentType, start time.Time) {
	if m == nil {
		return
	}
	m.cycles.With(ct.String()).Inc()
	m.cycleDur.Since(start)
}

func (m *Metrics) accept(ct domain.ContentType, n int) {
	if m == nil || n == 0 {
		return
	}
	m.accepted.With(ct.String()).Add(int64(n))
}

func (m *Metrics) store(n int) {
	if m == nil {
		return
	}
	m.stored.Set(int64(n))
}

func (m *Metrics) skip(reason string) {
	if m == nil {
		return
	}
	m.skipped.With(reason).Inc()
}

func (m *Metrics) reveal(action string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.clicks.With(action).Add(int64(n))
}

// URL counts one finished URL under outcome.
func (m *Metrics) URL(outcome string) {
	if m == nil {
		return
	}
	m.urls.With(outcome).Inc()
}
