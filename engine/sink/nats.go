package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/threadharvest/engine/domain"
	"github.com/WessleyAI/threadharvest/pkg/natsutil"
)

// DefaultSubject is where NATS publishes each record.
const DefaultSubject = "harvest.comments"

const flushTimeout = 10 * time.Second

// NATS publishes every record as a JSON message.
type NATS struct {
	nc      *nats.Conn
	subject string
	log     *slog.Logger
	owned   bool
}

// NATSOption configures a NATS sink.
type NATSOption func(*NATS)

// WithSubject overrides DefaultSubject.
func WithSubject(s string) NATSOption {
	return func(n *NATS) { n.subject = s }
}

// WithOwnedConn makes Close drain and close the connection.
func WithOwnedConn() NATSOption {
	return func(n *NATS) { n.owned = true }
}

// NewNATS wraps an established connection.
func NewNATS(nc *nats.Conn, log *slog.Logger, opts ...NATSOption) *NATS {
	if log == nil {
		log = slog.Default()
	}
	n := &NATS{nc: nc, subject: DefaultSubject, log: log}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Write publishes recs in order and flushes, so a nil return means the
// server has the messages.
func (n *NATS) Write(ctx context.Context, recs []domain.CommentRecord) error {
	for i, r := range recs {
		if err := natsutil.Publish(ctx, n.nc, n.subject, r); err != nil {
			return fmt.Errorf("sink: nats publish %d/%d: %w", i+1, len(recs), err)
		}
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := n.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("sink: nats flush: %w", err)
	}
	n.log.Info("sink: published", "subject", n.subject, "records", len(recs))
	return nil
}

func (n *NATS) Close() error {
	if !n.owned {
		return nil
	}
	return n.nc.Drain()
}
