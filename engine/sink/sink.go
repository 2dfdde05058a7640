// Package sink persists the records of a finished run. The session runner
// hands every sink the deduplicated batch once, at the end of the run.
package sink

import (
	"context"
	"errors"

	"github.com/WessleyAI/threadharvest/engine/domain"
	"github.com/WessleyAI/threadharvest/pkg/fn"
)

// Sink receives the final records of a run.
type Sink interface {
	Write(ctx context.Context, recs []domain.CommentRecord) error
	Close() error
}

// Multi writes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Write(ctx context.Context, recs []domain.CommentRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, recs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dedup keeps the first record of every normalized body.
func Dedup(recs []domain.CommentRecord) []domain.CommentRecord {
	return fn.UniqueBy(recs, domain.CommentRecord.DedupKey)
}

// Memory collects records in memory. It backs tests and dry runs.
type Memory struct {
	Records []domain.CommentRecord
	Writes  int
	Err     error
}

func (m *Memory) Write(_ context.Context, recs []domain.CommentRecord) error {
	m.Writes++
	if m.Err != nil {
		return m.Err
	}
	m.Records = append(m.Records, recs...)
	return nil
}

func (m *Memory) Close() error { return nil }
