// Package repo holds the write-side repository abstraction used by the
// persistent sinks.
package repo

import "context"

// Writer persists a batch of entities and reports how many were written.
type Writer[T any] interface {
	Save(ctx context.Context, items []T) (int, error)
}
