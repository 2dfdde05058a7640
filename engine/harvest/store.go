package harvest

import (
	"github.com/WessleyAI/threadharvest/engine/domain"
)

// Store is the append-only, order-preserving set of records accepted for
// one URL. It is not safe for concurrent use.
type Store struct {
	records []domain.CommentRecord
	seen    map[string]struct{}
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{seen: make(map[string]struct{})}
}

// TryAdd accepts rec unless its normalized body is empty or already stored.
func (s *Store) TryAdd(rec domain.CommentRecord) bool {
	key := rec.DedupKey()
	if key == "" {
		return false
	}
	if _, dup := s.seen[key]; dup {
		return false
	}
	rec.Body = key
	s.seen[key] = struct{}{}
	s.records = append(s.records, rec)
	return true
}

// Records returns the accepted records in insertion order.
func (s *Store) Records() []domain.CommentRecord {
	return append([]domain.CommentRecord(nil), s.records...)
}

// Len is the number of accepted records.
func (s *Store) Len() int { return len(s.records) }
