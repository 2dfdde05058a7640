package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type mockResult struct {
	err error
}

func (m *mockResult) Consume(ctx context.Context) (neo4j.ResultSummary, error) {
	return nil, m.err
}

type mockRunner struct {
	failOn  int
	err     error
	cyphers []string
	params  []map[string]any
	closed  int
}

func (m *mockRunner) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	m.cyphers = append(m.cyphers, cypher)
	m.params = append(m.params, params)
	if m.err != nil && len(m.cyphers) == m.failOn {
		return nil, m.err
	}
	return &mockResult{}, nil
}

func (m *mockRunner) Close(ctx context.Context) error {
	m.closed++
	return nil
}

type row struct {
	ID string
}

func newTestRepo(r *mockRunner, opts ...Neo4jOption[row]) *Neo4jRepo[row] {
	repo := NewNeo4jRepo[row](nil, "UNWIND $rows AS row MERGE (n:Row {id: row.id})",
		func(v row) map[string]any { return map[string]any{"id": v.ID} }, opts...)
	repo.newSession = func(ctx context.Context) runner { return r }
	return repo
}

func rows(ids ...string) []row {
	out := make([]row, len(ids))
	for i, id := range ids {
		out[i] = row{ID: id}
	}
	return out
}

func TestNewNeo4jRepoDefaults(t *testing.T) {
	r := NewNeo4jRepo[row](nil, "RETURN 1", nil)
	if r.batch != DefaultBatchSize {
		t.Fatalf("batch = %d, want %d", r.batch, DefaultBatchSize)
	}
	r = NewNeo4jRepo[row](nil, "RETURN 1", nil, WithBatchSize[row](0), WithDatabase[row]("harvest"))
	if r.batch != DefaultBatchSize || r.database != "harvest" {
		t.Fatalf("options not applied: batch=%d database=%q", r.batch, r.database)
	}
}

func TestSaveBatches(t *testing.T) {
	m := &mockRunner{}
	n, err := newTestRepo(m, WithBatchSize[row](2)).Save(context.Background(), rows("a", "b", "c", "d", "e"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("written = %d, want 5", n)
	}
	if len(m.cyphers) != 3 {
		t.Fatalf("statements = %d, want 3", len(m.cyphers))
	}
	last := m.params[2]["rows"].([]map[string]any)
	if len(last) != 1 || last[0]["id"] != "e" {
		t.Fatalf("last batch = %v", last)
	}
	if m.closed != 1 {
		t.Fatalf("session closed %d times", m.closed)
	}
}

func TestSaveEmpty(t *testing.T) {
	m := &mockRunner{}
	n, err := newTestRepo(m).Save(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("Save(nil) = %d, %v", n, err)
	}
	if len(m.cyphers) != 0 {
		t.Fatal("no statement expected for an empty batch")
	}
}

func TestSavePartialFailure(t *testing.T) {
	m := &mockRunner{err: errors.New("db down"), failOn: 2}
	n, err := newTestRepo(m, WithBatchSize[row](2)).Save(context.Background(), rows("a", "b", "c", "d"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, m.err) {
		t.Fatalf("error %v does not wrap the driver error", err)
	}
	if n != 2 {
		t.Fatalf("written = %d, want 2", n)
	}
}

func TestExec(t *testing.T) {
	m := &mockRunner{}
	if err := newTestRepo(m).Exec(context.Background(), "CREATE CONSTRAINT x IF NOT EXISTS", nil); err != nil {
		t.Fatal(err)
	}
	if len(m.cyphers) != 1 || m.cyphers[0] != "CREATE CONSTRAINT x IF NOT EXISTS" {
		t.Fatalf("cyphers = %v", m.cyphers)
	}
}
