package repo

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DefaultBatchSize is the number of rows sent per UNWIND statement.
const DefaultBatchSize = 200

// result is the minimal interface needed from a neo4j result.
type result interface {
	Consume(ctx context.Context) (neo4j.ResultSummary, error)
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Neo4jRepo writes entities in batches through a single UNWIND statement.
// The statement receives the converted rows as $rows.
type Neo4jRepo[T any] struct {
	driver     neo4j.DriverWithContext
	cypher     string
	toMap      func(T) map[string]any
	batch      int
	database   string
	newSession func(ctx context.Context) runner // for testing
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any] func(*Neo4jRepo[T])

// WithBatchSize sets the rows per statement (default DefaultBatchSize).
func WithBatchSize[T any](n int) Neo4jOption[T] {
	return func(r *Neo4jRepo[T]) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithDatabase selects a database other than the server default.
func WithDatabase[T any](name string) Neo4jOption[T] {
	return func(r *Neo4jRepo[T]) { r.database = name }
}

// NewNeo4jRepo creates a batch writer for cypher.
func NewNeo4jRepo[T any](driver neo4j.DriverWithContext, cypher string, toMap func(T) map[string]any, opts ...Neo4jOption[T]) *Neo4jRepo[T] {
	r := &Neo4jRepo[T]{
		driver: driver,
		cypher: cypher,
		toMap:  toMap,
		batch:  DefaultBatchSize,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Compile-time interface check.
var _ Writer[any] = (*Neo4jRepo[any])(nil)

// neo4jSessionAdapter adapts neo4j.SessionWithContext to the runner interface.
type neo4jSessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *neo4jSessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *neo4jSessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (r *Neo4jRepo[T]) session(ctx context.Context) runner {
	if r.newSession != nil {
		return r.newSession(ctx)
	}
	return &neo4jSessionAdapter{sess: r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: r.database,
	})}
}

// Exec runs a statement that takes no rows, such as a schema constraint.
func (r *Neo4jRepo[T]) Exec(ctx context.Context, cypher string, params map[string]any) error {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// Save writes items in batches. On error it returns the count of rows in
// the batches that completed.
func (r *Neo4jRepo[T]) Save(ctx context.Context, items []T) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	sess := r.session(ctx)
	defer sess.Close(ctx)

	written := 0
	for start := 0; start < len(items); start += r.batch {
		end := min(start+r.batch, len(items))
		rows := make([]map[string]any, 0, end-start)
		for _, it := range items[start:end] {
			rows = append(rows, r.toMap(it))
		}
		res, err := sess.Run(ctx, r.cypher, map[string]any{"rows": rows})
		if err != nil {
			return written, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return written, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		written += end - start
	}
	return written, nil
}
