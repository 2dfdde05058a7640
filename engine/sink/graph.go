package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/threadharvest/engine/domain"
	"github.com/WessleyAI/threadharvest/pkg/repo"
)

// mergeComments links each comment to its author and source. Comment ids
// are deterministic, so re-running a URL updates rather than duplicates.
const mergeComments = `UNWIND $rows AS row
MERGE (s:Source {url: row.url})
  ON CREATE SET s.content_type = row.content_type
SET s.caption = row.caption
MERGE (u:Commenter {name: row.author})
MERGE (c:Comment {id: row.id})
SET c.body = row.body, c.harvested_at = row.harvested_at
MERGE (u)-[:WROTE]->(c)
MERGE (c)-[:ON]->(s)`

var graphSchema = []string{
	`CREATE CONSTRAINT comment_id IF NOT EXISTS FOR (c:Comment) REQUIRE c.id IS UNIQUE`,
	`CREATE CONSTRAINT source_url IF NOT EXISTS FOR (s:Source) REQUIRE s.url IS UNIQUE`,
	`CREATE CONSTRAINT commenter_name IF NOT EXISTS FOR (u:Commenter) REQUIRE u.name IS UNIQUE`,
}

type graphStore interface {
	repo.Writer[domain.CommentRecord]
	Exec(ctx context.Context, cypher string, params map[string]any) error
}

// Graph merges records into Neo4j as
// (:Commenter)-[:WROTE]->(:Comment)-[:ON]->(:Source).
type Graph struct {
	driver neo4j.DriverWithContext
	store  graphStore
	log    *slog.Logger
	schema bool
}

func recordToMap(r domain.CommentRecord) map[string]any {
	return map[string]any{
		"id":           r.ID,
		"url":          r.SourceURL,
		"content_type": r.ContentType.String(),
		"caption":      r.Caption,
		"author":       r.Author,
		"body":         r.Body,
		"harvested_at": r.HarvestedAt,
	}
}

// GraphConfig locates the Neo4j database. Zero Database means the server
// default; zero BatchSize means repo.DefaultBatchSize.
type GraphConfig struct {
	URI       string
	User      string
	Password  string
	Database  string
	BatchSize int
}

func (c GraphConfig) repoOptions() []repo.Neo4jOption[domain.CommentRecord] {
	var opts []repo.Neo4jOption[domain.CommentRecord]
	if c.Database != "" {
		opts = append(opts, repo.WithDatabase[domain.CommentRecord](c.Database))
	}
	if c.BatchSize > 0 {
		opts = append(opts, repo.WithBatchSize[domain.CommentRecord](c.BatchSize))
	}
	return opts
}

// NewGraph connects with basic auth and verifies connectivity.
func NewGraph(ctx context.Context, cfg GraphConfig, log *slog.Logger) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("sink: neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("sink: neo4j connect: %w", err)
	}
	store := repo.NewNeo4jRepo(driver, mergeComments, recordToMap, cfg.repoOptions()...)
	return newGraph(driver, store, log), nil
}

func newGraph(driver neo4j.DriverWithContext, store graphStore, log *slog.Logger) *Graph {
	if log == nil {
		log = slog.Default()
	}
	return &Graph{driver: driver, store: store, log: log}
}

// Write ensures the uniqueness constraints exist, then merges recs.
func (g *Graph) Write(ctx context.Context, recs []domain.CommentRecord) error {
	if !g.schema {
		for _, stmt := range graphSchema {
			if err := g.store.Exec(ctx, stmt, nil); err != nil {
				return fmt.Errorf("sink: neo4j schema: %w", err)
			}
		}
		g.schema = true
	}
	n, err := g.store.Save(ctx, recs)
	if err != nil {
		return fmt.Errorf("sink: neo4j merge (%d of %d written): %w", n, len(recs), err)
	}
	g.log.Info("sink: merged into graph", "records", n)
	return nil
}

func (g *Graph) Close() error {
	if g.driver == nil {
		return nil
	}
	return g.driver.Close(context.Background())
}
