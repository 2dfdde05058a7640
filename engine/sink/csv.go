package sink

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/WessleyAI/threadharvest/engine/domain"
)

// utf8BOM lets spreadsheet tools detect the encoding of Thai text.
const utf8BOM = "\ufeff"

var csvHeader = []string{"URL", "Type", "Caption", "Commenter", "Comment"}

// FileName is the CSV name for a run written at t.
func FileName(t time.Time) string {
	return "comments_" + t.Format("20060102_150405") + ".csv"
}

// CSV writes one file per run into a directory.
type CSV struct {
	dir  string
	log  *slog.Logger
	now  func() time.Time
	path string
}

// NewCSV returns a CSV sink writing into dir, which is created on first
// write.
func NewCSV(dir string, log *slog.Logger) *CSV {
	if log == nil {
		log = slog.Default()
	}
	return &CSV{dir: dir, log: log, now: time.Now}
}

// Path is the file written by the last Write, or "" when nothing was
// written.
func (c *CSV) Path() string { return c.path }

// Write dedups recs by comment body and writes them with a header row. An
// empty batch writes no file.
func (c *CSV) Write(_ context.Context, recs []domain.CommentRecord) (err error) {
	recs = Dedup(recs)
	if len(recs) == 0 {
		c.log.Warn("sink: no comments to save")
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("sink: csv dir: %w", err)
	}
	path := filepath.Join(c.dir, FileName(c.now()))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sink: csv create: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("sink: csv close: %w", cerr)
		}
	}()

	bw := bufio.NewWriter(f)
	if _, err := bw.WriteString(utf8BOM); err != nil {
		return fmt.Errorf("sink: csv write: %w", err)
	}
	w := csv.NewWriter(bw)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("sink: csv write: %w", err)
	}
	for _, r := range recs {
		if err := w.Write([]string{r.SourceURL, r.ContentType.String(), r.Caption, r.Author, r.Body}); err != nil {
			return fmt.Errorf("sink: csv write: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("sink: csv flush: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("sink: csv flush: %w", err)
	}
	c.path = path
	c.log.Info("sink: csv written", "path", path, "rows", len(recs))
	return nil
}

func (c *CSV) Close() error { return nil }
