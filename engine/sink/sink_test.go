package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/threadharvest/engine/domain")

var at = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func rec(url string, ct domain.ContentType, author, body string) domain.CommentRecord {
	return domain.NewCommentRecord(url, ct, "A caption", author, body, at)
}

func sample() []domain.CommentRecord {
	return []domain.CommentRecord{
		rec("https://www.facebook.com/watch/?v=1", domain.Watch, "Somchai Dee", "สวยมากครับ"),
		rec("https://www.facebook.com/reel/55", domain.Reel, "Ann Lee", "Great, \"really\" great"),
		rec("https://www.facebook.com/reel/55", domain.Reel, "Ben Ode", "สวยมากครับ"),
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(at); got != "comments_20240309_140507.csv" {
		t.Fatalf("FileName = %q", got)
	}
}

func TestCSVWrite(t *testing.T) {
	dir := t.TempDir()
	c := NewCSV(filepath.Join(dir, "out"), nil)
	c.now = func() time.Time { return at }

	if err := c.Write(context.Background(), sample()); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "out", "comments_20240309_140507.csv")
	if c.Path() != want {
		t.Fatalf("Path = %q, want %q", c.Path(), want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "\ufeff") {
		t.Fatal("missing byte order mark")
	}
	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), "\ufeff"))).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	wantRows := [][]string{
		{"URL", "Type", "Caption", "Commenter", "Comment"},
		{"https://www.facebook.com/watch/?v=1", "WATCH", "A caption", "Somchai Dee", "สวยมากครับ"},
		{"https://www.facebook.com/reel/55", "REEL", "A caption", "Ann Lee", "Great, \"really\" great"},
	}
	if diff := cmp.Diff(wantRows, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVEmptyWritesNothing(t *testing.T) {
	dir := t.TempDir()
	c := NewCSV(dir, nil)
	if err := c.Write(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if c.Path() != "" {
		t.Fatalf("Path = %q, want empty", c.Path())
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("dir has %d entries", len(entries))
	}
}

func TestDedupKeepsFirst(t *testing.T) {
	in := sample()
	in = append(in, rec("https://www.facebook.com/posts/9", domain.Post, "Cat Poe", "  Great,  \"really\"   great "))
	got := Dedup(in)
	if diff := cmp.Diff(in[:2], got); diff != "" {
		t.Errorf("Dedup mismatch (-want +got):\n%s", diff)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &Memory{}
	bad := &Memory{Err: boom}
	m := Multi{bad, ok}

	err := m.Write(context.Background(), sample())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if ok.Writes != 1 || len(ok.Records) != 3 {
		t.Fatalf("healthy sink not written: %+v", ok)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatalf("nats server: %v", err)
	}
	ns.Start()
	t.Cleanup(ns.Shutdown)
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("nats connect: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func TestNATSWrite(t *testing.T) {
	nc := startNATS(t)
	sub, err := nc.SubscribeSync(DefaultSubject)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	s := NewNATS(nc, nil)
	want := sample()
	if err := s.Write(context.Background(), want); err != nil {
		t.Fatal(err)
	}

	var recv []domain.CommentRecord
	for range want {
		msg, err := sub.NextMsg(5 * time.Second)
		if err != nil {
			t.Fatalf("received %d of %d records: %v", len(recv), len(want), err)
		}
		var r domain.CommentRecord
		if err := json.Unmarshal(msg.Data, &r); err != nil {
			t.Fatalf("decode: %v", err)
		}
		recv = append(recv, r)
	}
	if diff := cmp.Diff(want, recv); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if nc.IsClosed() {
		t.Fatal("borrowed connection was closed")
	}
}

func TestNATSWriteClosedConn(t *testing.T) {
	nc := startNATS(t)
	nc.Close()
	if err := NewNATS(nc, nil).Write(context.Background(), sample()); err == nil {
		t.Fatal("expected error on closed connection")
	}
}

type fakeGraphStore struct {
	execs []string
	saved []domain.CommentRecord
	err   error
}

func (f *fakeGraphStore) Save(_ context.Context, items []domain.CommentRecord) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.saved = append(f.saved, items...)
	return len(items), nil
}

func (f *fakeGraphStore) Exec(_ context.Context, cypher string, _ map[string]any) error {
	f.execs = append(f.execs, cypher)
	return nil
}

func TestGraphWrite(t *testing.T) {
	store := &fakeGraphStore{}
	g := newGraph(nil, store, nil)

	for range 2 {
		if err := g.Write(context.Background(), sample()); err != nil {
			t.Fatal(err)
		}
	}
	if len(store.execs) != len(graphSchema) {
		t.Fatalf("schema statements = %d, want %d once", len(store.execs), len(graphSchema))
	}
	if len(store.saved) != 6 {
		t.Fatalf("saved = %d", len(store.saved))
	}
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestGraphWriteError(t *testing.T) {
	boom := errors.New("db down")
	g := newGraph(nil, &fakeGraphStore{err: boom}, nil)
	if err := g.Write(context.Background(), sample()); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestRecordToMap(t *testing.T) {
	r := sample()[1]
	got := recordToMap(r)
	want := map[string]any{
		"id":           r.ID,
		"url":          "https://www.facebook.com/reel/55",
		"content_type": "REEL",
		"caption":      "A caption",
		"author":       "Ann Lee",
		"body":         "Great, \"really\" great",
		"harvested_at": at,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("recordToMap mismatch (-want +got):\n%s", diff)
	}
}

func TestGraphConfigOptions(t *testing.T) {
	tests := []struct {
		name string
		cfg  GraphConfig
		want int
	}{
		{"server defaults", GraphConfig{URI: "bolt://localhost:7687"}, 0},
		{"database only", GraphConfig{Database: "comments"}, 1},
		{"database and batch", GraphConfig{Database: "comments", BatchSize: 50}, 2},
		{"non-positive batch ignored", GraphConfig{BatchSize: -1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.cfg.repoOptions()); got != tt.want {
				t.Errorf("repoOptions() = %d options, want %d", got, tt.want)
			}
		})
	}
}
