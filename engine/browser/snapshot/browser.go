package snapshot

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/titanous/json5"

	"github.com/WessleyAI/threadharvest/engine/browser"
)

// ManifestFile is the index written next to saved pages.
const ManifestFile = "manifest.json5"

// Browser hands out Pages over a fixed set of saved documents.
type Browser struct {
	// Prepare, when set, is called with every Page before NewPage returns it.
	Prepare func(*Page)
	// FailNewPage, when set, makes NewPage return its error.
	FailNewPage func(n int) error

	mu        sync.Mutex
	pages     map[string]string
	redirects map[string]string
	cookies   []browser.Cookie
	opened    int
	closed    bool
}

var _ browser.Browser = (*Browser)(nil)

// New returns a Browser serving pages keyed by URL.
func New(pages map[string]string) *Browser {
	return &Browser{pages: pages, redirects: map[string]string{}}
}

// Redirect makes navigation to from land on to.
func (b *Browser) Redirect(from, to string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.redirects[from] = to
}

func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.New("snapshot: browser closed")
	}
	b.opened++
	n := b.opened
	fail := b.FailNewPage
	p := &Page{pages: b.pages, redirects: b.redirects}
	b.mu.Unlock()

	if fail != nil {
		if err := fail(n); err != nil {
			return nil, err
		}
	}
	if b.Prepare != nil {
		b.Prepare(p)
	}
	return p, nil
}

func (b *Browser) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cookies = append(b.cookies, cookies...)
	return nil
}

// Cookies returns the cookies installed so far.
func (b *Browser) Cookies() []browser.Cookie {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]browser.Cookie(nil), b.cookies...)
}

// Opened returns how many pages were allocated.
func (b *Browser) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Manifest indexes saved pages by URL.
type Manifest struct {
	Pages []ManifestEntry `json:"pages"`
}

// ManifestEntry is one saved page.
type ManifestEntry struct {
	URL     string    `json:"url"`
	File    string    `json:"file"`
	SavedAt time.Time `json:"saved_at"`
}

// LoadDir builds a Browser from a directory written by a Recorder.
func LoadDir(dir string) (*Browser, error) {
	m, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	pages := make(map[string]string, len(m.Pages))
	for _, e := range m.Pages {
		b, err := os.ReadFile(filepath.Join(dir, e.File))
		if err != nil {
			return nil, fmt.Errorf("read snapshot %s: %w", e.File, err)
		}
		pages[e.URL] = string(b)
	}
	return New(pages), nil
}

func readManifest(dir string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, err
	}
	if err := json5.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}
	return m, nil
}

// Recorder saves rendered pages into a directory LoadDir can replay.
type Recorder struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// NewRecorder creates dir if needed.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{dir: dir, now: time.Now}, nil
}

// Save writes doc for url and updates the manifest. Saving a URL again
// replaces its entry.
func (r *Recorder) Save(url, doc string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := sha1.Sum([]byte(url))
	file := hex.EncodeToString(sum[:8]) + ".html"
	if err := os.WriteFile(filepath.Join(r.dir, file), []byte(doc), 0o644); err != nil {
		return err
	}

	m, err := readManifest(r.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	entry := ManifestEntry{URL: url, File: file, SavedAt: r.now().UTC()}
	replaced := false
	for i := range m.Pages {
		if m.Pages[i].URL == url {
			m.Pages[i] = entry
			replaced = true
		}
	}
	if !replaced {
		m.Pages = append(m.Pages, entry)
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.dir, ManifestFile), b, 0o644)
}
