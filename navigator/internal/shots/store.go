// Package shots stores diagnostic screenshots taken when a navigation
// fails. Each artifact is a full-page PNG named <uuidv7>.png, so a sorted
// listing is also chronological.
package shots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Davasny/n8n-helpers/idgen"
	"github.com/Davasny/n8n-helpers/observability"
)

const ext = ".png"

var (
	// ErrNotFound means no artifact exists under the given id.
	ErrNotFound = errors.New("shots: screenshot not found")
	// ErrInvalidID means the id cannot name an artifact.
	ErrInvalidID = errors.New("shots: invalid screenshot id")
)

// Capturer is the part of a page a capture needs.
type Capturer interface {
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
}

// Store keeps artifacts in a directory, with an optional metadata index.
type Store struct {
	dir     string
	newID   idgen.Generator
	index   *Index
	log     *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

type Option func(*Store)

func WithIndex(ix *Index) Option { return func(s *Store) { s.index = ix } }

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = l } }

func WithMetrics(m *observability.Metrics) Option { return func(s *Store) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// NewStore returns a Store rooted at dir. The directory is created on the
// first capture.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:   dir,
		newID: idgen.UUIDv7(),
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Dir() string { return s.dir }

// Capture writes a full-page screenshot of page and returns its id. It never
// fails the caller: errors are logged and reported as an empty id.
func (s *Store) Capture(ctx context.Context, page Capturer, url string) string {
	id := s.newID()
	n, err := s.capture(ctx, page, id)
	if err != nil {
		s.metrics.ScreenshotCaptured(false)
		s.log.Warn("shots: capture failed", "url", url, "id", id, "error", err)
		return ""
	}
	s.metrics.ScreenshotCaptured(true)
	s.log.Info("shots: captured", "url", url, "id", id, "bytes", n)

	if s.index != nil {
		meta := Meta{ID: id, URL: url, Bytes: n, CreatedAt: s.now()}
		if err := s.index.Put(ctx, meta); err != nil {
			s.log.Warn("shots: index write failed", "id", id, "error", err)
		}
	}
	return id
}

func (s *Store) capture(ctx context.Context, page Capturer, id string) (int, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}
	data, err := page.Screenshot(ctx, true)
	if err != nil {
		return 0, err
	}

	// Write to a dot-file first so List never sees a partial PNG.
	tmp, err := os.CreateTemp(s.dir, ".capture-*")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		return 0, fmt.Errorf("rename: %w", err)
	}
	return len(data), nil
}

// List returns every stored id in ascending order. A missing directory is an
// empty store; entries that are not artifacts are skipped.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("shots: list: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		id := strings.TrimSuffix(name, ext)
		if !idgen.Valid(id) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Get returns the PNG bytes for id.
func (s *Store) Get(id string) ([]byte, error) {
	if !idgen.Valid(id) {
		return nil, ErrInvalidID
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("shots: read %s: %w", id, err)
	}
	return data, nil
}

// Meta returns indexed metadata for id. Without an index every id is
// reported as not found.
func (s *Store) Meta(ctx context.Context, id string) (*Meta, error) {
	if !idgen.Valid(id) {
		return nil, ErrInvalidID
	}
	if s.index == nil {
		return nil, ErrNotFound
	}
	return s.index.Get(ctx, id)
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+ext)
}
