package shots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Davasny/n8n-helpers/dbopen"
)

const schema = `CREATE TABLE IF NOT EXISTS screenshots (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	bytes      INTEGER NOT NULL,
	created_at INTEGER NOT NULL
)`

// Meta describes a stored artifact.
type Meta struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Index records which URL produced each artifact.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (or creates) the SQLite index at path.
func OpenIndex(path string) (*Index, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("shots: open index: %w", err)
	}
	return &Index{db: db}, nil
}

// NewIndex uses an already open database, creating the table if needed.
func NewIndex(db *sql.DB) (*Index, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("shots: init index: %w", err)
	}
	return &Index{db: db}, nil
}

func (x *Index) Put(ctx context.Context, m Meta) error {
	_, err := dbopen.Exec(ctx, x.db,
		`INSERT OR REPLACE INTO screenshots (id, url, bytes, created_at) VALUES (?, ?, ?, ?)`,
		m.ID, m.URL, m.Bytes, m.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("shots: index put: %w", err)
	}
	return nil
}

func (x *Index) Get(ctx context.Context, id string) (*Meta, error) {
	var (
		m  Meta
		ms int64
	)
	err := x.db.QueryRowContext(ctx,
		`SELECT id, url, bytes, created_at FROM screenshots WHERE id = ?`, id,
	).Scan(&m.ID, &m.URL, &m.Bytes, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("shots: index get: %w", err)
	}
	m.CreatedAt = time.UnixMilli(ms).UTC()
	return &m, nil
}

func (x *Index) Close() error { return x.db.Close() }
