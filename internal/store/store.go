// Package store provides the SQLite-backed document store: one row per
// logical path holding the preprocessed tree and derived metadata, plus the
// incoming-mention records that feed the mentioners list.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/wolog/internal/ast"
	"github.com/starford/wolog/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS posts (
	path    TEXT PRIMARY KEY,
	title   TEXT NOT NULL DEFAULT '',
	updated DATETIME NOT NULL,
	ast     TEXT NOT NULL,
	meta    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mentions (
	to_path         TEXT NOT NULL,
	from_url        TEXT NOT NULL,
	first_mentioned DATETIME NOT NULL,
	last_mentioned  DATETIME NOT NULL,
	UNIQUE(to_path, from_url)
);

CREATE INDEX IF NOT EXISTS idx_mentions_to_path ON mentions(to_path);
`

// Record is one stored document.
type Record struct {
	Path    string
	Updated time.Time
	Doc     *ast.Doc
	Meta    *models.ArticleMeta
}

// IndexEntry is the lightweight per-path state the synchronization engine
// compares against. Meta is nil when the stored payload no longer decodes.
type IndexEntry struct {
	Path    string
	Updated time.Time
	Meta    *models.ArticleMeta
}

// Row is an undecoded search candidate produced by the store-side pushdown.
type Row struct {
	Path string
	Meta []byte
}

// Mention is one inbound reference to a stored document.
type Mention struct {
	FromURL        string
	FirstMentioned time.Time
	LastMentioned  time.Time
}

// Store defines the persistence operations the pipeline and query engine
// require. Consumers should depend on this interface rather than the
// concrete *DB type to facilitate testing with fakes.
type Store interface {
	Upsert(ctx context.Context, path string, updated time.Time, doc *ast.Doc, meta *models.ArticleMeta) error
	Delete(ctx context.Context, path string) error
	Get(ctx context.Context, path string) (*Record, error)
	GetMeta(ctx context.Context, path string) (*models.ArticleMeta, error)
	ListIndex(ctx context.Context) ([]IndexEntry, error)
	SearchRows(ctx context.Context, pathPrefix, titleSub string) ([]Row, error)
	TagCounts(ctx context.Context) (map[string]int, error)
	AddMention(ctx context.Context, toPath, fromURL string, at time.Time) error
	RemoveMention(ctx context.Context, toPath, fromURL string) error
	Mentioners(ctx context.Context, toPath string) ([]Mention, error)
	Close() error
}

// DB wraps a sql.DB with store-specific operations.
type DB struct {
	conn *sql.DB
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
