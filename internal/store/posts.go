package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/wolog/internal/apperr"
	"github.com/starford/wolog/internal/ast"
	"github.com/starford/wolog/internal/models"
)

// Upsert inserts or fully replaces a document record in a single statement.
// Row-level atomicity of the conflict clause is the only concurrency control;
// the last writer wins.
func (db *DB) Upsert(ctx context.Context, path string, updated time.Time, doc *ast.Doc, meta *models.ArticleMeta) error {
	astJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: encode ast: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("store: encode meta: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO posts (path, title, updated, ast, meta)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title   = excluded.title,
			updated = excluded.updated,
			ast     = excluded.ast,
			meta    = excluded.meta
	`, path, meta.Title, updated.UTC(), string(astJSON), string(metaJSON))
	if err != nil {
		return fmt.Errorf("store: upsert %s: %w", path, err)
	}
	return nil
}

// Delete removes a document record and its inbound mentions.
func (db *DB) Delete(ctx context.Context, path string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, _ = tx.ExecContext(ctx, `DELETE FROM mentions WHERE to_path = ?`, path)
	_, _ = tx.ExecContext(ctx, `DELETE FROM posts WHERE path = ?`, path)

	return tx.Commit()
}

// Get fetches one record. A stored payload that no longer decodes is schema
// drift: the affected row is purged and not-found is reported, so the next
// synchronization pass rebuilds it from source.
func (db *DB) Get(ctx context.Context, path string) (*Record, error) {
	var (
		updated           time.Time
		astJSON, metaJSON string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT updated, ast, meta FROM posts WHERE path = ?`, path).
		Scan(&updated, &astJSON, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", path, err)
	}

	var doc ast.Doc
	var meta models.ArticleMeta
	if json.Unmarshal([]byte(astJSON), &doc) != nil ||
		json.Unmarshal([]byte(metaJSON), &meta) != nil {
		_ = db.purge(ctx, path)
		return nil, apperr.ErrNotFound
	}
	return &Record{Path: path, Updated: updated, Doc: &doc, Meta: &meta}, nil
}

// GetMeta fetches only the decoded metadata for one record, with the same
// schema-drift purge as Get.
func (db *DB) GetMeta(ctx context.Context, path string) (*models.ArticleMeta, error) {
	var metaJSON string
	err := db.conn.QueryRowContext(ctx,
		`SELECT meta FROM posts WHERE path = ?`, path).Scan(&metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get meta %s: %w", path, err)
	}
	var meta models.ArticleMeta
	if json.Unmarshal([]byte(metaJSON), &meta) != nil {
		_ = db.purge(ctx, path)
		return nil, apperr.ErrNotFound
	}
	return &meta, nil
}

func (db *DB) purge(ctx context.Context, path string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM posts WHERE path = ?`, path)
	return err
}

// ListIndex returns every stored path with its timestamp and decoded
// metadata. Undecodable metadata yields a nil Meta rather than an error; the
// timestamp comparison still works and the next rebuild replaces the row.
func (db *DB) ListIndex(ctx context.Context) ([]IndexEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, updated, meta FROM posts`)
	if err != nil {
		return nil, fmt.Errorf("store: list index: %w", err)
	}
	defer rows.Close()

	var out []IndexEntry
	for rows.Next() {
		var e IndexEntry
		var metaJSON string
		if err := rows.Scan(&e.Path, &e.Updated, &metaJSON); err != nil {
			return nil, err
		}
		var meta models.ArticleMeta
		if json.Unmarshal([]byte(metaJSON), &meta) == nil {
			e.Meta = &meta
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SearchRows pushes the indexable filters down to SQL: exact path
// prefix and case-preserving title substring (instr, not LIKE, so matching
// stays case-sensitive). No limit is applied here; the engine truncates
// only after the remaining filters and the sort have run.
func (db *DB) SearchRows(ctx context.Context, pathPrefix, titleSub string) ([]Row, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT path, meta FROM posts
		WHERE substr(path, 1, length(?)) = ?
		AND (? = '' OR instr(title, ?) > 0)
	`, pathPrefix, pathPrefix, titleSub, titleSub)
	if err != nil {
		return nil, fmt.Errorf("store: search rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var metaJSON string
		if err := rows.Scan(&r.Path, &metaJSON); err != nil {
			return nil, err
		}
		r.Meta = []byte(metaJSON)
		out = append(out, r)
	}
	return out, rows.Err()
}

// TagCounts returns the number of visible (non-hidden) documents per tag.
func (db *DB) TagCounts(ctx context.Context) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT meta FROM posts`)
	if err != nil {
		return nil, fmt.Errorf("store: tag counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var metaJSON string
		if err := rows.Scan(&metaJSON); err != nil {
			return nil, err
		}
		var meta models.ArticleMeta
		if json.Unmarshal([]byte(metaJSON), &meta) != nil || meta.Hidden {
			continue
		}
		for _, tag := range meta.Tags {
			counts[tag]++
		}
	}
	return counts, rows.Err()
}
