package store

import (
	"context"
	"fmt"
	"time"
)

// AddMention records (or refreshes) an inbound reference to a stored
// document.
func (db *DB) AddMention(ctx context.Context, toPath, fromURL string, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO mentions (to_path, from_url, first_mentioned, last_mentioned)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(to_path, from_url) DO UPDATE SET
			last_mentioned = excluded.last_mentioned
	`, toPath, fromURL, at.UTC(), at.UTC())
	if err != nil {
		return fmt.Errorf("store: add mention %s -> %s: %w", fromURL, toPath, err)
	}
	return nil
}

// RemoveMention drops an inbound reference, e.g. when the mentioning page
// disappeared.
func (db *DB) RemoveMention(ctx context.Context, toPath, fromURL string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM mentions WHERE to_path = ? AND from_url = ?`, toPath, fromURL)
	if err != nil {
		return fmt.Errorf("store: remove mention %s -> %s: %w", fromURL, toPath, err)
	}
	return nil
}

// Mentioners returns every inbound reference to the given path, most recent
// first.
func (db *DB) Mentioners(ctx context.Context, toPath string) ([]Mention, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT from_url, first_mentioned, last_mentioned FROM mentions
		WHERE to_path = ?
		ORDER BY last_mentioned DESC
	`, toPath)
	if err != nil {
		return nil, fmt.Errorf("store: mentioners %s: %w", toPath, err)
	}
	defer rows.Close()

	var out []Mention
	for rows.Next() {
		var m Mention
		if err := rows.Scan(&m.FromURL, &m.FirstMentioned, &m.LastMentioned); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
