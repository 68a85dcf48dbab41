package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/wolog/internal/apperr"
	"github.com/starford/wolog/internal/ast"
	"github.com/starford/wolog/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "wolog-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testDoc(title string) (*ast.Doc, *models.ArticleMeta) {
	doc := &ast.Doc{
		Meta:   ast.Meta{"title": ast.MetaString(title)},
		Blocks: []ast.Block{ast.Para([]ast.Inline{ast.Str(title)})},
	}
	meta := &models.ArticleMeta{
		Title:    title,
		PostType: models.Note,
		Template: "note",
		Tags:     []string{},
		Created:  models.MustDate("2024-01-01"),
		Updated:  models.MustDate("2024-01-02"),
		Ready:    true,
	}
	return doc, meta
}

func TestUpsertGetRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	doc, meta := testDoc("Hello")
	when := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	if err := db.Upsert(ctx, "topics/hello", when, doc, meta); err != nil {
		t.Fatal(err)
	}

	rec, err := db.Get(ctx, "topics/hello")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Meta.Title != "Hello" {
		t.Errorf("title = %q", rec.Meta.Title)
	}
	if !rec.Updated.Equal(when) {
		t.Errorf("updated = %s, want %s", rec.Updated, when)
	}
	if len(rec.Doc.Blocks) != 1 {
		t.Errorf("blocks = %+v", rec.Doc.Blocks)
	}

	// Second upsert replaces in place.
	doc2, meta2 := testDoc("Hello v2")
	if err := db.Upsert(ctx, "topics/hello", when.Add(time.Hour), doc2, meta2); err != nil {
		t.Fatal(err)
	}
	rec, err = db.Get(ctx, "topics/hello")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Meta.Title != "Hello v2" {
		t.Errorf("title after upsert = %q", rec.Meta.Title)
	}
}

func TestGetMissing(t *testing.T) {
	db := testDB(t)
	if _, err := db.Get(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRemovesMentions(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	doc, meta := testDoc("A")
	if err := db.Upsert(ctx, "a", time.Now(), doc, meta); err != nil {
		t.Fatal(err)
	}
	if err := db.AddMention(ctx, "a", "https://other.example/x", time.Now()); err != nil {
		t.Fatal(err)
	}

	if err := db.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Get(ctx, "a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("post survived delete: %v", err)
	}
	ms, err := db.Mentioners(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 0 {
		t.Errorf("mentions survived delete: %+v", ms)
	}
}

func TestGetPurgesUndecodableRow(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	doc, meta := testDoc("Drift")
	if err := db.Upsert(ctx, "drift", time.Now(), doc, meta); err != nil {
		t.Fatal(err)
	}
	// Corrupt the stored payload behind the store's back.
	if _, err := db.conn.ExecContext(ctx, `UPDATE posts SET ast = 'not json' WHERE path = 'drift'`); err != nil {
		t.Fatal(err)
	}

	if _, err := db.Get(ctx, "drift"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	// The row is gone, so the next sync pass rebuilds it.
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM posts WHERE path = 'drift'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("row count = %d, want 0", n)
	}
}

func TestListIndexNilMetaOnDrift(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	doc, meta := testDoc("Ok")
	if err := db.Upsert(ctx, "ok", time.Now(), doc, meta); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(ctx, "bad", time.Now(), doc, meta); err != nil {
		t.Fatal(err)
	}
	if _, err := db.conn.ExecContext(ctx, `UPDATE posts SET meta = '{' WHERE path = 'bad'`); err != nil {
		t.Fatal(err)
	}

	entries, err := db.ListIndex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	byPath := map[string]IndexEntry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	if byPath["ok"].Meta == nil {
		t.Error("ok entry should decode")
	}
	if byPath["bad"].Meta != nil {
		t.Error("bad entry should have nil meta")
	}
}

func TestSearchRowsPushdown(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, p := range []struct{ path, title string }{
		{"blog/a", "Alpha Release"},
		{"blog/b", "beta notes"},
		{"wiki/c", "Alpha Wiki"},
	} {
		doc, meta := testDoc(p.title)
		if err := db.Upsert(ctx, p.path, time.Now(), doc, meta); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := db.SearchRows(ctx, "blog/", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("prefix rows = %d, want 2", len(rows))
	}

	// Title matching is a case-sensitive substring.
	rows, err = db.SearchRows(ctx, "", "Alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("title rows = %d, want 2", len(rows))
	}
	rows, err = db.SearchRows(ctx, "", "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("lowercase should not match: %d rows", len(rows))
	}
}

func TestTagCountsSkipsHidden(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	doc, meta := testDoc("Visible")
	meta.Tags = []string{"go", "web"}
	if err := db.Upsert(ctx, "v", time.Now(), doc, meta); err != nil {
		t.Fatal(err)
	}

	doc2, meta2 := testDoc("Hidden")
	meta2.Tags = []string{"go"}
	meta2.Hidden = true
	if err := db.Upsert(ctx, "h", time.Now(), doc2, meta2); err != nil {
		t.Fatal(err)
	}

	counts, err := db.TagCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["go"] != 1 || counts["web"] != 1 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestMentions(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := db.AddMention(ctx, "a", "https://x.example/1", first); err != nil {
		t.Fatal(err)
	}
	if err := db.AddMention(ctx, "a", "https://x.example/2", first.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	// Re-adding refreshes last_mentioned, keeps first_mentioned.
	if err := db.AddMention(ctx, "a", "https://x.example/1", first.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}

	ms, err := db.Mentioners(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 {
		t.Fatalf("mentions = %+v", ms)
	}
	// Ordered newest activity first.
	if ms[0].FromURL != "https://x.example/1" {
		t.Errorf("order = %+v", ms)
	}
	if !ms[0].FirstMentioned.Equal(first) {
		t.Errorf("first_mentioned overwritten: %s", ms[0].FirstMentioned)
	}

	if err := db.RemoveMention(ctx, "a", "https://x.example/1"); err != nil {
		t.Fatal(err)
	}
	ms, err = db.Mentioners(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 1 || ms[0].FromURL != "https://x.example/2" {
		t.Errorf("after remove = %+v", ms)
	}
}
