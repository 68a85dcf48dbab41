package api

import (
	"context"
	"encoding/json"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/wolog/internal/ast"
	"github.com/starford/wolog/internal/filter"
	"github.com/starford/wolog/internal/models"
	"github.com/starford/wolog/internal/notify"
	"github.com/starford/wolog/internal/postservice"
	"github.com/starford/wolog/internal/search"
	"github.com/starford/wolog/internal/store"
	"github.com/starford/wolog/internal/syncer"
	"github.com/starford/wolog/internal/testutil"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConverter only renders; the handlers under test never parse files.
type fakeConverter struct{}

func (fakeConverter) Parse(context.Context, string) (*ast.Doc, error) {
	return &ast.Doc{}, nil
}

func (fakeConverter) Render(_ context.Context, doc *ast.Doc) (string, error) {
	var sb strings.Builder
	sb.WriteString("<article>")
	for _, b := range doc.Blocks {
		if inlines, ok := b.AsInlines(); ok {
			sb.WriteString(ast.FlattenInlines(inlines))
		}
	}
	sb.WriteString("</article>")
	return sb.String(), nil
}

// fakeRenderer wraps whatever content the context carries so tests can
// tell templated output from bare output.
type fakeRenderer struct{}

func (fakeRenderer) Render(name string, data any) (string, error) {
	m, _ := data.(map[string]any)
	content, _ := m["content"].(template.HTML)
	return "[" + name + "]" + string(content), nil
}

func testEnv(t *testing.T, authEnabled bool, token string) (*store.DB, http.Handler) {
	t.Helper()
	db := testutil.TestDB(t)
	root := testutil.TestContentRoot(t)

	engine := search.NewEngine(db)
	post := filter.NewPostprocessor(db, engine, fakeRenderer{}, discard())
	svc := postservice.NewService(db, fakeConverter{}, post, engine, fakeRenderer{}, discard())

	pre := filter.NewPreprocessor(nil, "", discard())
	sync := syncer.New(syncer.Options{Root: root, Extension: ".md"},
		fakeConverter{}, pre, db, &notify.LogNotifier{Logger: discard()}, nil, discard())

	return db, NewRouter(svc, sync, authEnabled, token, nil, discard())
}

func seedPost(t *testing.T, db *store.DB, path, title string) {
	t.Helper()
	doc := &ast.Doc{Blocks: []ast.Block{ast.Para([]ast.Inline{ast.Str(title)})}}
	meta := &models.ArticleMeta{
		Title:    title,
		PostType: models.Note,
		Template: "note",
		Tags:     []string{"go"},
		Created:  models.MustDate("2024-01-01"),
		Updated:  models.MustDate("2024-01-02"),
		Ready:    true,
	}
	if err := db.Upsert(context.Background(), path, time.Now(), doc, meta); err != nil {
		t.Fatal(err)
	}
}

func TestPageServed(t *testing.T) {
	db, router := testEnv(t, false, "")
	seedPost(t, db, "topics/hello", "Hello")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/post/topics/hello", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, "[note]") {
		t.Errorf("page not templated: %q", body)
	}
	if !strings.Contains(body, "Hello") {
		t.Errorf("content missing: %q", body)
	}
	if w.Result().Cookies()[0].Name != "viewed" {
		t.Error("viewer cookie not set")
	}
}

func TestPageBare(t *testing.T) {
	db, router := testEnv(t, false, "")
	seedPost(t, db, "x", "Bare")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/post/x?bare=true", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if strings.Contains(body, "[note]") {
		t.Errorf("bare output should skip the page template: %q", body)
	}
	if !strings.Contains(body, "<article>Bare</article>") {
		t.Errorf("body = %q", body)
	}
}

func TestPageNotFound(t *testing.T) {
	_, router := testEnv(t, false, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/post/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestSearchBadQuery(t *testing.T) {
	_, router := testEnv(t, false, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search?sort_type=Sideways", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTagCounts(t *testing.T) {
	db, router := testEnv(t, false, "")
	seedPost(t, db, "a", "A")
	seedPost(t, db, "b", "B")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tags", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Tags map[string]int `json:"tags"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Tags["go"] != 2 {
		t.Errorf("tags = %+v", resp.Tags)
	}
}

func TestSyncRequiresAuth(t *testing.T) {
	_, router := testEnv(t, true, "secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/sync", nil)
	req.Header.Set("Authorization", "Bearer secret")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("good token: status = %d, want 200", w.Code)
	}
}

func TestPublicRoutesBypassAuth(t *testing.T) {
	db, router := testEnv(t, true, "secret")
	seedPost(t, db, "open", "Open")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/post/open", nil))
	if w.Code != http.StatusOK {
		t.Errorf("public page behind auth: status = %d", w.Code)
	}
}
