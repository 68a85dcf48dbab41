package filter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/starford/wolog/internal/ast"
	"github.com/starford/wolog/internal/models"
	"github.com/starford/wolog/internal/search"
	"github.com/starford/wolog/internal/store"
	"github.com/starford/wolog/internal/viewer"
)

type fakeDocs struct {
	docs map[string]*store.Record
}

func (f *fakeDocs) Get(_ context.Context, path string) (*store.Record, error) {
	rec, ok := f.docs[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return rec, nil
}

type fakeRenderer struct {
	out string
	err error
}

func (f *fakeRenderer) Render(string, any) (string, error) {
	return f.out, f.err
}

type staticRows struct{ rows []store.Row }

func (s *staticRows) SearchRows(context.Context, string, string) ([]store.Row, error) {
	return s.rows, nil
}

func includeBlock(body string) ast.Block {
	return ast.CodeBlock(ast.Attr{Classes: []string{"include"}}, body)
}

func record(blocks ...ast.Block) *store.Record {
	return &store.Record{Doc: &ast.Doc{Blocks: blocks}}
}

func newPost(docs *fakeDocs, r *fakeRenderer) *Postprocessor {
	engine := search.NewEngine(&staticRows{})
	return NewPostprocessor(docs, engine, r, discard())
}

func TestInclude_WholeDocument(t *testing.T) {
	docs := &fakeDocs{docs: map[string]*store.Record{
		"other/page": record(ast.Para([]ast.Inline{ast.Str("included")})),
	}}
	p := newPost(docs, &fakeRenderer{})

	doc := &ast.Doc{Blocks: []ast.Block{includeBlock("src: other/page")}}
	p.Apply(context.Background(), doc, viewer.Viewer{})

	quoted, ok := doc.Blocks[0].AsBlockQuote()
	if !ok {
		t.Fatalf("block = %+v", doc.Blocks[0])
	}
	if len(quoted) != 2 {
		t.Fatalf("quoted blocks = %d, want content + attribution", len(quoted))
	}
	if inlines, _ := quoted[0].AsInlines(); ast.FlattenInlines(inlines) != "included" {
		t.Errorf("content = %+v", quoted[0])
	}

	// Attribution is a line block holding a link back to the source.
	lines, ok := quoted[1].AsLineBlock()
	if !ok || len(lines) != 1 {
		t.Fatalf("attribution = %+v", quoted[1])
	}
	_, content, target, _, ok := lines[0][0].AsLink()
	if !ok || target != "/post/other/page" {
		t.Errorf("attribution target = %q", target)
	}
	if ast.FlattenInlines(content) != "(copied from another page)" {
		t.Errorf("attribution text = %q", ast.FlattenInlines(content))
	}
}

func headingDoc() *store.Record {
	return record(
		ast.Header(1, ast.Attr{ID: "a"}, []ast.Inline{ast.Str("A")}),
		ast.Para([]ast.Inline{ast.Str("a body")}),
		ast.Header(2, ast.Attr{ID: "b"}, []ast.Inline{ast.Str("B")}),
		ast.Para([]ast.Inline{ast.Str("b body")}),
		ast.Header(1, ast.Attr{ID: "c"}, []ast.Inline{ast.Str("C")}),
		ast.Para([]ast.Inline{ast.Str("c body")}),
	)
}

func includedTexts(t *testing.T, b ast.Block) []string {
	t.Helper()
	quoted, ok := b.AsBlockQuote()
	if !ok {
		t.Fatalf("block = %+v", b)
	}
	var out []string
	for _, q := range quoted[:len(quoted)-1] { // drop attribution
		switch q.T {
		case "Header":
			_, _, inlines, _ := q.AsHeader()
			out = append(out, ast.FlattenInlines(inlines))
		case "Para":
			inlines, _ := q.AsInlines()
			out = append(out, ast.FlattenInlines(inlines))
		}
	}
	return out
}

func TestInclude_HeadingWithSubheadings(t *testing.T) {
	docs := &fakeDocs{docs: map[string]*store.Record{"src": headingDoc()}}
	p := newPost(docs, &fakeRenderer{})

	doc := &ast.Doc{Blocks: []ast.Block{includeBlock("src: src\nheadings: [a]")}}
	p.Apply(context.Background(), doc, viewer.Viewer{})

	got := includedTexts(t, doc.Blocks[0])
	want := []string{"A", "a body", "B", "b body"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("texts = %v, want %v", got, want)
	}
}

func TestInclude_DeepHeadingOnly(t *testing.T) {
	docs := &fakeDocs{docs: map[string]*store.Record{"src": headingDoc()}}
	p := newPost(docs, &fakeRenderer{})

	doc := &ast.Doc{Blocks: []ast.Block{includeBlock("src: src\nheadings: [b]")}}
	p.Apply(context.Background(), doc, viewer.Viewer{})

	got := includedTexts(t, doc.Blocks[0])
	want := []string{"B", "b body"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("texts = %v, want %v", got, want)
	}
}

func TestInclude_MissingSourceLeftInPlace(t *testing.T) {
	p := newPost(&fakeDocs{docs: map[string]*store.Record{}}, &fakeRenderer{})
	doc := &ast.Doc{Blocks: []ast.Block{includeBlock("src: gone")}}
	p.Apply(context.Background(), doc, viewer.Viewer{})

	if _, _, ok := doc.Blocks[0].AsCodeBlock(); !ok {
		t.Errorf("missing source should leave block: %+v", doc.Blocks[0])
	}
}

func TestInclude_MalformedSpecLeftInPlace(t *testing.T) {
	p := newPost(&fakeDocs{docs: map[string]*store.Record{}}, &fakeRenderer{})
	doc := &ast.Doc{Blocks: []ast.Block{includeBlock(": not yaml :")}}
	p.Apply(context.Background(), doc, viewer.Viewer{})

	if _, _, ok := doc.Blocks[0].AsCodeBlock(); !ok {
		t.Errorf("malformed spec should leave block: %+v", doc.Blocks[0])
	}
}

func TestInclude_NoRecursiveExpansion(t *testing.T) {
	// The included document itself contains an include block; it must come
	// through as-is rather than expanding.
	docs := &fakeDocs{docs: map[string]*store.Record{
		"outer": record(includeBlock("src: inner")),
		"inner": record(ast.Para([]ast.Inline{ast.Str("deep")})),
	}}
	p := newPost(docs, &fakeRenderer{})

	doc := &ast.Doc{Blocks: []ast.Block{includeBlock("src: outer")}}
	p.Apply(context.Background(), doc, viewer.Viewer{})

	quoted, _ := doc.Blocks[0].AsBlockQuote()
	if attr, _, ok := quoted[0].AsCodeBlock(); !ok || !attr.HasClass("include") {
		t.Errorf("inner include expanded: %+v", quoted[0])
	}
}

func searchBlock(body string) ast.Block {
	return ast.CodeBlock(ast.Attr{Classes: []string{"search"}}, body)
}

func TestSearchFragment_Rendered(t *testing.T) {
	m := &models.ArticleMeta{
		Title:   "Hit",
		Tags:    []string{"x"},
		Created: models.MustDate("2024-01-01"),
		Updated: models.MustDate("2024-01-01"),
	}
	raw, _ := json.Marshal(m)
	engine := search.NewEngine(&staticRows{rows: []store.Row{{Path: "p", Meta: raw}}})
	p := NewPostprocessor(&fakeDocs{}, engine, &fakeRenderer{out: "<ul>rendered</ul>"}, discard())

	doc := &ast.Doc{Blocks: []ast.Block{searchBlock("tags: [x]")}}
	p.Apply(context.Background(), doc, viewer.Viewer{})

	format, text, ok := doc.Blocks[0].AsRawBlock()
	if !ok || format != "html" || text != "<ul>rendered</ul>" {
		t.Errorf("block = %+v", doc.Blocks[0])
	}
}

func TestSearchFragment_MalformedQueryLeftInPlace(t *testing.T) {
	p := newPost(&fakeDocs{}, &fakeRenderer{})
	doc := &ast.Doc{Blocks: []ast.Block{searchBlock("tags: [unclosed")}}
	p.Apply(context.Background(), doc, viewer.Viewer{})

	if _, _, ok := doc.Blocks[0].AsCodeBlock(); !ok {
		t.Errorf("malformed query should leave block: %+v", doc.Blocks[0])
	}
}

func TestSearchFragment_RenderFailureDiagnostic(t *testing.T) {
	engine := search.NewEngine(&staticRows{})
	p := NewPostprocessor(&fakeDocs{}, engine, &fakeRenderer{err: errors.New("bad template")}, discard())

	doc := &ast.Doc{Blocks: []ast.Block{
		searchBlock("sort_type: CreateDesc"),
		ast.Para([]ast.Inline{ast.Str("rest of page")}),
	}}
	p.Apply(context.Background(), doc, viewer.Viewer{})

	format, _, ok := doc.Blocks[0].AsRawBlock()
	if !ok || format != "html" {
		t.Errorf("failure should leave diagnostic raw block: %+v", doc.Blocks[0])
	}
	if doc.Blocks[1].T != "Para" {
		t.Errorf("rest of page touched: %+v", doc.Blocks[1])
	}
}
