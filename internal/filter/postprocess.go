package filter

import (
	"context"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/starford/wolog/internal/ast"
	"github.com/starford/wolog/internal/render"
	"github.com/starford/wolog/internal/search"
	"github.com/starford/wolog/internal/store"
	"github.com/starford/wolog/internal/viewer"
)

// DocSource yields stored documents for transclusion.
type DocSource interface {
	Get(ctx context.Context, path string) (*store.Record, error)
}

// Postprocessor applies the read-time passes: include transclusion and
// embedded search fragments. Results are never persisted, so included
// content and search results stay fresh on every page view.
type Postprocessor struct {
	docs     DocSource
	engine   *search.Engine
	renderer render.Renderer
	logger   *slog.Logger
}

func NewPostprocessor(docs DocSource, engine *search.Engine, renderer render.Renderer, logger *slog.Logger) *Postprocessor {
	return &Postprocessor{docs: docs, engine: engine, renderer: renderer, logger: logger}
}

// Apply runs the postprocessing passes in order, mutating doc.
func (p *Postprocessor) Apply(ctx context.Context, doc *ast.Doc, v viewer.Viewer) {
	p.include(ctx, doc)
	p.searchFragments(ctx, doc, v)
}

type includeSpec struct {
	Src      string   `yaml:"src"`
	Headings []string `yaml:"headings"`
}

// include replaces code blocks classed "include" with a quotation of
// another stored document. The block body is a YAML mapping naming the
// source path and, optionally, the heading identifiers to extract. The
// spliced content is wrapped in a block quote ending with an attribution
// link back to the source. Replacements are not descended into, so a
// transcluded include block renders as-is rather than expanding
// recursively.
func (p *Postprocessor) include(ctx context.Context, doc *ast.Doc) {
	doc.Blocks = ast.WalkBlocks(doc.Blocks, func(b ast.Block) (ast.Block, bool) {
		attr, text, ok := b.AsCodeBlock()
		if !ok || !attr.HasClass("include") {
			return b, true
		}
		var spec includeSpec
		if err := yaml.Unmarshal([]byte(text), &spec); err != nil || spec.Src == "" {
			p.logger.Warn("filter: malformed include block", slog.String("body", text))
			return b, false
		}
		rec, err := p.docs.Get(ctx, spec.Src)
		if err != nil {
			p.logger.Warn("filter: include source unavailable",
				slog.String("src", spec.Src),
				slog.String("error", err.Error()))
			return b, false
		}
		blocks := rec.Doc.Blocks
		if len(spec.Headings) > 0 {
			blocks = extractHeadings(blocks, spec.Headings)
		}
		quoted := make([]ast.Block, 0, len(blocks)+1)
		quoted = append(quoted, blocks...)
		quoted = append(quoted, attribution(spec.Src))
		return ast.BlockQuote(quoted), false
	})
}

// extractHeadings keeps the top-level runs of blocks belonging to the
// requested heading identifiers. A matching heading starts a run; a later
// heading at the same or a shallower level that is not itself requested
// ends it. Deeper headings inside a run are always kept.
func extractHeadings(blocks []ast.Block, requested []string) []ast.Block {
	want := make(map[string]struct{}, len(requested))
	for _, id := range requested {
		want[id] = struct{}{}
	}
	var out []ast.Block
	taking := 0 // level of the heading that opened the current run, 0 when outside one
	for _, b := range blocks {
		level, attr, _, isHeader := b.AsHeader()
		if taking == 0 {
			if isHeader {
				if _, ok := want[attr.ID]; ok {
					taking = level
					out = append(out, b)
				}
			}
			continue
		}
		if isHeader && level <= taking {
			if _, ok := want[attr.ID]; !ok {
				taking = 0
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

func attribution(src string) ast.Block {
	link := ast.Link(ast.Attr{}, []ast.Inline{ast.Str("(copied from another page)")}, "/post/"+src, "")
	return ast.LineBlock([][]ast.Inline{{link}})
}

// searchFragments replaces code blocks classed "search" with the rendered
// result list of the query the block body describes. A malformed query is
// left in place; an engine or template failure leaves a diagnostic raw
// block so the rest of the page still renders.
func (p *Postprocessor) searchFragments(ctx context.Context, doc *ast.Doc, v viewer.Viewer) {
	doc.Blocks = ast.WalkBlocks(doc.Blocks, func(b ast.Block) (ast.Block, bool) {
		attr, text, ok := b.AsCodeBlock()
		if !ok || !attr.HasClass("search") {
			return b, true
		}
		var q search.Query
		if err := yaml.Unmarshal([]byte(text), &q); err != nil {
			p.logger.Warn("filter: malformed search block",
				slog.String("body", text),
				slog.String("error", err.Error()))
			return b, false
		}
		results, err := p.engine.Search(ctx, &q)
		if err != nil {
			p.logger.Warn("filter: embedded search failed", slog.String("error", err.Error()))
			return ast.RawBlock("html", "<p>Search failed, check server logs.</p>"), false
		}
		fresh := make(map[string]bool, len(results))
		for _, r := range results {
			fresh[r.Path] = v.IsNew(r.Path, r.Meta.Updated)
		}
		html, err := p.renderer.Render("frag-search-results", map[string]any{
			"articles":  results,
			"search":    q,
			"search_qs": q.QueryString(),
			"viewer":    v,
			"new":       fresh,
		})
		if err != nil {
			p.logger.Warn("filter: search fragment template failed", slog.String("error", err.Error()))
			return ast.RawBlock("html", "<p>Search failed, check server logs.</p>"), false
		}
		return ast.RawBlock("html", html), false
	})
}
