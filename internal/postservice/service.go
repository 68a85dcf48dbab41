// Package postservice coordinates the read path: fetch a stored document,
// run the read-time transforms, convert it to HTML and wrap it in a page
// template. It is the layer the HTTP handlers and the MCP tools talk to.
package postservice

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/starford/wolog/internal/filter"
	"github.com/starford/wolog/internal/models"
	"github.com/starford/wolog/internal/pandoc"
	"github.com/starford/wolog/internal/render"
	"github.com/starford/wolog/internal/search"
	"github.com/starford/wolog/internal/store"
	"github.com/starford/wolog/internal/viewer"
)

// feedLimit caps feed length regardless of what the query asks for.
const feedLimit = 32

// Service serves pages, listings and feeds from the store.
type Service struct {
	store    store.Store
	conv     pandoc.Converter
	post     *filter.Postprocessor
	engine   *search.Engine
	renderer render.Renderer
	logger   *slog.Logger
}

func NewService(st store.Store, conv pandoc.Converter, post *filter.Postprocessor, engine *search.Engine, renderer render.Renderer, logger *slog.Logger) *Service {
	return &Service{store: st, conv: conv, post: post, engine: engine, renderer: renderer, logger: logger}
}

// Page fetches a document, applies the read-time transforms, converts the
// tree to HTML and renders it through the template the document declares.
// With bare set, the converted HTML is returned without the page template,
// for embedding elsewhere. Hidden documents stay directly addressable; they
// are only excluded from listings.
func (s *Service) Page(ctx context.Context, path string, v viewer.Viewer, bare bool) (string, error) {
	rec, err := s.store.Get(ctx, path)
	if err != nil {
		return "", err
	}

	mentions, err := s.store.Mentioners(ctx, path)
	if err != nil {
		return "", err
	}
	mentioners := make([]string, 0, len(mentions))
	for _, m := range mentions {
		mentioners = append(mentioners, m.FromURL)
	}
	rec.Meta.Mentioners = mentioners

	s.post.Apply(ctx, rec.Doc, v)

	content, err := s.conv.Render(ctx, rec.Doc)
	if err != nil {
		return "", fmt.Errorf("postservice: convert %s: %w", path, err)
	}
	if bare {
		return content, nil
	}

	return s.renderer.Render(rec.Meta.Template, map[string]any{
		"path":       path,
		"meta":       rec.Meta,
		"content":    template.HTML(content),
		"toc":        template.HTML(models.TocHTML(rec.Meta.Toc)),
		"mentioners": mentioners,
		"viewer":     v,
	})
}

// Search runs a query and renders the result listing alongside the site-wide
// tag counts.
func (s *Service) Search(ctx context.Context, q *search.Query, v viewer.Viewer) (string, error) {
	results, err := s.engine.Search(ctx, q)
	if err != nil {
		return "", err
	}
	tags, err := s.store.TagCounts(ctx)
	if err != nil {
		return "", err
	}
	fresh := make(map[string]bool, len(results))
	for _, r := range results {
		fresh[r.Path] = v.IsNew(r.Path, r.Meta.Updated)
	}
	return s.renderer.Render("page-list", map[string]any{
		"articles":  results,
		"search":    q,
		"search_qs": q.QueryString(),
		"tags":      tags,
		"viewer":    v,
		"new":       fresh,
	})
}

// Feed renders the syndication feed for a query. Feed consumers poll, so
// the result is forced to newest-created-first, capped, and stripped of
// documents opting out of syndication.
func (s *Service) Feed(ctx context.Context, q *search.Query) (string, error) {
	q.SortType = search.CreateDesc
	if q.Limit <= 0 || q.Limit > feedLimit {
		q.Limit = feedLimit
	}
	results, err := s.engine.Search(ctx, q)
	if err != nil {
		return "", err
	}
	kept := results[:0]
	for _, r := range results {
		if r.Meta.ExcludeFromRSS {
			continue
		}
		kept = append(kept, r)
	}
	return s.renderer.Render("page-list.atom", map[string]any{
		"articles":  kept,
		"search":    q,
		"search_qs": q.QueryString(),
	})
}

// TagCounts exposes the per-tag document counts.
func (s *Service) TagCounts(ctx context.Context) (map[string]int, error) {
	return s.store.TagCounts(ctx)
}
