package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/starford/wolog/internal/models"
	"github.com/starford/wolog/internal/store"
)

// RowSource yields undecoded search candidates with the path prefix and
// title substring filters already pushed down.
type RowSource interface {
	SearchRows(ctx context.Context, pathPrefix, titleSub string) ([]store.Row, error)
}

// Engine evaluates queries against the metadata store.
type Engine struct {
	rows RowSource
}

// NewEngine creates a search engine over the given row source.
func NewEngine(rows RowSource) *Engine {
	return &Engine{rows: rows}
}

// Search returns the ordered result list for a query. Candidates come from
// the store-side pushdown; the remaining filters (tags, post type, date
// bounds, hidden visibility, exclusion prefixes) run here over decoded
// metadata. The limit truncates the sorted result, never the candidate scan.
func (e *Engine) Search(ctx context.Context, q *Query) ([]Result, error) {
	rows, err := e.rows.SearchRows(ctx, q.SearchPath, q.TitleFilter)
	if err != nil {
		return nil, fmt.Errorf("search: fetch rows: %w", err)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		var meta models.ArticleMeta
		if err := json.Unmarshal(row.Meta, &meta); err != nil {
			// Undecodable metadata is schema drift; the store purges it
			// on the read path, so just skip the candidate here.
			continue
		}
		if !q.Matches(row.Path, &meta) {
			continue
		}
		results = append(results, Result{Path: row.Path, Meta: &meta})
	}

	sortType := q.SortType
	if sortType == "" {
		sortType = CreateDesc
	}
	sort.SliceStable(results, func(i, j int) bool {
		return sortType.Less(results[i], results[j])
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}
