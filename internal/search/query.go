// Package search evaluates structured metadata queries: composable filter
// predicates, six total sort orders and a lossless query-string codec used
// for deep links, feeds and embedded search directives.
package search

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/starford/wolog/internal/models"
)

// SortType selects one of the six total orders over search results.
type SortType string

// Sort orders. CreateDesc is the default.
const (
	CreateAsc  SortType = "CreateAsc"
	CreateDesc SortType = "CreateDesc"
	UpdateAsc  SortType = "UpdateAsc"
	UpdateDesc SortType = "UpdateDesc"
	NameAsc    SortType = "NameAsc"
	NameDesc   SortType = "NameDesc"
)

// ParseSortType parses a sort order name; "" parses to the default.
func ParseSortType(s string) (SortType, error) {
	switch SortType(s) {
	case "":
		return CreateDesc, nil
	case CreateAsc, CreateDesc, UpdateAsc, UpdateDesc, NameAsc, NameDesc:
		return SortType(s), nil
	}
	return "", fmt.Errorf("search: unknown sort type %q", s)
}

// Less is the strict comparator for the order. Ties compare equal, so a
// stable sort keeps them in input order.
func (s SortType) Less(l, r Result) bool {
	switch s {
	case CreateAsc:
		return l.Meta.Created.Before(r.Meta.Created.Time)
	case UpdateAsc:
		return l.Meta.Updated.Before(r.Meta.Updated.Time)
	case UpdateDesc:
		return r.Meta.Updated.Before(l.Meta.Updated.Time)
	case NameAsc:
		return l.Meta.Title < r.Meta.Title
	case NameDesc:
		return r.Meta.Title < l.Meta.Title
	default: // CreateDesc
		return r.Meta.Created.Before(l.Meta.Created.Time)
	}
}

// Result is one search hit.
type Result struct {
	Path string              `json:"path"`
	Meta *models.ArticleMeta `json:"meta"`
}

// Query is a structured metadata search. The zero value matches every
// visible document sorted by creation date, newest first. Date bounds are
// inclusive; a zero Date means no constraint on that side.
type Query struct {
	SearchPath    string          `json:"search_path,omitempty" yaml:"search_path"`
	ExcludePaths  []string        `json:"exclude_paths,omitempty" yaml:"exclude_paths"`
	Tags          []string        `json:"tags,omitempty" yaml:"tags"`
	PostType      models.PostType `json:"post_type,omitempty" yaml:"post_type"`
	CreatedAfter  models.Date     `json:"created_after,omitempty" yaml:"created_after"`
	CreatedBefore models.Date     `json:"created_before,omitempty" yaml:"created_before"`
	UpdatedAfter  models.Date     `json:"updated_after,omitempty" yaml:"updated_after"`
	UpdatedBefore models.Date     `json:"updated_before,omitempty" yaml:"updated_before"`
	TitleFilter   string          `json:"title_filter,omitempty" yaml:"title_filter"`
	SortType      SortType        `json:"sort_type" yaml:"sort_type"`
	Limit         int             `json:"limit,omitempty" yaml:"limit"`
	IgnoreHidden  bool            `json:"ignore_hidden,omitempty" yaml:"ignore_hidden"`
}

// Matches reports whether a document satisfies every active filter.
func (q *Query) Matches(path string, m *models.ArticleMeta) bool {
	if !strings.HasPrefix(path, q.SearchPath) {
		return false
	}
	for _, ex := range q.ExcludePaths {
		if strings.HasPrefix(path, ex) {
			return false
		}
	}
	for _, want := range q.Tags {
		if !containsString(m.Tags, want) {
			return false
		}
	}
	if q.PostType != "" && m.PostType != q.PostType {
		return false
	}
	if !inDateRange(m.Created, q.CreatedAfter, q.CreatedBefore) {
		return false
	}
	if !inDateRange(m.Updated, q.UpdatedAfter, q.UpdatedBefore) {
		return false
	}
	if q.TitleFilter != "" && !strings.Contains(m.Title, q.TitleFilter) {
		return false
	}
	if m.Hidden && !q.IgnoreHidden {
		return false
	}
	return true
}

func containsString(haystack []string, want string) bool {
	for _, s := range haystack {
		if s == want {
			return true
		}
	}
	return false
}

func inDateRange(d, after, before models.Date) bool {
	if !after.IsZero() && d.Before(after.Time) {
		return false
	}
	if !before.IsZero() && d.After(before.Time) {
		return false
	}
	return true
}

// Values encodes the query as flat URL parameters. Default-valued fields are
// omitted except sort_type, which is always carried.
func (q *Query) Values() url.Values {
	v := url.Values{}
	sort := q.SortType
	if sort == "" {
		sort = CreateDesc
	}
	v.Set("sort_type", string(sort))
	if q.SearchPath != "" {
		v.Set("search_path", q.SearchPath)
	}
	for _, p := range q.ExcludePaths {
		v.Add("exclude_path", p)
	}
	for _, t := range q.Tags {
		v.Add("tag", t)
	}
	if q.PostType != "" {
		v.Set("post_type", string(q.PostType))
	}
	for _, d := range []struct {
		key  string
		date models.Date
	}{
		{"created_after", q.CreatedAfter},
		{"created_before", q.CreatedBefore},
		{"updated_after", q.UpdatedAfter},
		{"updated_before", q.UpdatedBefore},
	} {
		if !d.date.IsZero() {
			v.Set(d.key, d.date.String())
		}
	}
	if q.TitleFilter != "" {
		v.Set("title_filter", q.TitleFilter)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.IgnoreHidden {
		v.Set("ignore_hidden", "true")
	}
	return v
}

// QueryString is the encoded parameter form, suitable for deep links.
func (q *Query) QueryString() string {
	return q.Values().Encode()
}

// ParseQuery reconstructs a query from URL parameters. Absent parameters
// reconstruct each field's default, so Values and ParseQuery round-trip.
func ParseQuery(v url.Values) (*Query, error) {
	q := &Query{
		SearchPath:   v.Get("search_path"),
		ExcludePaths: v["exclude_path"],
		Tags:         v["tag"],
		TitleFilter:  v.Get("title_filter"),
	}
	sort, err := ParseSortType(v.Get("sort_type"))
	if err != nil {
		return nil, err
	}
	q.SortType = sort

	if pt := v.Get("post_type"); pt != "" {
		parsed, err := models.ParsePostType(pt)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		q.PostType = parsed
	}
	for _, d := range []struct {
		key  string
		dest *models.Date
	}{
		{"created_after", &q.CreatedAfter},
		{"created_before", &q.CreatedBefore},
		{"updated_after", &q.UpdatedAfter},
		{"updated_before", &q.UpdatedBefore},
	} {
		if s := v.Get(d.key); s != "" {
			parsed, err := models.ParseDate(s)
			if err != nil {
				return nil, fmt.Errorf("search: %s: %w", d.key, err)
			}
			*d.dest = parsed
		}
	}
	if s := v.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("search: bad limit %q", s)
		}
		q.Limit = limit
	}
	if s := v.Get("ignore_hidden"); s != "" {
		q.IgnoreHidden = s == "true" || s == "1"
	}
	return q, nil
}
