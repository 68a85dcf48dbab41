// Package models holds the document metadata derived from a converted tree:
// the persisted ArticleMeta record, post-type classification, civil dates and
// the table of contents.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/starford/wolog/internal/ast"
)

// DefaultTitle is used when front matter carries no title.
const DefaultTitle = "Untitled Page"

// ErrMissingDates reports front matter without the required created/updated
// dates.
var ErrMissingDates = errors.New("models: created and updated dates are required")

// ArticleMeta is the document-level metadata persisted alongside the tree.
// Unknown front-matter fields pass through via Extra and are flattened back
// into the JSON object on marshal.
type ArticleMeta struct {
	Title          string         `json:"title"`
	PostType       PostType       `json:"post_type"`
	Blurb          string         `json:"blurb,omitempty"`
	Tags           []string       `json:"tags"`
	Template       string         `json:"template"`
	Toc            []Toc          `json:"toc,omitempty"`
	ExcludeFromRSS bool           `json:"exclude_from_rss,omitempty"`
	Hidden         bool           `json:"hidden,omitempty"`
	Updated        Date           `json:"updated"`
	Created        Date           `json:"created"`
	Ready          bool           `json:"ready,omitempty"`
	AlwaysRerender bool           `json:"always_rerender,omitempty"`
	Mentioners     []string       `json:"mentioners,omitempty"`
	Mentions       []string       `json:"mentions,omitempty"`
	Extra          map[string]any `json:"-"`
}

// articleMetaAlias breaks the MarshalJSON/UnmarshalJSON recursion.
type articleMetaAlias ArticleMeta

var knownMetaKeys = map[string]struct{}{
	"title": {}, "post_type": {}, "blurb": {}, "tags": {}, "template": {},
	"toc": {}, "exclude_from_rss": {}, "hidden": {}, "updated": {},
	"created": {}, "ready": {}, "always_rerender": {}, "mentioners": {},
	"mentions": {},
}

// MarshalJSON flattens Extra into the top-level object.
func (m ArticleMeta) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(articleMetaAlias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return base, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(base, &obj); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if _, known := knownMetaKeys[k]; known {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		obj[k] = raw
	}
	return json.Marshal(obj)
}

// UnmarshalJSON captures unknown top-level keys into Extra.
func (m *ArticleMeta) UnmarshalJSON(data []byte) error {
	var alias articleMetaAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*m = ArticleMeta(alias)
	for k, v := range obj {
		if _, known := knownMetaKeys[k]; known {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = val
	}
	return nil
}

// MetaFromDoc derives ArticleMeta from a preprocessed document: the flattened
// metadata map is decoded into the struct, defaults are applied, and the
// table of contents is derived from the document's headings when front
// matter declared none. Missing created/updated dates are a validation error;
// the caller skips the document.
func MetaFromDoc(doc *ast.Doc) (*ArticleMeta, error) {
	raw, err := json.Marshal(doc.Meta.ToMap())
	if err != nil {
		return nil, fmt.Errorf("models: flatten metadata: %w", err)
	}
	var m ArticleMeta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("models: decode metadata: %w", err)
	}
	if m.Created.IsZero() || m.Updated.IsZero() {
		return nil, ErrMissingDates
	}
	if m.Title == "" {
		m.Title = DefaultTitle
	}
	if m.PostType == "" {
		m.PostType = Note
	}
	if m.Template == "" {
		m.Template = m.PostType.TemplateName()
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if len(m.Toc) == 0 {
		m.Toc = TocFromBlocks(doc.Blocks)
	}
	return &m, nil
}

// Toc is one table-of-contents entry: either a leaf text entry (Text set) or
// a heading entry with a label, an anchor and nested subheadings.
type Toc struct {
	Text        string `json:"text,omitempty"`
	Label       string `json:"label,omitempty"`
	Anchor      string `json:"anchor,omitempty"`
	Subheadings []Toc  `json:"subheadings,omitempty"`
}

// String renders the entry as an HTML list-item fragment.
func (t Toc) String() string {
	if t.Text != "" {
		return fmt.Sprintf("<li>%s</li>", html.EscapeString(t.Text))
	}
	link := fmt.Sprintf("<a href=\"#%s\">%s</a>", t.Anchor, html.EscapeString(t.Label))
	if len(t.Subheadings) == 0 {
		return fmt.Sprintf("<li>%s</li>", link)
	}
	var sb strings.Builder
	for _, sub := range t.Subheadings {
		sb.WriteString(sub.String())
	}
	return fmt.Sprintf("<li>%s<ul>%s</ul></li>", link, sb.String())
}

// TocHTML renders a toc forest as concatenated list items.
func TocHTML(toc []Toc) string {
	var sb strings.Builder
	for _, t := range toc {
		sb.WriteString(t.String())
	}
	return sb.String()
}

type heading struct {
	level  int
	label  string
	anchor string
}

// TocFromBlocks derives the table of contents from the document's heading
// blocks, nesting entries by heading level.
func TocFromBlocks(blocks []ast.Block) []Toc {
	var hs []heading
	for _, b := range blocks {
		level, attr, inlines, ok := b.AsHeader()
		if !ok {
			continue
		}
		hs = append(hs, heading{
			level:  level,
			label:  strings.TrimSpace(ast.FlattenInlines(inlines)),
			anchor: attr.ID,
		})
	}
	toc, _ := nestHeadings(hs, 0, 0)
	return toc
}

// nestHeadings builds sibling entries starting at index i whose level is
// deeper than parentLevel; it returns the entries and the next unconsumed
// index.
func nestHeadings(hs []heading, i, parentLevel int) ([]Toc, int) {
	var out []Toc
	for i < len(hs) {
		h := hs[i]
		if h.level <= parentLevel {
			break
		}
		children, next := nestHeadings(hs, i+1, h.level)
		out = append(out, Toc{Label: h.label, Anchor: h.anchor, Subheadings: children})
		i = next
	}
	return out, i
}
