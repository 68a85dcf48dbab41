package ast

import (
	"encoding/json"
	"strings"
)

// Meta is the document-level metadata map populated by the converter from
// front matter, plus values the preprocessing passes write back.
type Meta map[string]MetaValue

// MetaValue is a tagged metadata value: MetaString, MetaBool, MetaList,
// MetaMap, MetaInlines or MetaBlocks.
type MetaValue struct {
	T string          `json:"t"`
	C json.RawMessage `json:"c,omitempty"`
}

// MetaString builds a string metadata value.
func MetaString(s string) MetaValue {
	return MetaValue{T: "MetaString", C: payload(s)}
}

// MetaList builds a list metadata value.
func MetaList(vs []MetaValue) MetaValue {
	if vs == nil {
		vs = []MetaValue{}
	}
	return MetaValue{T: "MetaList", C: payload(vs)}
}

// AsList returns the elements of a MetaList value.
func (v MetaValue) AsList() ([]MetaValue, bool) {
	if v.T != "MetaList" {
		return nil, false
	}
	var vs []MetaValue
	if err := json.Unmarshal(v.C, &vs); err != nil {
		return nil, false
	}
	return vs, true
}

// Has reports whether the key is present.
func (m Meta) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// ToMap flattens the metadata map into plain values: strings, bools, lists
// and maps. MetaInlines and MetaBlocks collapse to their plain-text
// projection, matching what the converter's front matter produces for
// scalar-looking fields.
func (m Meta) ToMap() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.flatten()
	}
	return out
}

func (v MetaValue) flatten() any {
	switch v.T {
	case "MetaString":
		var s string
		_ = json.Unmarshal(v.C, &s)
		return s
	case "MetaBool":
		var b bool
		_ = json.Unmarshal(v.C, &b)
		return b
	case "MetaList":
		var vs []MetaValue
		if json.Unmarshal(v.C, &vs) != nil {
			return []any{}
		}
		out := make([]any, len(vs))
		for i, item := range vs {
			out[i] = item.flatten()
		}
		return out
	case "MetaMap":
		var mm map[string]MetaValue
		if json.Unmarshal(v.C, &mm) != nil {
			return map[string]any{}
		}
		out := make(map[string]any, len(mm))
		for k, item := range mm {
			out[k] = item.flatten()
		}
		return out
	case "MetaInlines":
		var inlines []Inline
		if json.Unmarshal(v.C, &inlines) != nil {
			return ""
		}
		return FlattenInlines(inlines)
	case "MetaBlocks":
		var blocks []Block
		if json.Unmarshal(v.C, &blocks) != nil {
			return ""
		}
		var sb strings.Builder
		for _, b := range blocks {
			sb.WriteString(blockText(b))
		}
		return sb.String()
	default:
		return nil
	}
}

// FlattenInlines projects an inline sequence to plain text. Only literal
// text, spaces and breaks contribute; styled containers are skipped.
func FlattenInlines(inlines []Inline) string {
	var sb strings.Builder
	for _, il := range inlines {
		switch il.T {
		case "Str":
			if s, ok := il.AsStr(); ok {
				sb.WriteString(s)
			}
		case "Space":
			sb.WriteString(" ")
		case "SoftBreak", "LineBreak":
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func blockText(b Block) string {
	switch b.T {
	case "Para", "Plain":
		inlines, _ := b.AsInlines()
		return FlattenInlines(inlines)
	case "LineBlock":
		lines, _ := b.AsLineBlock()
		var sb strings.Builder
		for _, line := range lines {
			sb.WriteString(FlattenInlines(line))
			sb.WriteString("\n")
		}
		return sb.String()
	case "RawBlock":
		_, text, _ := b.AsRawBlock()
		return text
	case "BlockQuote":
		nested, _ := b.AsBlockQuote()
		var sb strings.Builder
		for _, inner := range nested {
			sb.WriteString(blockText(inner))
			sb.WriteString("\n")
		}
		return sb.String()
	default:
		return ""
	}
}
