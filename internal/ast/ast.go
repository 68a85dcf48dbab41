// Package ast models the pandoc JSON document tree: a metadata map plus an
// ordered block sequence. Node kinds the pipeline rewrites get typed
// constructors and accessors; everything else is carried opaquely so a
// document round-trips through the store without loss.
package ast

import (
	"encoding/json"
	"fmt"
)

// Doc is one converted document.
type Doc struct {
	Version json.RawMessage `json:"pandoc-api-version"`
	Meta    Meta            `json:"meta"`
	Blocks  []Block         `json:"blocks"`
}

// Block is a block-level node in tagged-envelope form. C holds the raw
// payload whose shape depends on T.
type Block struct {
	T string          `json:"t"`
	C json.RawMessage `json:"c,omitempty"`
}

// Inline is an inline node; same envelope as Block.
type Inline struct {
	T string          `json:"t"`
	C json.RawMessage `json:"c,omitempty"`
}

// Attr is pandoc's (identifier, classes, key-value pairs) triple. It is
// serialized in tuple form: ["id", ["class", ...], [["key", "value"], ...]].
type Attr struct {
	ID      string
	Classes []string
	KV      [][2]string
}

// MarshalJSON encodes the attr in pandoc's tuple form.
func (a Attr) MarshalJSON() ([]byte, error) {
	classes := a.Classes
	if classes == nil {
		classes = []string{}
	}
	kv := a.KV
	if kv == nil {
		kv = [][2]string{}
	}
	return json.Marshal([]any{a.ID, classes, kv})
}

// UnmarshalJSON decodes the tuple form.
func (a *Attr) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("ast: attr: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("ast: attr: want 3 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &a.ID); err != nil {
		return fmt.Errorf("ast: attr id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &a.Classes); err != nil {
		return fmt.Errorf("ast: attr classes: %w", err)
	}
	if err := json.Unmarshal(raw[2], &a.KV); err != nil {
		return fmt.Errorf("ast: attr pairs: %w", err)
	}
	return nil
}

// HasClass reports whether the attr carries the given class.
func (a Attr) HasClass(name string) bool {
	for _, c := range a.Classes {
		if c == name {
			return true
		}
	}
	return false
}

// Attribute returns the value of a key-value attribute.
func (a Attr) Attribute(key string) (string, bool) {
	for _, kv := range a.KV {
		if kv[0] == key {
			return kv[1], true
		}
	}
	return "", false
}

// tuple marshals payload parts into a raw tuple. Marshalling of the node
// types defined here cannot fail.
func tuple(parts ...any) json.RawMessage {
	b, _ := json.Marshal(parts)
	return b
}

func payload(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// Para builds a paragraph block.
func Para(inlines []Inline) Block {
	return Block{T: "Para", C: payload(inlines)}
}

// Plain builds a plain (unwrapped) inline sequence block.
func Plain(inlines []Inline) Block {
	return Block{T: "Plain", C: payload(inlines)}
}

// AsInlines returns the inline sequence of a Para or Plain block.
func (b Block) AsInlines() ([]Inline, bool) {
	if b.T != "Para" && b.T != "Plain" {
		return nil, false
	}
	var inlines []Inline
	if err := json.Unmarshal(b.C, &inlines); err != nil {
		return nil, false
	}
	return inlines, true
}

// Header builds a heading block.
func Header(level int, attr Attr, inlines []Inline) Block {
	return Block{T: "Header", C: tuple(level, attr, inlines)}
}

// AsHeader unpacks a heading block into level, attr and inline content.
func (b Block) AsHeader() (int, Attr, []Inline, bool) {
	if b.T != "Header" {
		return 0, Attr{}, nil, false
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b.C, &raw); err != nil || len(raw) != 3 {
		return 0, Attr{}, nil, false
	}
	var level int
	var attr Attr
	var inlines []Inline
	if json.Unmarshal(raw[0], &level) != nil ||
		json.Unmarshal(raw[1], &attr) != nil ||
		json.Unmarshal(raw[2], &inlines) != nil {
		return 0, Attr{}, nil, false
	}
	return level, attr, inlines, true
}

// CodeBlock builds a code block with the given attr and raw text.
func CodeBlock(attr Attr, text string) Block {
	return Block{T: "CodeBlock", C: tuple(attr, text)}
}

// AsCodeBlock unpacks a code block into attr and raw text.
func (b Block) AsCodeBlock() (Attr, string, bool) {
	if b.T != "CodeBlock" {
		return Attr{}, "", false
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b.C, &raw); err != nil || len(raw) != 2 {
		return Attr{}, "", false
	}
	var attr Attr
	var text string
	if json.Unmarshal(raw[0], &attr) != nil || json.Unmarshal(raw[1], &text) != nil {
		return Attr{}, "", false
	}
	return attr, text, true
}

// BlockQuote builds a block quote wrapping nested blocks.
func BlockQuote(blocks []Block) Block {
	if blocks == nil {
		blocks = []Block{}
	}
	return Block{T: "BlockQuote", C: payload(blocks)}
}

// AsBlockQuote returns the nested blocks of a block quote.
func (b Block) AsBlockQuote() ([]Block, bool) {
	if b.T != "BlockQuote" {
		return nil, false
	}
	var blocks []Block
	if err := json.Unmarshal(b.C, &blocks); err != nil {
		return nil, false
	}
	return blocks, true
}

// LineBlock builds a line block from inline lines.
func LineBlock(lines [][]Inline) Block {
	return Block{T: "LineBlock", C: payload(lines)}
}

// AsLineBlock returns the inline lines of a line block.
func (b Block) AsLineBlock() ([][]Inline, bool) {
	if b.T != "LineBlock" {
		return nil, false
	}
	var lines [][]Inline
	if err := json.Unmarshal(b.C, &lines); err != nil {
		return nil, false
	}
	return lines, true
}

// RawBlock builds a raw block for the given target format.
func RawBlock(format, text string) Block {
	return Block{T: "RawBlock", C: tuple(format, text)}
}

// AsRawBlock unpacks a raw block into format tag and raw text.
func (b Block) AsRawBlock() (string, string, bool) {
	if b.T != "RawBlock" {
		return "", "", false
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b.C, &raw); err != nil || len(raw) != 2 {
		return "", "", false
	}
	var format, text string
	if json.Unmarshal(raw[0], &format) != nil || json.Unmarshal(raw[1], &text) != nil {
		return "", "", false
	}
	return format, text, true
}

// Str builds a literal text inline.
func Str(s string) Inline {
	return Inline{T: "Str", C: payload(s)}
}

// AsStr returns the text of a Str inline.
func (il Inline) AsStr() (string, bool) {
	if il.T != "Str" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(il.C, &s); err != nil {
		return "", false
	}
	return s, true
}

// Space builds a word-separator inline.
func Space() Inline { return Inline{T: "Space"} }

// LineBreak builds a hard line break inline.
func LineBreak() Inline { return Inline{T: "LineBreak"} }

// Link builds a link inline with display content, target URL and title.
func Link(attr Attr, content []Inline, target, title string) Inline {
	if content == nil {
		content = []Inline{}
	}
	return Inline{T: "Link", C: tuple(attr, content, [2]string{target, title})}
}

// AsLink unpacks a link inline into attr, display content, target and title.
func (il Inline) AsLink() (Attr, []Inline, string, string, bool) {
	if il.T != "Link" {
		return Attr{}, nil, "", "", false
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(il.C, &raw); err != nil || len(raw) != 3 {
		return Attr{}, nil, "", "", false
	}
	var attr Attr
	var content []Inline
	var target [2]string
	if json.Unmarshal(raw[0], &attr) != nil ||
		json.Unmarshal(raw[1], &content) != nil ||
		json.Unmarshal(raw[2], &target) != nil {
		return Attr{}, nil, "", "", false
	}
	return attr, content, target[0], target[1], true
}
