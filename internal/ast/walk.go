package ast

import "encoding/json"

// WalkBlocks rewrites a block slice depth-first. fn receives each block and
// returns its replacement plus whether to descend into that node's children.
// The containers the pipeline understands (BlockQuote, Div, BulletList,
// OrderedList) are traversed; every other kind is opaque and kept as-is.
func WalkBlocks(blocks []Block, fn func(Block) (Block, bool)) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		nb, descend := fn(b)
		if descend {
			nb = walkChildren(nb, fn)
		}
		out[i] = nb
	}
	return out
}

func walkChildren(b Block, fn func(Block) (Block, bool)) Block {
	switch b.T {
	case "BlockQuote":
		inner, ok := b.AsBlockQuote()
		if !ok {
			return b
		}
		return BlockQuote(WalkBlocks(inner, fn))

	case "Div":
		var raw []json.RawMessage
		if json.Unmarshal(b.C, &raw) != nil || len(raw) != 2 {
			return b
		}
		var inner []Block
		if json.Unmarshal(raw[1], &inner) != nil {
			return b
		}
		return Block{T: b.T, C: tuple(raw[0], WalkBlocks(inner, fn))}

	case "BulletList":
		var items [][]Block
		if json.Unmarshal(b.C, &items) != nil {
			return b
		}
		for i, item := range items {
			items[i] = WalkBlocks(item, fn)
		}
		return Block{T: b.T, C: payload(items)}

	case "OrderedList":
		var raw []json.RawMessage
		if json.Unmarshal(b.C, &raw) != nil || len(raw) != 2 {
			return b
		}
		var items [][]Block
		if json.Unmarshal(raw[1], &items) != nil {
			return b
		}
		for i, item := range items {
			items[i] = WalkBlocks(item, fn)
		}
		return Block{T: b.T, C: tuple(raw[0], items)}
	}
	return b
}

// WalkLinks visits every Link inline in the tree, however deeply nested.
// The scan runs over the decoded raw JSON form so that inline containers the
// typed API does not model (Emph, Span, quoted text, ...) are still covered.
// Sibling order is preserved; the scan never mutates.
func WalkLinks(blocks []Block, fn func(attr Attr, target string)) {
	raw, err := json.Marshal(blocks)
	if err != nil {
		return
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return
	}
	scanLinks(tree, fn)
}

func scanLinks(node any, fn func(attr Attr, target string)) {
	switch n := node.(type) {
	case map[string]any:
		if n["t"] == "Link" {
			if c, ok := n["c"].([]any); ok && len(c) == 3 {
				attr := attrFromAny(c[0])
				if target, ok := linkTarget(c[2]); ok {
					fn(attr, target)
				}
			}
		}
		// Children only ever live under "c"; "t" is a leaf tag.
		scanLinks(n["c"], fn)
	case []any:
		for _, v := range n {
			scanLinks(v, fn)
		}
	}
}

func attrFromAny(v any) Attr {
	parts, ok := v.([]any)
	if !ok || len(parts) != 3 {
		return Attr{}
	}
	var attr Attr
	attr.ID, _ = parts[0].(string)
	if classes, ok := parts[1].([]any); ok {
		for _, c := range classes {
			if s, ok := c.(string); ok {
				attr.Classes = append(attr.Classes, s)
			}
		}
	}
	if pairs, ok := parts[2].([]any); ok {
		for _, p := range pairs {
			if kv, ok := p.([]any); ok && len(kv) == 2 {
				k, _ := kv[0].(string)
				val, _ := kv[1].(string)
				attr.KV = append(attr.KV, [2]string{k, val})
			}
		}
	}
	return attr
}

func linkTarget(v any) (string, bool) {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		return "", false
	}
	target, ok := pair[0].(string)
	return target, ok
}
