// Package filter implements the tree-transform pipeline: preprocessing
// passes that run once at rebuild time (link/mention extraction, sandboxed
// dynamic-block execution) and postprocessing passes that run on every read
// (transclusion, embedded search fragments).
package filter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/starford/wolog/internal/ast"
	"github.com/starford/wolog/internal/models"
	"github.com/starford/wolog/internal/sandbox"
)

// ExecFailureMessage replaces the content of a dynamic block whose
// interpreter failed. Failure detail stays in the server logs.
const ExecFailureMessage = "Code block failed to execute, check server logs."

// Microformat classes that upgrade the post type of a mention link.
var mentionClasses = map[string]models.PostType{
	"u-like-of":     models.Like,
	"u-repost-of":   models.Repost,
	"u-in-reply-to": models.Reply,
}

// Preprocessor applies the rebuild-time passes. The result is persisted.
type Preprocessor struct {
	runner sandbox.Runner // nil when the sandbox capability is unavailable
	bridge string         // well-known mention target every document self-reports to
	logger *slog.Logger
}

// NewPreprocessor creates the rebuild-time pipeline. Pass a nil runner to
// disable dynamic execution (fail closed): dynamic blocks are then left
// untouched and logged.
func NewPreprocessor(runner sandbox.Runner, bridge string, logger *slog.Logger) *Preprocessor {
	return &Preprocessor{runner: runner, bridge: bridge, logger: logger}
}

// Apply runs the preprocessing passes in order, mutating doc.
func (p *Preprocessor) Apply(ctx context.Context, doc *ast.Doc) {
	p.extractLinks(doc)
	p.dynamic(ctx, doc)
}

// extractLinks walks every inline link. Links classed "mention" contribute
// their target to the mentions metadata list; the first microformat class on
// such a link upgrades the post type from Note (never downgrades). An
// explicit front-matter title with no stronger classification forces
// Article. The bridge endpoint is always appended so every document
// self-reports to it, and the derived post type selects a default template
// when the document declared none.
func (p *Preprocessor) extractLinks(doc *ast.Doc) {
	var mentions []string
	postType := models.Note
	ast.WalkLinks(doc.Blocks, func(attr ast.Attr, target string) {
		if !attr.HasClass("mention") {
			return
		}
		mentions = append(mentions, target)
		if postType != models.Note {
			return
		}
		for _, class := range attr.Classes {
			if upgraded, ok := mentionClasses[class]; ok {
				postType = upgraded
				break
			}
		}
	})
	if postType == models.Note && doc.Meta.Has("title") {
		postType = models.Article
	}
	if p.bridge != "" {
		mentions = append(mentions, p.bridge)
	}

	values := make([]ast.MetaValue, 0, len(mentions))
	for _, m := range mentions {
		values = append(values, ast.MetaString(m))
	}
	if existing, ok := doc.Meta["mentions"].AsList(); ok {
		values = append(values, existing...)
	}
	if doc.Meta == nil {
		doc.Meta = ast.Meta{}
	}
	doc.Meta["mentions"] = ast.MetaList(values)
	doc.Meta["post_type"] = ast.MetaString(string(postType))
	if !doc.Meta.Has("template") {
		doc.Meta["template"] = ast.MetaString(postType.TemplateName())
	}
}

// dynamic executes code blocks classed "dynamic" through the sandbox. On
// success the block text becomes captured stdout; for blocks additionally
// classed "pandoc_ast" the block is replaced by the deserialized tree
// fragment and the walk descends into the replacement. A
// failing or timed-out interpreter yields the fixed placeholder; the rest of
// the document is untouched.
func (p *Preprocessor) dynamic(ctx context.Context, doc *ast.Doc) {
	doc.Blocks = ast.WalkBlocks(doc.Blocks, func(b ast.Block) (ast.Block, bool) {
		attr, text, ok := b.AsCodeBlock()
		if !ok || !attr.HasClass("dynamic") {
			return b, true
		}
		if p.runner == nil {
			p.logger.Warn("filter: sandbox unavailable, dynamic block not executed")
			return b, true
		}
		interpreter := "bash"
		if v, ok := attr.Attribute("interpreter"); ok && v != "" {
			interpreter = v
		}
		out, err := p.runner.Run(ctx, interpreter, []byte(text))
		if err != nil {
			p.logger.Warn("filter: dynamic block failed",
				slog.String("interpreter", interpreter),
				slog.String("error", err.Error()))
			return ast.CodeBlock(attr, ExecFailureMessage), true
		}
		if attr.HasClass("pandoc_ast") {
			var frag ast.Block
			if err := json.Unmarshal(out, &frag); err != nil {
				p.logger.Warn("filter: dynamic block output is not a tree fragment",
					slog.String("error", err.Error()))
				return ast.CodeBlock(attr, ExecFailureMessage), true
			}
			return frag, true
		}
		return ast.CodeBlock(attr, string(out)), true
	})
}
