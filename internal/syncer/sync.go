// Package syncer keeps the store convergent with the content root: walk the
// tree, rebuild what is stale, drop what is gone. Rebuilds of distinct
// documents are independent, so they fan out across a bounded worker group
// and one bad document never blocks the rest.
package syncer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/starford/wolog/internal/ast"
	"github.com/starford/wolog/internal/filter"
	"github.com/starford/wolog/internal/models"
	"github.com/starford/wolog/internal/notify"
	"github.com/starford/wolog/internal/store"
)

// Converter turns a source file into a document tree.
type Converter interface {
	Parse(ctx context.Context, path string) (*ast.Doc, error)
}

// Op labels a change event emitted after the store was modified.
type Op string

const (
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one observable store change.
type Event struct {
	Op   Op     `json:"op"`
	Path string `json:"path"`
}

// Options configures an Engine.
type Options struct {
	Root      string        // content root directory
	Extension string        // source file extension, e.g. ".md"
	Ignore    []string      // glob patterns relative to Root
	Skew      time.Duration // modtime slack before a file counts as stale
	Develop   bool          // serve and store documents not marked ready
	Workers   int           // rebuild concurrency, minimum 1
}

// Engine drives incremental synchronization between disk and store.
type Engine struct {
	opts     Options
	conv     Converter
	pre      *filter.Preprocessor
	store    store.Store
	notifier notify.Notifier
	onChange func(Event)
	logger   *slog.Logger
}

func New(opts Options, conv Converter, pre *filter.Preprocessor, st store.Store, notifier notify.Notifier, onChange func(Event), logger *slog.Logger) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if onChange == nil {
		onChange = func(Event) {}
	}
	return &Engine{
		opts:     opts,
		conv:     conv,
		pre:      pre,
		store:    st,
		notifier: notifier,
		onChange: onChange,
		logger:   logger,
	}
}

// SyncAll walks the content root and brings the store up to date:
//   - stale or unknown files are rebuilt and upserted
//   - stored documents whose file is gone are deleted
//
// A failing document is logged and skipped; the walk itself failing is the
// only fatal condition.
func (e *Engine) SyncAll(ctx context.Context) error {
	entries, err := e.store.ListIndex(ctx)
	if err != nil {
		return err
	}
	stored := make(map[string]store.IndexEntry, len(entries))
	for _, ent := range entries {
		stored[ent.Path] = ent
	}

	type task struct {
		path string // logical path
		file string // absolute file path
		mod  time.Time
	}
	var tasks []task
	disk := make(map[string]struct{}, len(stored))

	err = filepath.WalkDir(e.opts.Root, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if e.ignored(file) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(file, e.opts.Extension) || e.ignored(file) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		path := e.logicalPath(file)
		disk[path] = struct{}{}

		prev, known := stored[path]
		if known && prev.Meta != nil && !prev.Meta.AlwaysRerender &&
			info.ModTime().Sub(prev.Updated) <= e.opts.Skew {
			return nil
		}
		tasks = append(tasks, task{path: path, file: file, mod: info.ModTime()})
		return nil
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for _, t := range tasks {
		g.Go(func() error {
			prev := stored[t.path]
			if err := e.rebuild(gctx, t.path, t.file, t.mod, prev.Meta); err != nil {
				e.logger.Warn("sync: rebuild failed",
					slog.String("path", t.path),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Remove stored documents with no file behind them.
	for path := range stored {
		if _, ok := disk[path]; ok {
			continue
		}
		if err := e.store.Delete(ctx, path); err != nil {
			e.logger.Warn("sync: delete failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		e.logger.Debug("sync: removed stale", slog.String("path", path))
		e.onChange(Event{Op: OpDelete, Path: path})
	}
	return nil
}

// SyncOne is the watcher fast path for a single changed file. A vanished
// file deletes the stored document; anything else rebuilds it.
func (e *Engine) SyncOne(ctx context.Context, file string) error {
	if !strings.HasSuffix(file, e.opts.Extension) || e.ignored(file) {
		return nil
	}
	path := e.logicalPath(file)

	info, err := os.Stat(file)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := e.store.Delete(ctx, path); err != nil {
			return err
		}
		e.logger.Debug("sync: removed", slog.String("path", path))
		e.onChange(Event{Op: OpDelete, Path: path})
		return nil
	}

	var prevMeta *models.ArticleMeta
	if ent, err := e.store.ListIndex(ctx); err == nil {
		for _, p := range ent {
			if p.Path == path {
				prevMeta = p.Meta
				break
			}
		}
	}
	return e.rebuild(ctx, path, file, info.ModTime(), prevMeta)
}

// rebuild converts, preprocesses and stores one document, then notifies the
// union of its previous and current mention targets so removed targets
// learn about the change too. Documents not marked ready are skipped
// outside develop mode; a previously stored record stays in place.
func (e *Engine) rebuild(ctx context.Context, path, file string, mod time.Time, prev *models.ArticleMeta) error {
	doc, err := e.conv.Parse(ctx, file)
	if err != nil {
		return err
	}
	e.pre.Apply(ctx, doc)

	meta, err := models.MetaFromDoc(doc)
	if err != nil {
		return err
	}
	if !meta.Ready && !e.opts.Develop {
		e.logger.Debug("sync: not ready, skipped", slog.String("path", path))
		return nil
	}

	if err := e.store.Upsert(ctx, path, mod, doc, meta); err != nil {
		return err
	}
	e.logger.Debug("sync: indexed", slog.String("path", path))
	e.onChange(Event{Op: OpUpdate, Path: path})

	for _, target := range mentionTargets(prev, meta) {
		if ok := e.notifier.Notify(ctx, path, target); !ok {
			e.logger.Debug("sync: mention notification not delivered",
				slog.String("path", path),
				slog.String("target", target))
		}
	}
	return nil
}

// mentionTargets unions previous and current mentions, deduplicated, in
// first-seen order.
func mentionTargets(prev, cur *models.ArticleMeta) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(targets []string) {
		for _, t := range targets {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	if cur != nil {
		add(cur.Mentions)
	}
	if prev != nil {
		add(prev.Mentions)
	}
	return out
}

// logicalPath strips the content root and the source extension, so
// "<root>/notes/a.md" addresses as "notes/a".
func (e *Engine) logicalPath(file string) string {
	rel, err := filepath.Rel(e.opts.Root, file)
	if err != nil {
		rel = file
	}
	rel = strings.TrimSuffix(rel, e.opts.Extension)
	return filepath.ToSlash(rel)
}

func (e *Engine) ignored(file string) bool {
	rel, err := filepath.Rel(e.opts.Root, file)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range e.opts.Ignore {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
