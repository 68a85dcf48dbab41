// Package watch reacts to filesystem changes in the content root and feeds
// them into the synchronization engine, so edits land in the store without
// waiting for the next periodic pass.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/wolog/internal/syncer"
)

// Watch starts an fsnotify watcher on the content root and processes file
// change events until ctx is cancelled.
//
// New directories created at runtime are added to the watch list and their
// files synchronized. Rename events fire on the old path only, so besides
// the immediate per-file sync a short debounced full pass reconciles any
// stragglers.
func Watch(ctx context.Context, engine *syncer.Engine, root, ext string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := engine.SyncAll(ctx); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					syncNewDir(ctx, engine, ev.Name, ext, logger)
					continue
				}
			}

			if !strings.HasSuffix(ev.Name, ext) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) != 0:
				// SyncOne stats the file itself: present means rebuild,
				// gone means delete.
				if err := engine.SyncOne(ctx, ev.Name); err != nil {
					logger.Warn("watcher: sync failed",
						slog.String("path", ev.Name),
						slog.String("error", err.Error()))
				}

			case ev.Op&fsnotify.Rename != 0:
				// The new path, if still inside a watched dir, arrives as
				// a separate Create event. Handle the old path now and
				// schedule a reconciliation for anything we missed.
				if err := engine.SyncOne(ctx, ev.Name); err != nil {
					logger.Warn("watcher: rename sync failed",
						slog.String("path", ev.Name),
						slog.String("error", err.Error()))
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// syncNewDir synchronizes any source files found in a newly created
// directory; they predate the watch on it, so no events fire for them.
func syncNewDir(ctx context.Context, engine *syncer.Engine, dir, ext string, logger *slog.Logger) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ext) {
			return nil
		}
		if syncErr := engine.SyncOne(ctx, path); syncErr != nil {
			logger.Warn("watcher: sync from new dir failed",
				slog.String("path", path),
				slog.String("error", syncErr.Error()))
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
