package ocr

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/attic/internal/vaultpath"
)

const debounceDelay = 500 * time.Millisecond

// Watch starts an fsnotify watcher on the OCR watch folder below vaultRoot
// and feeds new or changed transcribable files to the pipeline until ctx is
// cancelled. Events are debounced so a file being written is processed once.
// enabled is consulted per event; when it reports false events are dropped.
//
// New directories created at runtime are automatically added to the watch
// list.
func Watch(ctx context.Context, p *Pipeline, vaultRoot string, enabled func() bool, logger *slog.Logger) error {
	watchRel := vaultpath.Normalize(p.settings().WatchFolder)
	watchRoot := filepath.Join(vaultRoot, filepath.FromSlash(watchRel))
	if err := os.MkdirAll(watchRoot, 0o755); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, watchRoot); err != nil {
		return err
	}

	logger.Info("ocr watcher: started", slog.String("root", watchRoot))

	pending := make(map[string]struct{})
	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	scheduleFlush := func() {
		if debounceTimer == nil {
			debounceTimer = time.NewTimer(debounceDelay)
			debounceCh = debounceTimer.C
		} else {
			debounceTimer.Reset(debounceDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			logger.Info("ocr watcher: stopped")
			return nil

		case <-debounceCh:
			debounceTimer = nil
			debounceCh = nil
			batch := make([]string, 0, len(pending))
			for rel := range pending {
				batch = append(batch, rel)
			}
			pending = make(map[string]struct{})
			sort.Strings(batch)
			for _, rel := range batch {
				if ctx.Err() != nil {
					break
				}
				if _, err := p.ProcessFile(ctx, rel, false); err != nil {
					logger.Warn("ocr watcher: process failed", slog.String("path", rel), slog.String("error", err.Error()))
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("ocr watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !Supported(vaultpath.Ext(absPath)) || !enabled() {
				continue
			}
			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}
			pending[vaultpath.Normalize(filepath.ToSlash(rel))] = struct{}{}
			scheduleFlush()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("ocr watcher: error", slog.String("error", watchErr.Error()))
		}
	}
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
