// Package unlinked finds attachments that no note refers to and purges them.
package unlinked

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/attic/internal/apperr"
	"github.com/starford/attic/internal/linkindex"
	"github.com/starford/attic/internal/models"
	"github.com/starford/attic/internal/settings"
	"github.com/starford/attic/internal/storage"
	"github.com/starford/attic/internal/vaultpath"
)

// Find returns the attachment files in entries that idx considers unlinked,
// in listing order. Files under excluded folders are left alone.
func Find(entries []models.Entry, idx *linkindex.Index, s settings.Settings) []models.Entry {
	exts := s.Extensions()
	excluded := s.ExcludedPaths()
	strict := s.UnlinkedMatch == settings.MatchStrict

	var out []models.Entry
	for _, e := range entries {
		if !e.IsFile() {
			continue
		}
		if _, ok := exts[e.Ext]; !ok {
			continue
		}
		if underAny(e.Path, excluded) {
			continue
		}
		if idx.IsUnlinked(e, strict) {
			out = append(out, e)
		}
	}
	return out
}

func underAny(p string, folders []string) bool {
	for _, f := range folders {
		if vaultpath.IsWithin(p, f) {
			return true
		}
	}
	return false
}

// Recorder persists the outcome of each deletion.
type Recorder interface {
	RecordDeletion(ctx context.Context, runID, path, trashedTo, status, errMsg string) error
}

// PurgeOptions configures Purge.
type PurgeOptions struct {
	UseTrash           bool
	DeleteEmptyFolders bool
	RunID              string
	Recorder           Recorder
	Logger             *slog.Logger
}

// Purge deletes each file, counting failures without stopping. When
// DeleteEmptyFolders is set, the parents of deleted files are removed
// deepest first if empty, and each removed folder queues its own parent;
// the cascade stops at a non-empty folder or the vault root.
func Purge(ctx context.Context, store storage.Provider, files []models.Entry, opts PurgeOptions) (models.PurgeResult, error) {
	var res models.PurgeResult
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	record := func(path, trashed, status string, err error) {
		if opts.Recorder == nil {
			return
		}
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		if rerr := opts.Recorder.RecordDeletion(ctx, opts.RunID, path, trashed, status, msg); rerr != nil {
			logger.Warn("journal write failed", slog.String("path", path), slog.String("error", rerr.Error()))
		}
	}

	affected := make(map[string]struct{})
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var (
			trashed string
			err     error
		)
		if opts.UseTrash {
			trashed, err = store.Trash(f.Path)
		} else {
			err = store.Delete(f.Path)
		}
		if err != nil {
			res.Errors++
			logger.Error("delete failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			record(f.Path, "", models.StatusFailed, err)
			continue
		}
		res.Deleted++
		logger.Info("deleted", slog.String("path", f.Path), slog.String("trashed_to", trashed))
		record(f.Path, trashed, StatusDeleted, nil)
		if parent := vaultpath.Dir(f.Path); parent != "" {
			affected[parent] = struct{}{}
		}
	}

	if opts.DeleteEmptyFolders && res.Deleted > 0 {
		res.FoldersRemoved = removeEmptyFolders(store, affected, logger)
	}
	return res, nil
}

// StatusDeleted marks a journaled deletion.
const StatusDeleted = "deleted"

// removeEmptyFolders deletes the affected folders that are empty, climbing
// to each removed folder's parent until a non-empty folder or the vault root.
// The deepest pending folder is always checked next, so a folder is only
// judged once every pending folder below it has been handled.
func removeEmptyFolders(store storage.Provider, affected map[string]struct{}, logger *slog.Logger) int {
	pending := make(map[string]struct{}, len(affected))
	for f := range affected {
		if f != "" {
			pending[f] = struct{}{}
		}
	}

	removed := 0
	for len(pending) > 0 {
		queue := make([]string, 0, len(pending))
		for f := range pending {
			queue = append(queue, f)
		}
		sortDeepestFirst(queue)
		folder := queue[0]
		delete(pending, folder)

		empty, err := store.IsEmptyDir(folder)
		if err != nil {
			logger.Debug("folder check failed", slog.String("path", folder), slog.String("error", err.Error()))
			continue
		}
		if !empty {
			continue
		}
		if err := store.Delete(folder); err != nil {
			logger.Warn("folder delete failed", slog.String("path", folder), slog.String("error", err.Error()))
			continue
		}
		removed++
		logger.Info("removed empty folder", slog.String("path", folder))
		if parent := vaultpath.Dir(folder); parent != "" {
			pending[parent] = struct{}{}
		}
	}
	return removed
}

// sortDeepestFirst orders folders by descending depth, then lexically.
func sortDeepestFirst(folders []string) {
	sort.Slice(folders, func(i, j int) bool {
		di, dj := vaultpath.Depth(folders[i]), vaultpath.Depth(folders[j])
		if di != dj {
			return di > dj
		}
		return folders[i] < folders[j]
	})
}

// Verify maps paths onto the currently unlinked files. A path that is not
// among them is refused with apperr.ErrLinked.
func Verify(paths []string, current []models.Entry) ([]models.Entry, error) {
	byPath := make(map[string]models.Entry, len(current))
	for _, e := range current {
		byPath[e.Path] = e
	}
	out := make([]models.Entry, 0, len(paths))
	for _, p := range paths {
		e, ok := byPath[vaultpath.Normalize(p)]
		if !ok {
			return nil, fmt.Errorf("unlinked: %w: %s", apperr.ErrLinked, p)
		}
		out = append(out, e)
	}
	return out, nil
}
