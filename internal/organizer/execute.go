package organizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/attic/internal/models"
	"github.com/starford/attic/internal/storage"
	"github.com/starford/attic/internal/vaultpath"
)

// Recorder persists the outcome of each move.
type Recorder interface {
	RecordMove(ctx context.Context, runID string, m models.Move, status, errMsg string) error
}

// LinkUpdater rewrites references after a successful move and returns how
// many notes changed.
type LinkUpdater func(from, to string) (int, error)

// ExecuteOptions configures Execute.
type ExecuteOptions struct {
	// Root is created before any move runs.
	Root     string
	RunID    string
	Recorder Recorder
	Links    LinkUpdater
	Logger   *slog.Logger
}

// Execute runs the moves in order. A destination that appeared since
// planning is skipped; a failed move is counted and the batch continues.
// Only a failure to create the root or context cancellation, checked between
// moves, returns an error.
func Execute(ctx context.Context, store storage.Provider, moves []models.Move, opts ExecuteOptions) (models.MoveResult, error) {
	var res models.MoveResult
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Root != "" && !store.Exists(opts.Root) {
		if err := store.MkdirAll(opts.Root); err != nil {
			return res, fmt.Errorf("organizer: create %s: %w", opts.Root, err)
		}
	}

	record := func(m models.Move, status string, err error) {
		if opts.Recorder == nil {
			return
		}
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		if rerr := opts.Recorder.RecordMove(ctx, opts.RunID, m, status, msg); rerr != nil {
			logger.Warn("journal write failed", slog.String("from", m.From), slog.String("error", rerr.Error()))
		}
	}

	for _, m := range moves {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if store.Exists(m.To) {
			logger.Info("destination exists, skipped", slog.String("from", m.From), slog.String("to", m.To))
			res.Skipped++
			record(m, models.StatusSkipped, nil)
			continue
		}
		if err := ensureFolder(store, vaultpath.Dir(m.To)); err != nil {
			logger.Error("create destination failed", slog.String("to", m.To), slog.String("error", err.Error()))
			res.Errors++
			record(m, models.StatusFailed, err)
			continue
		}
		if err := store.Move(m.From, m.To); err != nil {
			logger.Error("move failed", slog.String("from", m.From), slog.String("to", m.To), slog.String("error", err.Error()))
			res.Errors++
			record(m, models.StatusFailed, err)
			continue
		}
		res.Moved++
		logger.Info("moved", slog.String("from", m.From), slog.String("to", m.To))
		record(m, models.StatusMoved, nil)

		if opts.Links != nil {
			n, err := opts.Links(m.From, m.To)
			res.LinksUpdated += n
			if err != nil {
				res.LinkErrors++
				logger.Warn("link update failed", slog.String("from", m.From), slog.String("error", err.Error()))
			}
		}
	}
	return res, nil
}

// ensureFolder creates folder and any missing ancestors, shallowest first.
// A folder that appears concurrently is not an error.
func ensureFolder(store storage.Provider, folder string) error {
	folder = vaultpath.Normalize(folder)
	if folder == "" || store.Exists(folder) {
		return nil
	}
	parts := strings.Split(folder, "/")
	var missing []string
	for i := len(parts); i > 0; i-- {
		partial := strings.Join(parts[:i], "/")
		if store.Exists(partial) {
			break
		}
		missing = append([]string{partial}, missing...)
	}
	for _, p := range missing {
		_ = store.MkdirAll(p)
	}
	if !store.Exists(folder) {
		return fmt.Errorf("organizer: folder %s could not be created", folder)
	}
	return nil
}
