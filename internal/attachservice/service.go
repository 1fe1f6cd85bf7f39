// Package attachservice coordinates organize, purge, folder-move and OCR
// passes over a vault. Every pass that moves or deletes files is serialized.
package attachservice

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/starford/attic/internal/apperr"
	"github.com/starford/attic/internal/journal"
	"github.com/starford/attic/internal/linkindex"
	"github.com/starford/attic/internal/models"
	"github.com/starford/attic/internal/ocr"
	"github.com/starford/attic/internal/organizer"
	"github.com/starford/attic/internal/settings"
	"github.com/starford/attic/internal/sse"
	"github.com/starford/attic/internal/storage"
	"github.com/starford/attic/internal/unlinked"
	"github.com/starford/attic/internal/vaultpath"
)

// Events receives service notifications. *sse.Broker satisfies it.
type Events interface {
	Notify(event string, data any)
	PublishChange(kind, path string)
}

type noEvents struct{}

func (noEvents) Notify(string, any)            {}
func (noEvents) PublishChange(string, string) {}

// Plan is a computed organize pass.
type Plan struct {
	Root    string        `json:"root"`
	Moves   []models.Move `json:"moves"`
	Skipped []string      `json:"skipped_documents,omitempty"`

	idx *linkindex.Index
}

// RunResult is the outcome of an executed pass.
type RunResult struct {
	RunID   string `json:"run_id,omitempty"`
	Planned int    `json:"planned"`
	models.MoveResult
}

// PurgeRun is the outcome of a purge.
type PurgeRun struct {
	RunID string `json:"run_id"`
	models.PurgeResult
}

// Service coordinates storage, settings, the journal and the OCR pipeline.
type Service struct {
	store    storage.Provider
	settings *settings.Store
	journal  journal.Journal
	ocr      *ocr.Pipeline
	events   Events
	logger   *slog.Logger

	mu sync.Mutex
}

// New creates a service. events may be nil.
func New(store storage.Provider, st *settings.Store, j journal.Journal, pipeline *ocr.Pipeline, events Events, logger *slog.Logger) *Service {
	if events == nil {
		events = noEvents{}
	}
	return &Service{
		store:    store,
		settings: st,
		journal:  j,
		ocr:      pipeline,
		events:   events,
		logger:   logger,
	}
}

// Settings returns a copy of the current settings.
func (s *Service) Settings() settings.Settings {
	return s.settings.Get()
}

// UpdateSettings applies fn to a copy of the settings, validates and
// persists the result.
func (s *Service) UpdateSettings(fn func(*settings.Settings) error) (settings.Settings, error) {
	return s.settings.Update(fn)
}

// ResetConfirmation clears has_confirmed_first_run so automatic passes wait
// for the next manual run.
func (s *Service) ResetConfirmation() (settings.Settings, error) {
	return s.settings.Update(func(st *settings.Settings) error {
		st.HasConfirmedFirstRun = false
		return nil
	})
}

// SetAttachmentFolder changes the destination folder.
func (s *Service) SetAttachmentFolder(folder string) (settings.Settings, error) {
	folder = vaultpath.Normalize(folder)
	if folder == "" {
		return settings.Settings{}, fmt.Errorf("attachservice: %w: empty folder", apperr.ErrInvalidPath)
	}
	return s.settings.Update(func(st *settings.Settings) error {
		st.AttachmentFolder = folder
		return nil
	})
}

// IgnoreSubfolder adds folder to ignored_attachment_subfolders unless an
// entry already matches it case-insensitively.
func (s *Service) IgnoreSubfolder(folder string) (settings.Settings, error) {
	folder = vaultpath.Normalize(folder)
	if folder == "" {
		return settings.Settings{}, fmt.Errorf("attachservice: %w: empty folder", apperr.ErrInvalidPath)
	}
	return s.settings.Update(func(st *settings.Settings) error {
		for _, existing := range st.IgnoredAttachmentSubfolders {
			if strings.EqualFold(vaultpath.Normalize(existing), folder) {
				return nil
			}
		}
		st.IgnoredAttachmentSubfolders = append(st.IgnoredAttachmentSubfolders, folder)
		return nil
	})
}

// Plan computes the organize pass for the current vault without touching it.
func (s *Service) Plan(ctx context.Context) (*Plan, error) {
	return s.plan(ctx, s.settings.Get())
}

func (s *Service) plan(ctx context.Context, cfg settings.Settings) (*Plan, error) {
	entries, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("attachservice: list: %w", err)
	}
	p := &Plan{Root: cfg.AttachmentRoot()}
	if cfg.OrganizeByNote || cfg.UpdateLinks {
		idx, err := s.buildIndex(ctx, entries, cfg)
		if err != nil {
			return nil, err
		}
		p.idx = idx
		p.Skipped = idx.Skipped()
	}
	var notes organizer.NoteFinder
	if p.idx != nil {
		notes = p.idx
	}
	resolver := organizer.NewResolver(cfg, notes)
	p.Moves = organizer.BuildPlan(organizer.Scan(entries, cfg), resolver, s.store.Exists)
	if p.Moves == nil {
		p.Moves = []models.Move{}
	}
	return p, nil
}

// Organize plans and executes an organize pass and marks the first run as
// confirmed.
func (s *Service) Organize(ctx context.Context) (RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.organizeLocked(ctx, s.settings.Get())
}

// AutoOrganize is the scheduled pass. It executes only after the first run
// was confirmed; before that it reports what would move and waits. An empty
// plan counts as confirmation. A pass already in progress makes it a no-op.
func (s *Service) AutoOrganize(ctx context.Context) {
	if !s.mu.TryLock() {
		s.logger.Info("organize already running, scheduled pass skipped")
		return
	}
	defer s.mu.Unlock()

	cfg := s.settings.Get()
	if !cfg.HasConfirmedFirstRun {
		p, err := s.plan(ctx, cfg)
		if err != nil {
			s.logger.Error("scheduled plan failed", slog.String("error", err.Error()))
			return
		}
		if len(p.Moves) == 0 {
			s.confirmFirstRun()
			return
		}
		s.logger.Info("organize awaiting confirmation", slog.Int("planned", len(p.Moves)))
		s.events.Notify("organize.awaiting_confirmation", map[string]int{"planned": len(p.Moves)})
		return
	}
	if _, err := s.organizeLocked(ctx, cfg); err != nil {
		s.logger.Error("scheduled organize failed", slog.String("error", err.Error()))
	}
}

func (s *Service) organizeLocked(ctx context.Context, cfg settings.Settings) (RunResult, error) {
	p, err := s.plan(ctx, cfg)
	if err != nil {
		return RunResult{}, err
	}
	if len(p.Moves) == 0 {
		s.logger.Info("organize: nothing to move")
		s.confirmFirstRun()
		return RunResult{}, nil
	}

	runID := journal.NewRunID()
	res, err := organizer.Execute(ctx, s.store, p.Moves, organizer.ExecuteOptions{
		Root:     p.Root,
		RunID:    runID,
		Recorder: moveRecorder{s},
		Links:    s.linkUpdater(cfg, p.idx),
		Logger:   s.logger,
	})
	out := RunResult{RunID: runID, Planned: len(p.Moves), MoveResult: res}
	if err != nil {
		return out, fmt.Errorf("attachservice: organize: %w", err)
	}
	s.confirmFirstRun()
	s.logger.Info("organize finished",
		slog.String("run_id", runID),
		slog.Int("moved", res.Moved),
		slog.Int("skipped", res.Skipped),
		slog.Int("errors", res.Errors))
	s.events.Notify("organize.completed", out)
	return out, nil
}

// MoveFolder moves every attachment below from into to, keeping relative
// subpaths.
func (s *Service) MoveFolder(ctx context.Context, from, to string) (RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from = vaultpath.Normalize(from)
	to = vaultpath.Normalize(to)
	if from != "" && !s.store.Exists(from) {
		return RunResult{}, fmt.Errorf("attachservice: %s: %w", from, apperr.ErrNotFound)
	}
	cfg := s.settings.Get()
	entries, err := s.store.List()
	if err != nil {
		return RunResult{}, fmt.Errorf("attachservice: list: %w", err)
	}
	moves, err := organizer.PlanFolderMove(entries, from, to, cfg.Extensions(), s.store.Exists)
	if err != nil {
		return RunResult{}, err
	}
	if len(moves) == 0 {
		return RunResult{}, nil
	}

	var idx *linkindex.Index
	if cfg.UpdateLinks {
		if idx, err = s.buildIndex(ctx, entries, cfg); err != nil {
			return RunResult{}, err
		}
	}
	runID := journal.NewRunID()
	res, err := organizer.Execute(ctx, s.store, moves, organizer.ExecuteOptions{
		RunID:    runID,
		Recorder: moveRecorder{s},
		Links:    s.linkUpdater(cfg, idx),
		Logger:   s.logger,
	})
	out := RunResult{RunID: runID, Planned: len(moves), MoveResult: res}
	if err != nil {
		return out, fmt.Errorf("attachservice: move folder: %w", err)
	}
	s.logger.Info("folder moved",
		slog.String("from", from), slog.String("to", to), slog.Int("moved", res.Moved))
	s.events.Notify("move.completed", out)
	return out, nil
}

// FindUnlinked lists attachments that no note refers to.
func (s *Service) FindUnlinked(ctx context.Context) ([]models.Entry, error) {
	cfg := s.settings.Get()
	entries, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("attachservice: list: %w", err)
	}
	return s.findUnlinked(ctx, entries, cfg)
}

func (s *Service) findUnlinked(ctx context.Context, entries []models.Entry, cfg settings.Settings) ([]models.Entry, error) {
	idx, err := s.buildIndex(ctx, entries, cfg)
	if err != nil {
		return nil, err
	}
	files := unlinked.Find(entries, idx, cfg)
	if files == nil {
		files = []models.Entry{}
	}
	return files, nil
}

// PurgeOption adjusts a single purge without touching the settings.
type PurgeOption func(*unlinked.PurgeOptions)

// KeepEmptyFolders leaves folders emptied by the purge in place.
func KeepEmptyFolders() PurgeOption {
	return func(o *unlinked.PurgeOptions) { o.DeleteEmptyFolders = false }
}

// PurgeUnlinked deletes paths after checking them against a fresh index.
// If any path gained a reference in the meantime nothing is deleted and the
// error wraps apperr.ErrLinked. No paths means every currently unlinked file.
func (s *Service) PurgeUnlinked(ctx context.Context, paths []string, opts ...PurgeOption) (PurgeRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.settings.Get()
	current, err := s.FindUnlinked(ctx)
	if err != nil {
		return PurgeRun{}, err
	}
	files := current
	if len(paths) > 0 {
		if files, err = unlinked.Verify(paths, current); err != nil {
			return PurgeRun{}, err
		}
	}
	runID := journal.NewRunID()
	po := unlinked.PurgeOptions{
		UseTrash:           cfg.PurgeUseTrash,
		DeleteEmptyFolders: cfg.PurgeDeleteEmptyFolders,
		RunID:              runID,
		Recorder:           deleteRecorder{s},
		Logger:             s.logger,
	}
	for _, opt := range opts {
		opt(&po)
	}
	res, err := unlinked.Purge(ctx, s.store, files, po)
	out := PurgeRun{RunID: runID, PurgeResult: res}
	if err != nil {
		return out, fmt.Errorf("attachservice: purge: %w", err)
	}
	s.events.Notify("purge.completed", out)
	return out, nil
}

// AttachmentSubfolders lists folders below the attachment root.
func (s *Service) AttachmentSubfolders() ([]string, error) {
	entries, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("attachservice: list: %w", err)
	}
	return organizer.AttachmentSubfolders(entries, s.settings.Get().AttachmentRoot()), nil
}

// Folders lists every vault folder outside the excluded folders, sorted
// case-insensitively.
func (s *Service) Folders() ([]string, error) {
	entries, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("attachservice: list: %w", err)
	}
	excluded := s.settings.Get().ExcludedPaths()
	var out []string
	for _, e := range entries {
		if !e.IsFolder() || e.Path == "" {
			continue
		}
		skip := false
		for _, ex := range excluded {
			if vaultpath.IsWithin(e.Path, ex) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, e.Path)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out, nil
}

// History returns journal operations, newest first.
func (s *Service) History(ctx context.Context, runID string, limit int) ([]journal.Operation, error) {
	if s.journal == nil {
		return nil, fmt.Errorf("attachservice: journal: %w", apperr.ErrNotConfigured)
	}
	return s.journal.History(ctx, runID, limit)
}

// Schedule derives the automatic pass schedule from the settings.
func (s *Service) Schedule() organizer.Schedule {
	cfg := s.settings.Get()
	return organizer.Schedule{
		OnLoad:   cfg.AutoOrganizeOnLoad,
		Delay:    cfg.OnLoadDelay(),
		Interval: cfg.Interval(),
	}
}

// RunOCR transcribes the watch folder.
func (s *Service) RunOCR(ctx context.Context, reprocess bool) (ocr.BatchResult, error) {
	return s.ocr.RunBatch(ctx, reprocess)
}

// StartOCR launches a batch in the background.
func (s *Service) StartOCR(ctx context.Context, reprocess bool) error {
	return s.ocr.Start(ctx, reprocess)
}

// ProcessOCRFile transcribes one file, even when it is unchanged.
func (s *Service) ProcessOCRFile(ctx context.Context, path string) (ocr.FileResult, error) {
	res, err := s.ocr.ProcessFile(ctx, path, true)
	if err == nil {
		s.events.PublishChange(sse.ChangeTranscribed, res.Source)
	}
	return res, err
}

// AddToInbox stores data under a free name in the OCR watch folder and
// returns its vault path.
func (s *Service) AddToInbox(name string, data []byte) (string, error) {
	name = vaultpath.Base(vaultpath.Normalize(name))
	if name == "" || !ocr.Supported(vaultpath.Ext(name)) {
		return "", fmt.Errorf("attachservice: %w: unsupported file %q", apperr.ErrInvalidPath, name)
	}
	watch := s.settings.Get().OCR.WatchFolder
	dest := vaultpath.Unique(vaultpath.Join(watch, name), s.store.Exists)
	if err := s.store.Write(dest, data); err != nil {
		return "", fmt.Errorf("attachservice: write %s: %w", dest, err)
	}
	s.logger.Info("added to ocr inbox", slog.String("path", dest))
	return dest, nil
}

// StopOCR cancels a running batch and reports whether one was running.
func (s *Service) StopOCR() bool { return s.ocr.Stop() }

// OCRStatus reports the pipeline state.
func (s *Service) OCRStatus() ocr.Status { return s.ocr.Status() }

// OCRCandidates lists the files a batch would process.
func (s *Service) OCRCandidates() ([]string, error) {
	entries, err := s.ocr.Candidates()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out, nil
}

func (s *Service) buildIndex(ctx context.Context, entries []models.Entry, cfg settings.Settings) (*linkindex.Index, error) {
	idx, err := linkindex.Build(ctx, s.store, entries, linkindex.Options{
		Extensions:       cfg.Extensions(),
		MaxDocumentBytes: cfg.MaxDocumentBytes,
		Logger:           s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("attachservice: index: %w", err)
	}
	return idx, nil
}

func (s *Service) linkUpdater(cfg settings.Settings, idx *linkindex.Index) organizer.LinkUpdater {
	if !cfg.UpdateLinks || idx == nil {
		return nil
	}
	return func(from, to string) (int, error) {
		return linkindex.Rewrite(s.store, idx, from, to)
	}
}

func (s *Service) confirmFirstRun() {
	if s.settings.Get().HasConfirmedFirstRun {
		return
	}
	if _, err := s.settings.Update(func(st *settings.Settings) error {
		st.HasConfirmedFirstRun = true
		return nil
	}); err != nil {
		s.logger.Warn("persist first-run confirmation failed", slog.String("error", err.Error()))
	}
}

// moveRecorder journals moves and publishes successful ones.
type moveRecorder struct{ s *Service }

func (r moveRecorder) RecordMove(ctx context.Context, runID string, m models.Move, status, errMsg string) error {
	if status == models.StatusMoved {
		r.s.events.PublishChange(sse.ChangeMoved, m.To)
	}
	if r.s.journal == nil {
		return nil
	}
	return r.s.journal.RecordMove(ctx, runID, m, status, errMsg)
}

// deleteRecorder journals deletions and publishes successful ones.
type deleteRecorder struct{ s *Service }

func (r deleteRecorder) RecordDeletion(ctx context.Context, runID, path, trashedTo, status, errMsg string) error {
	if status == unlinked.StatusDeleted {
		kind := sse.ChangeDeleted
		if trashedTo != "" {
			kind = sse.ChangeTrashed
		}
		r.s.events.PublishChange(kind, path)
	}
	if r.s.journal == nil {
		return nil
	}
	return r.s.journal.RecordDeletion(ctx, runID, path, trashedTo, status, errMsg)
}
