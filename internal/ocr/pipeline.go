package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/attic/internal/apperr"
	"github.com/starford/attic/internal/journal"
	"github.com/starford/attic/internal/models"
	"github.com/starford/attic/internal/settings"
	"github.com/starford/attic/internal/storage"
	"github.com/starford/attic/internal/vaultpath"
)

// mimeTypes lists the file types the pipeline sends for transcription.
var mimeTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
	"gif":  "image/gif",
	"pdf":  "application/pdf",
	"heic": "image/heic",
}

// Supported reports whether a file extension can be transcribed.
func Supported(ext string) bool {
	_, ok := mimeTypes[strings.ToLower(ext)]
	return ok
}

// Transcriber turns file bytes into text.
type Transcriber interface {
	Transcribe(ctx context.Context, model, prompt, mimeType string, data []byte) (string, error)
}

// Ledger remembers which sources were transcribed and from what content.
type Ledger interface {
	Ledger(ctx context.Context, path string) (*journal.LedgerEntry, error)
	RecordOCR(ctx context.Context, e journal.LedgerEntry) error
}

// Notifier receives pipeline events such as "ocr.processed".
type Notifier func(event string, data any)

// FileResult is the outcome of one transcription.
type FileResult struct {
	Source  string `json:"source"`
	Output  string `json:"output,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// BatchResult tallies a batch run.
type BatchResult struct {
	Processed int  `json:"processed"`
	Skipped   int  `json:"skipped"`
	Failed    int  `json:"failed"`
	Cancelled bool `json:"cancelled"`
}

// Status describes the pipeline for status queries.
type Status struct {
	Running  bool         `json:"running"`
	InFlight []string     `json:"in_flight"`
	Last     *BatchResult `json:"last,omitempty"`
}

// Pipeline coordinates batch and single-file transcription.
type Pipeline struct {
	store    storage.Provider
	client   Transcriber
	ledger   Ledger
	settings func() settings.OCRSettings
	notify   Notifier
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	inFlight map[string]struct{}
	cancel   context.CancelFunc
	last     *BatchResult
}

// NewPipeline wires a pipeline. cfg is read at the start of every run so
// settings changes apply without a restart. client may be nil when no API
// key is configured; every run then fails with apperr.ErrNotConfigured.
func NewPipeline(store storage.Provider, client Transcriber, ledger Ledger, cfg func() settings.OCRSettings, notify Notifier, logger *slog.Logger) *Pipeline {
	if notify == nil {
		notify = func(string, any) {}
	}
	return &Pipeline{
		store:    store,
		client:   client,
		ledger:   ledger,
		settings: cfg,
		notify:   notify,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
		inFlight: make(map[string]struct{}),
	}
}

// Candidates lists transcribable files in the watch folder, excluding the
// output folder, in listing order.
func (p *Pipeline) Candidates() ([]models.Entry, error) {
	cfg := p.settings()
	watch := vaultpath.Normalize(cfg.WatchFolder)
	output := vaultpath.Normalize(cfg.OutputFolder)
	entries, err := p.store.List()
	if err != nil {
		return nil, err
	}
	var out []models.Entry
	for _, e := range entries {
		if !e.IsFile() || !Supported(e.Ext) {
			continue
		}
		if !vaultpath.IsWithin(e.Path, watch) {
			continue
		}
		if output != "" && vaultpath.IsWithin(e.Path, output) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// RunBatch transcribes every candidate in batches of the configured size,
// pausing between batches. Files whose content matches the ledger are
// skipped unless reprocess is set. Stop cancels the run between files.
func (p *Pipeline) RunBatch(ctx context.Context, reprocess bool) (BatchResult, error) {
	ctx, err := p.reserve(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	return p.run(ctx, reprocess)
}

// Start runs a batch in the background. It fails immediately when no
// client is configured or a batch is already running.
func (p *Pipeline) Start(ctx context.Context, reprocess bool) error {
	ctx, err := p.reserve(ctx)
	if err != nil {
		return err
	}
	go func() {
		if _, err := p.run(ctx, reprocess); err != nil {
			p.logger.Error("ocr batch failed", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// reserve claims the single batch slot and returns the batch context.
func (p *Pipeline) reserve(ctx context.Context) (context.Context, error) {
	if p.client == nil {
		return nil, fmt.Errorf("ocr: %w: api key missing", apperr.ErrNotConfigured)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil, fmt.Errorf("ocr: batch: %w", apperr.ErrBusy)
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	return ctx, nil
}

func (p *Pipeline) run(ctx context.Context, reprocess bool) (BatchResult, error) {
	var res BatchResult
	defer func() {
		p.mu.Lock()
		p.cancel()
		p.cancel = nil
		last := res
		p.last = &last
		p.mu.Unlock()
	}()

	files, err := p.Candidates()
	if err != nil {
		return res, fmt.Errorf("ocr: list: %w", err)
	}
	cfg := p.settings()
	size := cfg.BatchSize
	if size < 1 {
		size = 1
	}
	p.logger.Info("ocr batch started", slog.Int("files", len(files)), slog.Bool("reprocess", reprocess))

	for start := 0; start < len(files); start += size {
		if start > 0 {
			if err := p.sleep(ctx, cfg.BatchDelay()); err != nil {
				res.Cancelled = true
				break
			}
		}
		end := min(start+size, len(files))
		for _, f := range files[start:end] {
			if ctx.Err() != nil {
				res.Cancelled = true
				break
			}
			r, err := p.ProcessFile(ctx, f.Path, reprocess)
			switch {
			case err != nil && ctx.Err() != nil:
				res.Cancelled = true
			case errors.Is(err, apperr.ErrBusy):
				res.Skipped++
			case err != nil:
				res.Failed++
			case r.Skipped:
				res.Skipped++
			default:
				res.Processed++
			}
		}
		if res.Cancelled {
			break
		}
	}

	p.logger.Info("ocr batch finished",
		slog.Int("processed", res.Processed),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
		slog.Bool("cancelled", res.Cancelled))
	p.notify("ocr.batch", res)
	return res, nil
}

// Stop cancels the running batch. It reports whether one was running.
func (p *Pipeline) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return false
	}
	p.cancel()
	return true
}

// Status returns a snapshot of the pipeline state.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{Running: p.cancel != nil, InFlight: make([]string, 0, len(p.inFlight))}
	for path := range p.inFlight {
		st.InFlight = append(st.InFlight, path)
	}
	sort.Strings(st.InFlight)
	if p.last != nil {
		last := *p.last
		st.Last = &last
	}
	return st
}

// ProcessFile transcribes one file into its output note. A file already
// being processed is refused with apperr.ErrBusy. Unless force is set, a
// file whose content matches the ledger is skipped.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, force bool) (FileResult, error) {
	path = vaultpath.Normalize(path)
	res := FileResult{Source: path}
	if p.client == nil {
		return res, fmt.Errorf("ocr: %w: api key missing", apperr.ErrNotConfigured)
	}
	mimeType, ok := mimeTypes[vaultpath.Ext(path)]
	if !ok {
		return res, fmt.Errorf("ocr: %w: unsupported file type: %s", apperr.ErrInvalidPath, path)
	}
	if !p.begin(path) {
		return res, fmt.Errorf("ocr: %s: %w", path, apperr.ErrBusy)
	}
	defer p.end(path)

	data, err := p.store.Read(path)
	if err != nil {
		return res, err
	}
	sum := journal.Checksum(data)

	prev, err := p.ledger.Ledger(ctx, path)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		p.logger.Warn("ocr ledger read failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	if prev != nil && prev.Checksum == sum && !force {
		res.Output = prev.Output
		res.Skipped = true
		p.logger.Debug("ocr unchanged, skipped", slog.String("path", path))
		return res, nil
	}

	cfg := p.settings()
	text, err := p.client.Transcribe(ctx, cfg.Model, cfg.Prompt, mimeType, data)
	if err != nil {
		p.logger.Error("ocr failed", slog.String("path", path), slog.String("error", err.Error()))
		p.notify("ocr.failed", map[string]string{"path": path, "error": err.Error()})
		return res, err
	}

	output := p.outputPath(path, cfg, prev)
	at := p.now()
	note, err := renderNote(path, cfg.Model, at, text)
	if err != nil {
		return res, err
	}
	if err := p.store.Write(output, note); err != nil {
		return res, fmt.Errorf("ocr: write %s: %w", output, err)
	}
	if err := p.ledger.RecordOCR(ctx, journal.LedgerEntry{
		Path: path, Checksum: sum, Output: output, Model: cfg.Model, ProcessedAt: at,
	}); err != nil {
		p.logger.Warn("ocr ledger write failed", slog.String("path", path), slog.String("error", err.Error()))
	}

	res.Output = output
	p.logger.Info("ocr processed", slog.String("path", path), slog.String("output", output))
	p.notify("ocr.processed", res)
	return res, nil
}

// outputPath reuses the previous note for a source, otherwise picks a free
// "{stem}.md" in the output folder.
func (p *Pipeline) outputPath(source string, cfg settings.OCRSettings, prev *journal.LedgerEntry) string {
	if prev != nil && prev.Output != "" {
		return prev.Output
	}
	dest := vaultpath.Join(cfg.OutputFolder, vaultpath.Stem(source)+".md")
	return vaultpath.Unique(dest, p.store.Exists)
}

func (p *Pipeline) begin(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := strings.ToLower(path)
	if _, busy := p.inFlight[key]; busy {
		return false
	}
	p.inFlight[key] = struct{}{}
	return true
}

func (p *Pipeline) end(path string) {
	p.mu.Lock()
	delete(p.inFlight, strings.ToLower(path))
	p.mu.Unlock()
}

type noteFrontmatter struct {
	Source      string `yaml:"source"`
	Model       string `yaml:"model"`
	ProcessedAt string `yaml:"processed_at"`
}

// renderNote builds the output note: frontmatter, an embed of the source
// and the transcription.
func renderNote(source, model string, at time.Time, text string) ([]byte, error) {
	fm, err := yaml.Marshal(noteFrontmatter{
		Source:      "[[" + source + "]]",
		Model:       model,
		ProcessedAt: at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("ocr: frontmatter: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(fm)
	sb.WriteString("---\n\n")
	sb.WriteString("![[" + source + "]]\n\n")
	sb.WriteString(text)
	sb.WriteString("\n")
	return []byte(sb.String()), nil
}
