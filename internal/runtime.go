package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/attic/internal/attachservice"
	"github.com/starford/attic/internal/journal"
	"github.com/starford/attic/internal/ocr"
	"github.com/starford/attic/internal/settings"
	"github.com/starford/attic/internal/sse"
	"github.com/starford/attic/internal/storage"
)

// Runtime bundles the wired components shared by the server, the CLI
// commands and the MCP server.
type Runtime struct {
	Config   *Config
	Logger   *slog.Logger
	Store    *storage.FS
	Settings *settings.Store
	Pipeline *ocr.Pipeline
	Service  *attachservice.Service

	db *journal.DB
}

// Open wires storage, settings, the journal, the OCR pipeline and the
// service without starting any background work.
func Open(opts ...Option) (*Runtime, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	return open(app, nil)
}

// Close releases the journal and the settings document.
func (r *Runtime) Close() error {
	r.Settings.Close()
	return r.db.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, errors.New("config is required")
	}
	return app, nil
}

func open(app *application, broker *sse.Broker) (*Runtime, error) {
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := journal.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init journal: %w", err)
	}

	st := settings.Open(cfg.Settings.Path, logger)
	if st.Get().MergeIgnoreFiles {
		if added := settings.MergeIgnoreFiles(store, st, logger); len(added) > 0 {
			logger.Info("ignore files merged into excluded folders", slog.Int("added", len(added)))
		}
	}

	var client ocr.Transcriber
	if cfg.OCR.Enabled() {
		client = ocr.NewClient(cfg.OCR.Endpoint, cfg.OCR.APIKey, cfg.OCR.Timeout, ocr.WithLogger(logger))
	}

	var (
		events attachservice.Events
		notify ocr.Notifier
	)
	if broker != nil {
		events = broker
		notify = broker.Notify
	}

	pipeline := ocr.NewPipeline(store, client, db, func() settings.OCRSettings { return st.Get().OCR }, notify, logger)
	svc := attachservice.New(store, st, db, pipeline, events, logger)

	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Settings: st,
		Pipeline: pipeline,
		Service:  svc,
		db:       db,
	}, nil
}
