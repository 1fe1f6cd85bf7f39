package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/starford/attic/internal/apperr"
	"github.com/starford/attic/pkg/config"
)

// Store owns the live settings document. Reads return copies; the only way
// to change the document is Update, which validates and persists.
type Store struct {
	mu      sync.RWMutex
	path    string
	current *Settings
	logger  *slog.Logger
}

// Open loads the document at path merged over the defaults. A missing file
// yields the defaults; a broken file is logged and the defaults are used, so
// opening never fails. An empty path keeps the document in memory only.
func Open(path string, logger *slog.Logger) *Store {
	s := Defaults()
	if path != "" {
		if err := config.LoadPlain(path, &s); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Warn("settings document unreadable, using defaults",
					slog.String("path", path), slog.String("error", err.Error()))
			}
			s = Defaults()
		}
	}
	for _, fix := range s.Sanitize() {
		logger.Warn("settings corrected", slog.String("detail", fix))
	}
	return &Store{path: path, current: &s, logger: logger}
}

// NewMemory returns an in-memory store seeded with s.
func NewMemory(s Settings, logger *slog.Logger) *Store {
	c := s.Clone()
	c.Sanitize()
	return &Store{current: &c, logger: logger}
}

// Path returns where the document is persisted, "" for in-memory stores.
func (s *Store) Path() string { return s.path }

// Get returns a copy of the current document. After Close it returns the
// defaults.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Defaults()
	}
	return s.current.Clone()
}

// Update applies fn to a copy of the document, validates it and persists it.
// The live document changes only when every step succeeds.
func (s *Store) Update(fn func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Settings{}, errors.New("settings: store closed")
	}
	next := s.current.Clone()
	if err := fn(&next); err != nil {
		return Settings{}, err
	}
	if err := next.Validate(); err != nil {
		return Settings{}, fmt.Errorf("settings: %w: %w", apperr.ErrValidation, err)
	}
	if s.path != "" {
		if err := config.Save(s.path, &next); err != nil {
			return Settings{}, fmt.Errorf("settings: persist: %w", err)
		}
	}
	s.current = &next
	return next.Clone(), nil
}

// Close releases the document.
func (s *Store) Close() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}
