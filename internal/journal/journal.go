package journal

import (
	"context"

	"github.com/starford/attic/internal/models"
)

// Journal defines the interface for operation and ledger persistence.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with fakes.
type Journal interface {
	RecordMove(ctx context.Context, runID string, m models.Move, status, errMsg string) error
	RecordDeletion(ctx context.Context, runID, path, trashedTo, status, errMsg string) error
	History(ctx context.Context, runID string, limit int) ([]Operation, error)
	Ledger(ctx context.Context, path string) (*LedgerEntry, error)
	RecordOCR(ctx context.Context, e LedgerEntry) error
	Close() error
}

// Verify *DB satisfies Journal at compile time.
var _ Journal = (*DB)(nil)
