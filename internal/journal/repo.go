package journal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/attic/internal/apperr"
	"github.com/starford/attic/internal/models"
)

// Operation kinds.
const (
	KindMove   = "move"
	KindDelete = "delete"
)

// Operation is one journaled move or deletion.
type Operation struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source"`
	Target    string    `json:"target,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerEntry records the last OCR pass over a source file.
type LedgerEntry struct {
	Path        string    `json:"path"`
	Checksum    string    `json:"checksum"`
	Output      string    `json:"output"`
	Model       string    `json:"model"`
	ProcessedAt time.Time `json:"processed_at"`
}

// NewRunID returns an identifier grouping the operations of one pass.
func NewRunID() string {
	return uuid.NewString()
}

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// RecordMove journals the outcome of a move.
func (db *DB) RecordMove(ctx context.Context, runID string, m models.Move, status, errMsg string) error {
	return db.insert(ctx, runID, KindMove, m.From, m.To, status, errMsg)
}

// RecordDeletion journals the outcome of a deletion. trashedTo is the new
// location when the file went to the trash.
func (db *DB) RecordDeletion(ctx context.Context, runID, path, trashedTo, status, errMsg string) error {
	return db.insert(ctx, runID, KindDelete, path, trashedTo, status, errMsg)
}

func (db *DB) insert(ctx context.Context, runID, kind, source, target, status, errMsg string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO operations (run_id, kind, source, target, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, kind, source, target, status, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("journal: insert %s: %w", kind, err)
	}
	return nil
}

// History returns the newest operations first. runID filters to one pass
// when non-empty.
func (db *DB) History(ctx context.Context, runID string, limit int) ([]Operation, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, run_id, kind, source, target, status, error, created_at FROM operations`
	args := []any{}
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: history: %w", err)
	}
	defer rows.Close()

	var out []Operation
	for rows.Next() {
		var op Operation
		if err := rows.Scan(&op.ID, &op.RunID, &op.Kind, &op.Source, &op.Target, &op.Status, &op.Error, &op.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// Ledger returns the OCR ledger entry for path.
func (db *DB) Ledger(ctx context.Context, path string) (*LedgerEntry, error) {
	var e LedgerEntry
	err := db.conn.QueryRowContext(ctx, `
		SELECT path, checksum, output, model, processed_at FROM ocr_ledger WHERE path = ?
	`, path).Scan(&e.Path, &e.Checksum, &e.Output, &e.Model, &e.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("journal: ledger: %w", err)
	}
	return &e, nil
}

// RecordOCR inserts or replaces the ledger entry for e.Path.
func (db *DB) RecordOCR(ctx context.Context, e LedgerEntry) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO ocr_ledger (path, checksum, output, model, processed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum     = excluded.checksum,
			output       = excluded.output,
			model        = excluded.model,
			processed_at = excluded.processed_at
	`, e.Path, e.Checksum, e.Output, e.Model, e.ProcessedAt.UTC())
	if err != nil {
		return fmt.Errorf("journal: record ocr: %w", err)
	}
	return nil
}
