package api

import (
	"github.com/starford/attic/internal/journal"
	"github.com/starford/attic/internal/models"
)

// MoveFolderRequest is the request body for moving attachments between folders.
type MoveFolderRequest struct {
	From string `json:"from" example:"Projects/old" validate:"required"`
	To   string `json:"to" example:"Archive/old" validate:"required"`
}

// PurgeRequest selects unlinked attachments to delete. All must be set to
// purge every unlinked file without listing them.
type PurgeRequest struct {
	Paths []string `json:"paths" example:"_Attachments/old.png"`
	All   bool     `json:"all"`
}

// OCRRunRequest starts a batch.
type OCRRunRequest struct {
	Reprocess bool `json:"reprocess"`
}

// OCRFileRequest transcribes a single file.
type OCRFileRequest struct {
	Path string `json:"path" example:"_Inbox/receipt.png" validate:"required"`
}

// UnlinkedResponse lists unlinked attachments.
type UnlinkedResponse struct {
	Files []models.Entry `json:"files" validate:"required"`
	Count int            `json:"count" example:"3" validate:"required"`
}

// HistoryResponse wraps journal operations, newest first.
type HistoryResponse struct {
	Operations []journal.Operation `json:"operations" validate:"required"`
}
