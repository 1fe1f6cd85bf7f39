package models

// Move is one planned relocation.
type Move struct {
	File Entry  `json:"-"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Outcome statuses recorded for each executed move.
const (
	StatusMoved   = "moved"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// MoveResult tallies the outcome of executing a plan.
type MoveResult struct {
	Moved        int `json:"moved"`
	Skipped      int `json:"skipped"`
	Errors       int `json:"errors"`
	LinksUpdated int `json:"links_updated"`
	LinkErrors   int `json:"link_errors"`
}

// PurgeResult tallies the outcome of deleting unlinked attachments.
type PurgeResult struct {
	Deleted        int `json:"deleted"`
	Errors         int `json:"errors"`
	FoldersRemoved int `json:"folders_removed"`
}
