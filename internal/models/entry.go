// Package models defines the domain types for attic.
package models

import (
	"strings"
	"time"
)

// Kind discriminates vault entries.
type Kind int

const (
	KindFile Kind = iota
	KindFolder
)

// String returns "file" or "folder".
func (k Kind) String() string {
	if k == KindFolder {
		return "folder"
	}
	return "file"
}

// MarshalText encodes the kind by name so listings stay readable in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Entry is a snapshot of one file or folder in the vault, taken at scan time.
// It goes stale as soon as a move executes elsewhere.
type Entry struct {
	Kind    Kind      `json:"kind"`
	Path    string    `json:"path"` // vault-relative, slash separated, case preserved
	Name    string    `json:"name"`
	Ext     string    `json:"ext,omitempty"` // lower-case, no leading dot
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

// IsFile reports whether e is a file.
func (e Entry) IsFile() bool { return e.Kind == KindFile }

// IsFolder reports whether e is a folder.
func (e Entry) IsFolder() bool { return e.Kind == KindFolder }

// Stem returns the file name without its extension.
func (e Entry) Stem() string {
	if i := strings.LastIndex(e.Name, "."); i > 0 && e.Ext != "" {
		return e.Name[:i]
	}
	return e.Name
}

// Parent returns the path of the containing folder, "" for the vault root.
func (e Entry) Parent() string {
	if i := strings.LastIndex(e.Path, "/"); i >= 0 {
		return e.Path[:i]
	}
	return ""
}
