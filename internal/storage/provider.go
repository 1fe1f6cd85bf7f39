// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/attic/internal/models"

// Provider is the interface for vault file operations. All paths are
// vault-relative and slash separated.
type Provider interface {
	// List returns every file and folder in the vault in lexical walk order.
	List() ([]models.Entry, error)
	// Stat returns the entry at path.
	Stat(path string) (models.Entry, error)
	// Exists reports whether a file or folder occupies path.
	Exists(path string) bool
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent folders.
	Write(path string, content []byte) error
	// MkdirAll creates the folder at path and any missing ancestors.
	MkdirAll(path string) error
	// Move renames oldPath to newPath. The parent of newPath must exist and
	// newPath must be free.
	Move(oldPath, newPath string) error
	// Delete removes a file, or a folder that is empty.
	Delete(path string) error
	// Trash moves path into the vault trash folder and returns its new path.
	Trash(path string) (string, error)
	// IsEmptyDir reports whether the folder at path has no children.
	IsEmptyDir(path string) (bool, error)
}
