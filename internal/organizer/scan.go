// Package organizer plans and executes attachment relocations: scanning the
// vault for candidates, computing destinations, resolving collisions and
// moving files with partial-failure tolerance.
package organizer

import (
	"strings"

	"github.com/starford/attic/internal/models"
	"github.com/starford/attic/internal/settings"
	"github.com/starford/attic/internal/vaultpath"
)

// Scan returns the attachment files in entries that are candidates for
// relocation under s, in listing order.
func Scan(entries []models.Entry, s settings.Settings) []models.Entry {
	root := s.AttachmentRoot()
	exts := s.Extensions()
	excluded := s.ExcludedPaths()
	ignored := s.IgnoredSubfolders()

	var out []models.Entry
	for _, e := range entries {
		if !e.IsFile() {
			continue
		}
		if _, ok := exts[e.Ext]; !ok {
			continue
		}
		if isExcluded(e.Path, excluded) {
			continue
		}
		if vaultpath.IsWithin(e.Path, root) {
			if !s.ReorganizeInsideAttachmentFolder {
				continue
			}
			if IgnoredInsideRoot(e.Path, root, s.IgnoreAllAttachmentSubfolders, ignored) {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// isExcluded reports whether p lies strictly below one of the folders.
func isExcluded(p string, folders []string) bool {
	for _, f := range folders {
		if vaultpath.IsWithin(p, f) && !strings.EqualFold(vaultpath.Normalize(p), f) {
			return true
		}
	}
	return false
}

// IgnoredInsideRoot reports whether a file inside the attachment root is
// protected from reorganization. Files directly in the root never are; files
// in a subfolder are when all subfolders are ignored or the subfolder equals
// or lies below an ignored one.
func IgnoredInsideRoot(p, root string, ignoreAll bool, ignored []string) bool {
	rel, ok := vaultpath.RelTo(p, root)
	if !ok {
		return false
	}
	slash := strings.LastIndex(rel, "/")
	if slash < 0 {
		return false
	}
	if ignoreAll {
		return true
	}
	sub := rel[:slash]
	for _, f := range ignored {
		if vaultpath.IsWithin(sub, f) {
			return true
		}
	}
	return false
}

// AttachmentSubfolders lists the folders below the attachment root, relative
// to it, sorted.
func AttachmentSubfolders(entries []models.Entry, root string) []string {
	var out []string
	for _, e := range entries {
		if !e.IsFolder() {
			continue
		}
		if rel, ok := vaultpath.RelTo(e.Path, root); ok && rel != "" {
			out = append(out, rel)
		}
	}
	sortFold(out)
	return out
}
