package settings

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/starford/attic/internal/vaultpath"
)

// IgnoreFiles are the vault-root files whose plain folder entries are merged
// into the exclude-list.
var IgnoreFiles = []string{".gitignore", ".stignore"}

// Reader reads a vault-relative file.
type Reader interface {
	Read(path string) ([]byte, error)
}

// ParseIgnoreFile extracts plain path entries from ignore-file content.
// Comments, negations, glob patterns and blank lines are skipped; trailing
// slashes are removed.
func ParseIgnoreFile(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		if strings.ContainsAny(line, "*?") {
			continue
		}
		line = strings.TrimRight(line, "/")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// MergeIgnoreFiles folds entries from the vault's ignore files into
// excluded_folders, case-insensitively, and persists the document when
// anything was added. It returns the added entries. Failures are logged at
// debug level and otherwise ignored.
func MergeIgnoreFiles(r Reader, store *Store, logger *slog.Logger) []string {
	var found []string
	for _, name := range IgnoreFiles {
		data, err := r.Read(name)
		if err != nil {
			logger.Debug("ignore file skipped", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		found = append(found, ParseIgnoreFile(string(data))...)
	}
	if len(found) == 0 {
		return nil
	}

	var added []string
	_, err := store.Update(func(s *Settings) error {
		seen := make(map[string]struct{}, len(s.ExcludedFolders))
		for _, f := range s.ExcludedFolders {
			seen[strings.ToLower(vaultpath.Normalize(f))] = struct{}{}
		}
		for _, f := range found {
			key := strings.ToLower(vaultpath.Normalize(f))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			s.ExcludedFolders = append(s.ExcludedFolders, f)
			added = append(added, f)
		}
		if len(added) == 0 {
			return errNothingAdded
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, errNothingAdded) {
			logger.Debug("ignore file merge not saved", slog.String("error", err.Error()))
		}
		return nil
	}
	logger.Info("merged ignore file entries", slog.Int("added", len(added)))
	return added
}

var errNothingAdded = errors.New("nothing added")
