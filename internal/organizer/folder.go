package organizer

import (
	"fmt"
	"strings"

	"github.com/starford/attic/internal/apperr"
	"github.com/starford/attic/internal/models"
	"github.com/starford/attic/internal/vaultpath"
)

// PlanFolderMove plans moving every attachment below from into to, keeping
// paths relative to from. Only files whose extension is in exts move.
func PlanFolderMove(entries []models.Entry, from, to string, exts map[string]struct{}, exists func(string) bool) ([]models.Move, error) {
	from = vaultpath.Normalize(from)
	to = vaultpath.Normalize(to)
	if from == "" {
		return nil, fmt.Errorf("organizer: %w: source folder is the vault root", apperr.ErrInvalidPath)
	}
	if strings.EqualFold(from, to) {
		return nil, nil
	}
	if vaultpath.IsWithin(to, from) {
		return nil, fmt.Errorf("organizer: %w: %s is inside %s", apperr.ErrInvalidPath, to, from)
	}

	pending := make(map[string]struct{})
	var moves []models.Move
	for _, e := range entries {
		if !e.IsFile() {
			continue
		}
		if _, ok := exts[e.Ext]; !ok {
			continue
		}
		rel, ok := vaultpath.RelTo(e.Path, from)
		if !ok || rel == "" {
			continue
		}
		dest := uniqueFor(e.Path, vaultpath.Join(to, rel), exists, pending)
		pending[strings.ToLower(dest)] = struct{}{}
		moves = append(moves, models.Move{File: e, From: e.Path, To: dest})
	}
	return moves, nil
}
