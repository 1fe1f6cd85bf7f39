package organizer

import (
	"sort"
	"strings"

	"github.com/starford/attic/internal/models"
	"github.com/starford/attic/internal/vaultpath"
)

// BuildPlan computes a move for every candidate that is not already at its
// destination. exists reports occupancy of the live vault. Destinations are
// unique against the vault and against each other; a file's own path counts
// as free so a settled file is never renamed.
func BuildPlan(candidates []models.Entry, r *Resolver, exists func(string) bool) []models.Move {
	pending := make(map[string]struct{})
	var moves []models.Move
	for _, f := range candidates {
		dest := vaultpath.Normalize(r.Destination(f))
		if dest == f.Path {
			continue
		}
		dest = uniqueFor(f.Path, dest, exists, pending)
		if dest == f.Path {
			continue
		}
		pending[strings.ToLower(dest)] = struct{}{}
		moves = append(moves, models.Move{File: f, From: f.Path, To: dest})
	}
	return moves
}

func uniqueFor(own, dest string, exists func(string) bool, pending map[string]struct{}) string {
	return vaultpath.Unique(dest, func(p string) bool {
		if p == own {
			return false
		}
		if _, ok := pending[strings.ToLower(p)]; ok {
			return true
		}
		return exists(p)
	})
}

func sortFold(items []string) {
	sort.Slice(items, func(i, j int) bool {
		a, b := strings.ToLower(items[i]), strings.ToLower(items[j])
		if a != b {
			return a < b
		}
		return items[i] < items[j]
	})
}
