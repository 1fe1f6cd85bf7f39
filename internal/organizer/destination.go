package organizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/attic/internal/models"
	"github.com/starford/attic/internal/settings"
	"github.com/starford/attic/internal/vaultpath"
)

// NoteFinder finds the first note referring to a file.
type NoteFinder interface {
	ReferringNote(path string) (string, bool)
}

// Resolver computes the destination path of an attachment.
type Resolver struct {
	root     string
	layout   settings.Layout
	pattern  string
	byNote   bool
	notes    NoteFinder
	location *time.Location
}

// NewResolver builds a resolver for s. notes is consulted only when
// organize_by_note is on and may be nil otherwise.
func NewResolver(s settings.Settings, notes NoteFinder) *Resolver {
	return &Resolver{
		root:     s.AttachmentRoot(),
		layout:   s.Layout,
		pattern:  s.FolderPattern,
		byNote:   s.OrganizeByNote && notes != nil,
		notes:    notes,
		location: time.Local,
	}
}

// Root returns the attachment root the resolver places files under.
func (r *Resolver) Root() string { return r.root }

// Destination returns where e belongs. A referring note takes precedence
// over the layout; without one, a file already inside the root stays put
// when organizing by note.
func (r *Resolver) Destination(e models.Entry) string {
	if r.byNote {
		if note, ok := r.notes.ReferringNote(e.Path); ok {
			return vaultpath.Join(r.root, trimMarkdownExt(note), e.Name)
		}
		if vaultpath.IsWithin(e.Path, r.root) {
			return vaultpath.Normalize(e.Path)
		}
	}
	return r.layoutDestination(e)
}

func (r *Resolver) layoutDestination(e models.Entry) string {
	flat := vaultpath.Join(r.root, e.Name)
	t := e.ModTime.In(r.location)
	switch r.layout {
	case settings.LayoutDate:
		return vaultpath.Join(r.root, fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", int(t.Month())), e.Name)
	case settings.LayoutType:
		if e.Ext == "" {
			return flat
		}
		return vaultpath.Join(r.root, e.Ext, e.Name)
	case settings.LayoutPattern:
		dest := r.expandPattern(e, t)
		// A pattern may not climb out of the root.
		if !vaultpath.IsWithin(dest, r.root) || dest == r.root {
			return flat
		}
		return dest
	default:
		return flat
	}
}

func (r *Resolver) expandPattern(e models.Entry, t time.Time) string {
	expanded := strings.NewReplacer(
		"{{type}}", e.Ext,
		"{{year}}", fmt.Sprintf("%04d", t.Year()),
		"{{month}}", fmt.Sprintf("%02d", int(t.Month())),
		"{{day}}", fmt.Sprintf("%02d", t.Day()),
		"{{filename}}", e.Name,
	).Replace(r.pattern)
	if strings.Contains(r.pattern, "{{filename}}") {
		return vaultpath.Join(r.root, expanded)
	}
	return vaultpath.Join(r.root, expanded, e.Name)
}

func trimMarkdownExt(p string) string {
	if strings.HasSuffix(strings.ToLower(p), ".md") {
		return p[:len(p)-3]
	}
	return p
}
