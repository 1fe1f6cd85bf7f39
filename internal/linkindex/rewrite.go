package linkindex

import (
	"errors"
	"fmt"
	"strings"

	"github.com/starford/attic/internal/parser"
	"github.com/starford/attic/internal/vaultpath"
)

// ReadWriter reads and atomically writes vault-relative files.
type ReadWriter interface {
	Read(path string) ([]byte, error)
	Write(path string, content []byte) error
}

// Rewrite updates every note that refers to from so its references point at
// to. The index must describe the vault as it was before the move. It
// returns how many notes were written; failures for individual notes are
// joined into err and never stop the others.
func Rewrite(rw ReadWriter, idx *Index, from, to string) (int, error) {
	from = vaultpath.Normalize(from)
	to = vaultpath.Normalize(to)
	renamed := !strings.EqualFold(vaultpath.Base(from), vaultpath.Base(to))

	var (
		updated int
		errs    []error
	)
	for _, doc := range idx.Backlinks(from) {
		data, err := rw.Read(doc)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", doc, err))
			continue
		}
		content, changed := rewriteDocument(idx, doc, string(data), from, to, renamed)
		if !changed {
			continue
		}
		if err := rw.Write(doc, []byte(content)); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", doc, err))
			continue
		}
		updated++
	}
	return updated, errors.Join(errs...)
}

func rewriteDocument(idx *Index, doc, content, from, to string, renamed bool) (string, bool) {
	lines := strings.Split(content, "\n")
	changed := false
	for _, o := range parser.Occurrences(content) {
		target, ok := idx.Resolve(doc, o.Target)
		if !ok || !strings.EqualFold(target, from) {
			continue
		}
		newTarget, ok := newLinkTarget(o, doc, from, to, renamed)
		if !ok || newTarget == o.Target {
			continue
		}
		i := o.Line - 1
		if i < 0 || i >= len(lines) {
			continue
		}
		replaced := parser.ReplaceOutsideInlineCode(lines[i], o.Raw, o.WithTarget(newTarget))
		if replaced != lines[i] {
			lines[i] = replaced
			changed = true
		}
	}
	return strings.Join(lines, "\n"), changed
}

// newLinkTarget computes the replacement destination for one occurrence.
// Wikilinks written as a bare name keep resolving by name and are only
// touched when the name changed. Markdown links keep their style: relative
// to the note, vault-absolute with a leading slash, and percent-encoded when
// the original was.
func newLinkTarget(o parser.Occurrence, doc, from, to string, renamed bool) (string, bool) {
	if !o.Markdown {
		if !strings.Contains(o.Target, "/") && !renamed {
			return "", false
		}
		return to, true
	}

	decoded := vaultpath.Unescape(o.Target)
	var target string
	switch {
	case strings.HasPrefix(decoded, "/"):
		target = "/" + to
	case strings.EqualFold(vaultpath.Join(vaultpath.Dir(doc), decoded), from):
		target = relativePath(vaultpath.Dir(doc), to)
	default:
		target = to
	}
	if decoded != o.Target {
		target = vaultpath.Escape(target)
	} else if !o.Angle && strings.ContainsAny(target, " \t") {
		target = vaultpath.Escape(target)
	}
	return target, true
}

// relativePath returns the path from folder dir to target.
func relativePath(dir, target string) string {
	var from []string
	if dir != "" {
		from = strings.Split(dir, "/")
	}
	to := strings.Split(target, "/")
	i := 0
	for i < len(from) && i < len(to)-1 && from[i] == to[i] {
		i++
	}
	parts := make([]string, 0, len(from)-i+len(to)-i)
	for range from[i:] {
		parts = append(parts, "..")
	}
	parts = append(parts, to[i:]...)
	return strings.Join(parts, "/")
}
