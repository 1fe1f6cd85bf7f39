// Package linkindex builds the reverse reference index used to find unlinked
// attachments and the notes that refer to a file, and rewrites those
// references after a move.
package linkindex

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/starford/attic/internal/models"
	"github.com/starford/attic/internal/parser"
	"github.com/starford/attic/internal/vaultpath"
)

// Reader reads vault-relative files.
type Reader interface {
	Read(path string) ([]byte, error)
}

// Options tunes Build.
type Options struct {
	// Extensions is the attachment allow-list; it drives the bare URL pattern.
	Extensions map[string]struct{}
	// MaxDocumentBytes skips larger notes. Zero disables the limit.
	MaxDocumentBytes int64
	Logger           *slog.Logger
}

// Index maps normalized reference strings to the documents containing them
// and records which vault files each document resolves to. It is a snapshot
// of one listing and is never persisted.
type Index struct {
	refs     map[string]map[string]struct{}
	resolved map[string][]string
	backrefs map[string][]string
	docs     []string
	skipped  []string
	files    map[string]string   // lower path -> path
	byName   map[string][]string // lower base name -> paths, shortest first
}

// IsLinkingDocument reports whether e is a note the indexer scans.
func IsLinkingDocument(e models.Entry) bool {
	return e.IsFile() && e.Ext == "md"
}

// Build scans every linking document in entries. Unreadable documents are
// logged and skipped; only context cancellation fails the build.
func Build(ctx context.Context, r Reader, entries []models.Entry, opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idx := newIndex(entries)
	x := newExtractor(opts.Extensions)

	for _, e := range entries {
		if !IsLinkingDocument(e) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.MaxDocumentBytes > 0 && e.Size > opts.MaxDocumentBytes {
			logger.Warn("document too large, skipped", slog.String("path", e.Path), slog.Int64("size", e.Size))
			idx.skipped = append(idx.skipped, e.Path)
			continue
		}
		data, err := r.Read(e.Path)
		if err != nil {
			logger.Warn("document unreadable, skipped", slog.String("path", e.Path), slog.String("error", err.Error()))
			idx.skipped = append(idx.skipped, e.Path)
			continue
		}
		idx.docs = append(idx.docs, e.Path)
		idx.addDocument(e.Path, data, x)
	}

	logger.Debug("reference index built",
		slog.Int("documents", len(idx.docs)),
		slog.Int("keys", len(idx.refs)),
		slog.Int("skipped", len(idx.skipped)))
	return idx, nil
}

func newIndex(entries []models.Entry) *Index {
	idx := &Index{
		refs:     make(map[string]map[string]struct{}),
		resolved: make(map[string][]string),
		backrefs: make(map[string][]string),
		files:    make(map[string]string),
		byName:   make(map[string][]string),
	}
	for _, e := range entries {
		if !e.IsFile() {
			continue
		}
		idx.files[strings.ToLower(e.Path)] = e.Path
		name := strings.ToLower(e.Name)
		idx.byName[name] = append(idx.byName[name], e.Path)
	}
	for _, paths := range idx.byName {
		sort.SliceStable(paths, func(i, j int) bool {
			if len(paths[i]) != len(paths[j]) {
				return len(paths[i]) < len(paths[j])
			}
			return paths[i] < paths[j]
		})
	}
	return idx
}

func (idx *Index) addDocument(doc string, data []byte, x *extractor) {
	var raws []string
	if res, err := parser.Parse(data); err == nil {
		for _, l := range res.Links {
			raws = append(raws, l.Target)
		}
	}
	raws = append(raws, x.references(string(data))...)

	seen := make(map[string]struct{})
	for _, raw := range raws {
		ref := strings.TrimSpace(parser.StripFragment(raw))
		if ref == "" {
			continue
		}
		idx.insert(ref, doc)
		if target, ok := idx.Resolve(doc, ref); ok {
			idx.insert(target, doc)
			key := strings.ToLower(target)
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				idx.resolved[doc] = append(idx.resolved[doc], target)
				idx.backrefs[key] = append(idx.backrefs[key], doc)
			}
		}
	}
}

// insert records ref raw and URL-decoded, under lower-cased keys.
func (idx *Index) insert(ref, doc string) {
	for _, k := range []string{ref, vaultpath.Unescape(ref)} {
		k = strings.ToLower(k)
		set, ok := idx.refs[k]
		if !ok {
			set = make(map[string]struct{})
			idx.refs[k] = set
		}
		set[doc] = struct{}{}
	}
}

// Resolve maps a reference found in doc to a vault file path. It tries, in
// order: a vault-absolute path, a path relative to doc's folder, a vault
// path, each also with ".md" appended, and finally the shortest file whose
// path ends with the reference.
func (idx *Index) Resolve(doc, ref string) (string, bool) {
	ref = vaultpath.Unescape(strings.TrimSpace(parser.StripFragment(ref)))
	if ref == "" || strings.Contains(ref, "://") {
		return "", false
	}
	var candidates []string
	if strings.HasPrefix(ref, "/") {
		candidates = append(candidates, vaultpath.Normalize(ref))
	} else {
		candidates = append(candidates, vaultpath.Join(vaultpath.Dir(doc), ref), vaultpath.Normalize(ref))
	}
	for _, c := range candidates {
		if p, ok := idx.lookup(c); ok {
			return p, true
		}
		if vaultpath.Ext(c) == "" {
			if p, ok := idx.lookup(c + ".md"); ok {
				return p, true
			}
		}
	}

	want := strings.ToLower(vaultpath.Normalize(ref))
	if want == "" {
		return "", false
	}
	for _, w := range []string{want, want + ".md"} {
		for _, p := range idx.byName[vaultpath.Base(w)] {
			lp := strings.ToLower(p)
			if lp == w || strings.HasSuffix(lp, "/"+w) {
				return p, true
			}
		}
	}
	return "", false
}

func (idx *Index) lookup(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	got, ok := idx.files[strings.ToLower(p)]
	return got, ok
}

// Documents returns the indexed documents in listing order.
func (idx *Index) Documents() []string { return idx.docs }

// Skipped returns the documents left out of the index.
func (idx *Index) Skipped() []string { return idx.skipped }

// Len returns the number of distinct keys.
func (idx *Index) Len() int { return len(idx.refs) }

// Has reports whether key was referenced by any document.
func (idx *Index) Has(key string) bool {
	_, ok := idx.refs[strings.ToLower(key)]
	return ok
}

// Resolved returns the vault files doc refers to, in first-reference order.
func (idx *Index) Resolved(doc string) []string { return idx.resolved[doc] }

// Backlinks returns the documents that resolve to path, in listing order.
func (idx *Index) Backlinks(path string) []string {
	return idx.backrefs[strings.ToLower(vaultpath.Normalize(path))]
}

// ReferringNote returns the first document, in listing order, that refers
// to path.
func (idx *Index) ReferringNote(path string) (string, bool) {
	docs := idx.Backlinks(path)
	if len(docs) == 0 {
		return "", false
	}
	return docs[0], true
}

// IsUnlinked reports whether no document refers to e. A file is linked when
// its path, name, stem, URL-encoded path or "/"-prefixed path is a key; in
// lenient mode a key containing the stem also counts.
func (idx *Index) IsUnlinked(e models.Entry, strict bool) bool {
	candidates := []string{
		e.Path,
		e.Name,
		e.Stem(),
		vaultpath.Escape(e.Path),
		"/" + e.Path,
	}
	for _, c := range candidates {
		if c != "" && idx.Has(c) {
			return false
		}
	}
	if strict {
		return true
	}
	stem := strings.ToLower(e.Stem())
	if stem == "" {
		return true
	}
	for k := range idx.refs {
		if strings.Contains(k, stem) {
			return false
		}
	}
	return true
}
