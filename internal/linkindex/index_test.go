package linkindex

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/starford/attic/internal/models"
	"github.com/starford/attic/internal/storage"
)

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// vault writes files into a memory store and returns it with its listing.
func vault(t *testing.T, files map[string]string) (*storage.FS, []models.Entry) {
	t.Helper()
	fs := storage.NewMemFS()
	for p, content := range files {
		if err := fs.Write(p, []byte(content)); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	entries, err := fs.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return fs, entries
}

func entry(t *testing.T, entries []models.Entry, path string) models.Entry {
	t.Helper()
	for _, e := range entries {
		if e.Path == path {
			return e
		}
	}
	t.Fatalf("no entry %q", path)
	return models.Entry{}
}

func build(t *testing.T, fs *storage.FS, entries []models.Entry, opts Options) *Index {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	idx, err := Build(context.Background(), fs, entries, opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

func TestBuild_EmbedScenario(t *testing.T) {
	fs, entries := vault(t, map[string]string{
		"note.md": "![[a.png]]",
		"a.png":   "A",
		"b.png":   "B",
	})
	idx := build(t, fs, entries, Options{})

	if idx.IsUnlinked(entry(t, entries, "a.png"), false) {
		t.Error("a.png is embedded and must be linked")
	}
	if !idx.IsUnlinked(entry(t, entries, "b.png"), false) {
		t.Error("b.png is not referenced and must be unlinked")
	}
}

func TestBuild_FallbackPatterns(t *testing.T) {
	note := `<img src="media/x%20y.png" width="10">
[report](docs/report.pdf#page=3)
Photo at https://cdn.example.com/path/photo.jpg and more.
`
	fs, entries := vault(t, map[string]string{
		"note.md":         note,
		"media/x y.png":   "1",
		"docs/report.pdf": "2",
		"other/photo.jpg": "3",
	})
	exts := map[string]struct{}{"png": {}, "jpg": {}, "pdf": {}}
	idx := build(t, fs, entries, Options{Extensions: exts})

	if idx.IsUnlinked(entry(t, entries, "media/x y.png"), true) {
		t.Error("encoded html src should link the decoded path")
	}
	if idx.IsUnlinked(entry(t, entries, "docs/report.pdf"), true) {
		t.Error("markdown link with fragment should link the file")
	}
	photo := entry(t, entries, "other/photo.jpg")
	if !idx.IsUnlinked(photo, true) {
		t.Error("strict mode must not match a URL by stem")
	}
	if idx.IsUnlinked(photo, false) {
		t.Error("lenient mode should match a key containing the stem")
	}
	if !idx.Has("https://cdn.example.com/path/photo.jpg") {
		t.Error("bare URL should be a key")
	}
}

func TestBuild_KeysAreCaseInsensitive(t *testing.T) {
	fs, entries := vault(t, map[string]string{
		"note.md":       "![[IMG/Photo.PNG]]",
		"img/photo.png": "x",
	})
	idx := build(t, fs, entries, Options{})
	if idx.IsUnlinked(entry(t, entries, "img/photo.png"), true) {
		t.Error("reference differing only in case should link")
	}
}

func TestResolve_RelativeAbsoluteAndByName(t *testing.T) {
	fs, entries := vault(t, map[string]string{
		"daily/d.md":        "x",
		"img/p.png":         "x",
		"deep/a/b/only.pdf": "x",
		"Other Note.md":     "x",
	})
	idx := build(t, fs, entries, Options{})

	cases := map[string]string{
		"../img/p.png":   "img/p.png",
		"/img/p.png":     "img/p.png",
		"img/p.png":      "img/p.png",
		"only.pdf":       "deep/a/b/only.pdf",
		"b/only.pdf":     "deep/a/b/only.pdf",
		"Other Note":     "Other Note.md",
		"Other%20Note":   "Other Note.md",
		"img/p.png#frag": "img/p.png",
	}
	for ref, want := range cases {
		got, ok := idx.Resolve("daily/d.md", ref)
		if !ok || got != want {
			t.Errorf("Resolve(%q) = %q, %v; want %q", ref, got, ok, want)
		}
	}
	if _, ok := idx.Resolve("daily/d.md", "https://x.org/p.png"); ok {
		t.Error("URLs never resolve to vault files")
	}
	if _, ok := idx.Resolve("daily/d.md", "missing.png"); ok {
		t.Error("missing file should not resolve")
	}
}

func TestReferringNote_FirstInListingOrder(t *testing.T) {
	fs, entries := vault(t, map[string]string{
		"b.md":           "![[pic.png]]",
		"a.md":           "see [img](assets/pic.png)",
		"c.md":           "nothing",
		"assets/pic.png": "x",
	})
	idx := build(t, fs, entries, Options{})

	back := idx.Backlinks("assets/pic.png")
	if strings.Join(back, ",") != "a.md,b.md" {
		t.Errorf("backlinks = %v", back)
	}
	note, ok := idx.ReferringNote("ASSETS/pic.png")
	if !ok || note != "a.md" {
		t.Errorf("referring note = %q, %v", note, ok)
	}
	if _, ok := idx.ReferringNote("c.md"); ok {
		t.Error("c.md has no referrers")
	}
	if got := idx.Resolved("b.md"); len(got) != 1 || got[0] != "assets/pic.png" {
		t.Errorf("resolved = %v", got)
	}
}

func TestBuild_SkipsOversizedDocuments(t *testing.T) {
	fs, entries := vault(t, map[string]string{
		"big.md": "![[a.png]] " + strings.Repeat("x", 100),
		"a.png":  "x",
	})
	idx := build(t, fs, entries, Options{MaxDocumentBytes: 50})
	if len(idx.Skipped()) != 1 || idx.Skipped()[0] != "big.md" {
		t.Errorf("skipped = %v", idx.Skipped())
	}
	if !idx.IsUnlinked(entry(t, entries, "a.png"), false) {
		t.Error("references in skipped documents are not indexed")
	}
}

func TestBuild_ContextCancelled(t *testing.T) {
	fs, entries := vault(t, map[string]string{"n.md": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Build(ctx, fs, entries, Options{Logger: quietLogger()}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestExtractor_CapsMatchesPerPattern(t *testing.T) {
	x := newExtractor(nil)
	content := strings.Repeat(`<a href="f.png">`, maxMatchesPerPattern+5)
	if got := len(x.references(content)); got != maxMatchesPerPattern {
		t.Errorf("references = %d, want %d", got, maxMatchesPerPattern)
	}
}
