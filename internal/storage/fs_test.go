package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/attic/internal/apperr"
)

func tempVault(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempVault(t)
	content := []byte("# Hello\n![[img.png]]\n")
	if err := s.Write("note.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	s := NewMemFS()
	_, err := s.Read("nope.png")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListReturnsFilesAndFolders(t *testing.T) {
	s := NewMemFS()
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("sub/b.png", []byte("b"))
	_ = s.Write("sub/deeper/c.PDF", []byte("c"))

	items, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	kinds := map[string]string{}
	for _, it := range items {
		kinds[it.Path] = it.Kind.String()
	}
	want := map[string]string{
		"a.md":             "file",
		"sub":              "folder",
		"sub/b.png":        "file",
		"sub/deeper":       "folder",
		"sub/deeper/c.PDF": "file",
	}
	for p, k := range want {
		if kinds[p] != k {
			t.Errorf("%s: kind = %q, want %q", p, kinds[p], k)
		}
	}
	for _, it := range items {
		if it.Path == "sub/deeper/c.PDF" && it.Ext != "pdf" {
			t.Errorf("ext = %q, want lower-cased pdf", it.Ext)
		}
	}
}

func TestMoveRequiresParentAndNeverOverwrites(t *testing.T) {
	s := NewMemFS()
	_ = s.Write("a.png", []byte("a"))
	_ = s.Write("b.png", []byte("b"))

	if err := s.Move("a.png", "missing/a.png"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("move into missing folder: err = %v", err)
	}
	if err := s.Move("a.png", "b.png"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("move onto existing file: err = %v", err)
	}
	got, _ := s.Read("b.png")
	if string(got) != "b" {
		t.Errorf("b.png overwritten: %q", got)
	}

	if err := s.MkdirAll("dest/sub"); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := s.Move("a.png", "dest/sub/a.png"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if s.Exists("a.png") || !s.Exists("dest/sub/a.png") {
		t.Error("file not moved")
	}
}

func TestDeleteFolderOnlyWhenEmpty(t *testing.T) {
	s := NewMemFS()
	_ = s.Write("assets/sub/x.png", []byte("x"))

	if err := s.Delete("assets/sub"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("non-empty folder delete: err = %v", err)
	}
	if err := s.Delete("assets/sub/x.png"); err != nil {
		t.Fatalf("Delete file: %v", err)
	}
	empty, err := s.IsEmptyDir("assets/sub")
	if err != nil || !empty {
		t.Fatalf("IsEmptyDir = %v, %v", empty, err)
	}
	if err := s.Delete("assets/sub"); err != nil {
		t.Fatalf("Delete folder: %v", err)
	}
	if s.Exists("assets/sub") {
		t.Error("folder still exists")
	}
	if err := s.Delete(""); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("root delete: err = %v", err)
	}
}

func TestTrashKeepsLocationAndSuffixes(t *testing.T) {
	s := NewMemFS()
	_ = s.Write("img/a.png", []byte("1"))
	dest, err := s.Trash("img/a.png")
	if err != nil {
		t.Fatalf("Trash: %v", err)
	}
	if dest != ".trash/img/a.png" {
		t.Errorf("dest = %q", dest)
	}

	_ = s.Write("img/a.png", []byte("2"))
	dest, err = s.Trash("img/a.png")
	if err != nil {
		t.Fatalf("Trash again: %v", err)
	}
	if dest != ".trash/img/a (1).png" {
		t.Errorf("second dest = %q", dest)
	}
}

func TestStatModTime(t *testing.T) {
	s := NewMemFS()
	_ = s.Write("a.png", []byte("a"))
	mt := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)
	if err := s.Chtimes("a.png", mt); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	e, err := s.Stat("a.png")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !e.ModTime.Equal(mt) {
		t.Errorf("ModTime = %v, want %v", e.ModTime, mt)
	}
	if e.Stem() != "a" || e.Ext != "png" {
		t.Errorf("stem/ext = %q/%q", e.Stem(), e.Ext)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempVault(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if s.Exists(p) {
			t.Errorf("Exists(%q) should be false", p)
		}
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("atomic.md", []byte("original content"))
	if err := s.Write("atomic.md", []byte("updated content")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != "updated content" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.root, ".attic-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/attic-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "attic-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
