package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/starford/attic/internal/apperr"
	"github.com/starford/attic/internal/models"
	"github.com/starford/attic/internal/vaultpath"
)

// TrashFolder is the vault-relative folder that receives trashed files.
const TrashFolder = ".trash"

// FS implements Provider on top of an afero file system.
type FS struct {
	fs   afero.Fs
	root string // absolute path to vault directory inside fs
}

// NewFS creates a Provider rooted at a directory on the local disk.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	return newFS(afero.NewOsFs(), abs)
}

// NewMemFS creates a Provider backed by an in-memory file system.
func NewMemFS() *FS {
	mem := afero.NewMemMapFs()
	root := string(filepath.Separator) + "vault"
	_ = mem.MkdirAll(root, 0o755)
	return &FS{fs: mem, root: root}
}

func newFS(base afero.Fs, abs string) (*FS, error) {
	info, err := base.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{fs: base, root: abs}, nil
}

// Root returns the absolute path of the vault directory.
func (f *FS) Root() string {
	return f.root
}

// Rel converts an absolute path inside the vault to a vault path.
func (f *FS) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return "", fmt.Errorf("storage: rel %s: %w", abs, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("storage: %w: outside vault: %s", apperr.ErrInvalidPath, abs)
	}
	return vaultpath.Normalize(rel), nil
}

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: %w: absolute paths not allowed: %s", apperr.ErrInvalidPath, rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: %w: path escapes vault root: %s", apperr.ErrInvalidPath, rel)
	}
	return abs, nil
}

func (f *FS) entry(abs string, info os.FileInfo) (models.Entry, error) {
	rel, err := f.Rel(abs)
	if err != nil {
		return models.Entry{}, err
	}
	e := models.Entry{
		Kind:    models.KindFile,
		Path:    rel,
		Name:    info.Name(),
		ModTime: info.ModTime(),
	}
	if info.IsDir() {
		e.Kind = models.KindFolder
		return e, nil
	}
	e.Ext = vaultpath.Ext(info.Name())
	e.Size = info.Size()
	return e, nil
}

// List walks the vault and returns every entry below the root.
func (f *FS) List() ([]models.Entry, error) {
	var out []models.Entry
	err := afero.Walk(f.fs, f.root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == f.root {
			return nil
		}
		e, err := f.entry(p, info)
		if err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Stat returns the entry at path.
func (f *FS) Stat(path string) (models.Entry, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return models.Entry{}, err
	}
	info, err := f.fs.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Entry{}, fmt.Errorf("storage: stat %s: %w", path, apperr.ErrNotFound)
		}
		return models.Entry{}, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return f.entry(abs, info)
}

// Exists reports whether a file or folder occupies path.
func (f *FS) Exists(path string) bool {
	abs, err := f.safePath(path)
	if err != nil {
		return false
	}
	ok, err := afero.Exists(f.fs, abs)
	return err == nil && ok
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(f.fs, abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: read %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := afero.TempFile(f.fs, dir, ".attic-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = f.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := f.fs.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// MkdirAll creates a folder and its missing ancestors.
func (f *FS) MkdirAll(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := f.fs.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", path, err)
	}
	return nil
}

// Move renames a file within the vault. It never overwrites.
func (f *FS) Move(oldPath, newPath string) error {
	absOld, err := f.safePath(oldPath)
	if err != nil {
		return err
	}
	absNew, err := f.safePath(newPath)
	if err != nil {
		return err
	}
	if ok, _ := afero.Exists(f.fs, absNew); ok {
		return fmt.Errorf("storage: move %s: %w: %s", oldPath, apperr.ErrAlreadyExists, newPath)
	}
	if ok, _ := afero.DirExists(f.fs, filepath.Dir(absNew)); !ok {
		return fmt.Errorf("storage: move %s: parent of %s: %w", oldPath, newPath, apperr.ErrNotFound)
	}
	if err := f.fs.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("storage: move: %w", err)
	}
	return nil
}

// Delete removes a file, or a folder when it is empty.
func (f *FS) Delete(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: %w: refusing to delete vault root", apperr.ErrInvalidPath)
	}
	info, err := f.fs.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: delete %s: %w", path, apperr.ErrNotFound)
		}
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	if info.IsDir() {
		empty, err := afero.IsEmpty(f.fs, abs)
		if err != nil {
			return fmt.Errorf("storage: delete %s: %w", path, err)
		}
		if !empty {
			return fmt.Errorf("storage: delete %s: %w: folder not empty", path, apperr.ErrConflict)
		}
	}
	if err := f.fs.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// Trash moves a file into the vault trash folder, keeping its relative
// location and suffixing the name when an earlier copy is already there.
func (f *FS) Trash(path string) (string, error) {
	path = vaultpath.Normalize(path)
	if vaultpath.IsWithin(path, TrashFolder) {
		return "", fmt.Errorf("storage: trash %s: %w: already in trash", path, apperr.ErrInvalidPath)
	}
	dest := vaultpath.Unique(vaultpath.Join(TrashFolder, path), f.Exists)
	if err := f.MkdirAll(vaultpath.Dir(dest)); err != nil {
		return "", err
	}
	if err := f.Move(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// IsEmptyDir reports whether the folder at path has no children.
func (f *FS) IsEmptyDir(path string) (bool, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return false, err
	}
	ok, err := afero.IsDir(f.fs, abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("storage: %s: %w", path, apperr.ErrNotFound)
		}
		return false, fmt.Errorf("storage: %s: %w", path, err)
	}
	if !ok {
		return false, nil
	}
	return afero.IsEmpty(f.fs, abs)
}

// Chtimes sets the modification time of a vault entry.
func (f *FS) Chtimes(path string, mtime time.Time) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	return f.fs.Chtimes(abs, mtime, mtime)
}

var _ Provider = (*FS)(nil)
