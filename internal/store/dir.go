package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Dir implements ContentStore on a local directory
type Dir struct {
	root string
}

// NewDir creates a content store rooted at root
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the directory backing the store
func (d *Dir) Root() string {
	return d.root
}

// Abs maps a store path to a filesystem path, refusing paths that escape root
func (d *Dir) Abs(p string) (string, error) {
	clean := path.Clean(filepath.ToSlash(p))
	if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", fmt.Errorf("path %q escapes store root", p)
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

// Exists reports whether path exists
func (d *Dir) Exists(_ context.Context, p string) (bool, error) {
	abs, err := d.Abs(p)
	if err != nil {
		return false, &PersistenceError{Op: "stat", Path: p, Err: err}
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &PersistenceError{Op: "stat", Path: p, Err: err}
	}
	return true, nil
}

// CreateFolder creates path and its parents
func (d *Dir) CreateFolder(_ context.Context, p string) error {
	abs, err := d.Abs(p)
	if err == nil {
		err = os.MkdirAll(abs, 0755)
	}
	if err != nil {
		return &PersistenceError{Op: "mkdir", Path: p, Err: err}
	}
	return nil
}

// Read returns the content of path
func (d *Dir) Read(_ context.Context, p string) (string, error) {
	abs, err := d.Abs(p)
	if err != nil {
		return "", &PersistenceError{Op: "read", Path: p, Err: err}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &PersistenceError{Op: "read", Path: p, Err: ErrNotExist}
		}
		return "", &PersistenceError{Op: "read", Path: p, Err: err}
	}
	return string(data), nil
}

// Write replaces path atomically: content goes to a temp file in the same
// directory which is then renamed over the destination.
func (d *Dir) Write(_ context.Context, p, text string) error {
	abs, err := d.Abs(p)
	if err == nil {
		err = atomicWrite(abs, []byte(text))
	}
	if err != nil {
		return &PersistenceError{Op: "write", Path: p, Err: err}
	}
	return nil
}

func atomicWrite(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".ecm-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(0644); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dst)
}

// Delete removes path; deleting a missing path is not an error
func (d *Dir) Delete(_ context.Context, p string) error {
	abs, err := d.Abs(p)
	if err == nil {
		err = os.Remove(abs)
	}
	if err != nil && !os.IsNotExist(err) {
		return &PersistenceError{Op: "delete", Path: p, Err: err}
	}
	return nil
}

// List walks dir and returns store paths of all regular files.
// Hidden files and directories are skipped.
func (d *Dir) List(_ context.Context, dir string) ([]string, error) {
	absDir, err := d.Abs(dir)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Path: dir, Err: err}
	}

	var files []string
	err = filepath.WalkDir(absDir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != absDir && strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &PersistenceError{Op: "list", Path: dir, Err: err}
	}
	return files, nil
}
