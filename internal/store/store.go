package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrPersistence is wrapped by every PersistenceError
var ErrPersistence = errors.New("persistence error")

// ErrNotExist is returned by Read for a missing path
var ErrNotExist = errors.New("path does not exist")

// PersistenceError reports a failed content or document store operation
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// ContentStore holds component sources, the manifest document and the
// generated index. Paths are slash separated and relative to the store root.
type ContentStore interface {
	Exists(ctx context.Context, path string) (bool, error)
	CreateFolder(ctx context.Context, path string) error
	// Read returns ErrNotExist (wrapped) when path is missing
	Read(ctx context.Context, path string) (string, error)
	// Write creates or fully replaces path
	Write(ctx context.Context, path, text string) error
	Delete(ctx context.Context, path string) error
	// List returns every file below dir, recursively
	List(ctx context.Context, dir string) ([]string, error)
}
