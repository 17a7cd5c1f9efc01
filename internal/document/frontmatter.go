package document

import (
	"context"
	"errors"

	"github.com/schaermu/ecm/internal/store"
)

// Frontmatter stores documents as markdown files with a YAML header inside a
// content store. The body below the header is preserved on mutation.
type Frontmatter struct {
	content store.ContentStore
}

// NewFrontmatter creates a document store backed by content
func NewFrontmatter(content store.ContentStore) *Frontmatter {
	return &Frontmatter{content: content}
}

// ReadFrontmatter parses the header of doc
func (f *Frontmatter) ReadFrontmatter(ctx context.Context, doc string) (map[string]any, error) {
	text, err := f.content.Read(ctx, doc)
	if err != nil {
		return nil, err
	}
	front, _, _ := split(text)
	fm, err := decode(front)
	if err != nil {
		return nil, &store.PersistenceError{Op: "parse", Path: doc, Err: err}
	}
	return fm, nil
}

// MutateFrontmatter rewrites the header of doc through fn
func (f *Frontmatter) MutateFrontmatter(ctx context.Context, doc string, fn func(fm map[string]any) error) error {
	text, err := f.content.Read(ctx, doc)
	if err != nil && !errors.Is(err, store.ErrNotExist) {
		return err
	}

	front, body, _ := split(text)
	fm, err := decode(front)
	if err != nil {
		return &store.PersistenceError{Op: "parse", Path: doc, Err: err}
	}

	if err := fn(fm); err != nil {
		return err
	}

	encoded, err := encode(fm)
	if err != nil {
		return &store.PersistenceError{Op: "encode", Path: doc, Err: err}
	}
	return f.content.Write(ctx, doc, join(encoded, body))
}
