// Package manifest persists the installed component forest in the
// frontmatter of the manifest document and keeps the export index in step.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/schaermu/ecm/internal/component"
	"github.com/schaermu/ecm/internal/document"
	"github.com/schaermu/ecm/internal/index"
	"github.com/schaermu/ecm/internal/store"
)

// componentsKey is the frontmatter field holding the forest
const componentsKey = "components"

// Store loads and saves the manifest document. It caches the last loaded
// forest; Current is safe for concurrent use.
type Store struct {
	content store.ContentStore
	docs    document.Store
	index   *index.Generator
	layout  component.Layout
	logger  *slog.Logger

	mu      sync.RWMutex
	current component.Forest
}

// New creates a manifest store
func New(content store.ContentStore, docs document.Store, idx *index.Generator, layout component.Layout, logger *slog.Logger) *Store {
	return &Store{
		content: content,
		docs:    docs,
		index:   idx,
		layout:  layout,
		logger:  logger,
	}
}

// Path returns the location of the manifest document
func (s *Store) Path() string {
	return s.layout.ManifestPath()
}

// Current returns a copy of the last loaded forest
func (s *Store) Current() component.Forest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// EnsureExists creates the components folder and an empty manifest when
// they are missing. It reports whether the manifest was created.
func (s *Store) EnsureExists(ctx context.Context) (bool, error) {
	if err := s.content.CreateFolder(ctx, s.layout.Dir); err != nil {
		return false, fmt.Errorf("failed to create components folder: %w", err)
	}

	_, err := s.docs.ReadFrontmatter(ctx, s.Path())
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotExist) {
		return false, fmt.Errorf("failed to read manifest: %w", err)
	}

	err = s.docs.MutateFrontmatter(ctx, s.Path(), func(fm map[string]any) error {
		if _, ok := fm[componentsKey]; !ok {
			fm[componentsKey] = nil
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to create manifest: %w", err)
	}

	s.logger.Info("manifest created", "path", s.Path())
	return true, nil
}

// Load reads the forest from the manifest document. A missing document is
// an empty forest.
func (s *Store) Load(ctx context.Context) (component.Forest, error) {
	fm, err := s.docs.ReadFrontmatter(ctx, s.Path())
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			s.set(nil)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	forest, err := decodeForest(fm[componentsKey])
	if err != nil {
		return nil, &store.PersistenceError{Op: "decode", Path: s.Path(), Err: err}
	}

	s.set(forest)
	return forest.Clone(), nil
}

// Reload re-reads the manifest into memory
func (s *Store) Reload(ctx context.Context) error {
	forest, err := s.Load(ctx)
	if err != nil {
		return err
	}
	s.logger.Debug("manifest reloaded", "components", len(forest))
	return nil
}

// Save replaces the components field with forest, regenerates the index and
// reloads the manifest.
func (s *Store) Save(ctx context.Context, forest component.Forest) error {
	err := s.docs.MutateFrontmatter(ctx, s.Path(), func(fm map[string]any) error {
		if len(forest) == 0 {
			fm[componentsKey] = nil
			return nil
		}
		fm[componentsKey] = []component.Record(forest)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if _, err := s.index.Regenerate(ctx, forest); err != nil {
		return err
	}

	_, err = s.Load(ctx)
	return err
}

// RegenerateIndex rewrites the index from the current forest
func (s *Store) RegenerateIndex(ctx context.Context) (string, error) {
	return s.index.Regenerate(ctx, s.Current())
}

func (s *Store) set(forest component.Forest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = forest.Clone()
}

// decodeForest converts the generic frontmatter value into records by a YAML
// round trip. Nil entries are dropped.
func decodeForest(v any) (component.Forest, error) {
	if v == nil {
		return nil, nil
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}

	var raw []*component.Record
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("components field is not a list of records: %w", err)
	}

	forest := make(component.Forest, 0, len(raw))
	for _, r := range raw {
		if r != nil {
			forest = append(forest, *r)
		}
	}
	return forest, nil
}
