// Package index renders the aggregated export module over the installed
// component forest.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/schaermu/ecm/internal/component"
	"github.com/schaermu/ecm/internal/store"
)

// Exports lists component names depth-first, parents before their
// requirements. A name appearing more than once is exported at its first
// occurrence only.
func Exports(forest component.Forest) []string {
	seen := make(map[string]bool)
	var names []string
	forest.Walk(func(r component.Record, _ int) bool {
		if r.Name == "" || seen[r.Name] {
			return true
		}
		seen[r.Name] = true
		names = append(names, r.Name)
		return true
	})
	return names
}

// Render returns the index module for forest
func Render(forest component.Forest) string {
	exports := Exports(forest)
	lines := make([]string, len(exports))
	for i, name := range exports {
		lines[i] = fmt.Sprintf("export * from \"./%s\";", name)
	}
	return strings.Join(lines, "\n")
}

// Generator writes the index artifact into a content store
type Generator struct {
	content store.ContentStore
	path    string
	logger  *slog.Logger
}

// NewGenerator creates a generator writing to path
func NewGenerator(content store.ContentStore, path string, logger *slog.Logger) *Generator {
	return &Generator{content: content, path: path, logger: logger}
}

// Path returns the location of the index artifact
func (g *Generator) Path() string {
	return g.path
}

// Regenerate overwrites the index with the exports of forest and returns the
// rendered text.
func (g *Generator) Regenerate(ctx context.Context, forest component.Forest) (string, error) {
	text := Render(forest)
	if err := g.content.Write(ctx, g.path, text); err != nil {
		return "", fmt.Errorf("failed to write index: %w", err)
	}
	g.logger.Debug("index regenerated", "path", g.path, "exports", strings.Count(text, "export "))
	return text, nil
}
