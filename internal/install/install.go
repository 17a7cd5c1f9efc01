// Package install writes component sources into the content store
package install

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/schaermu/ecm/internal/component"
	"github.com/schaermu/ecm/internal/fetch"
	"github.com/schaermu/ecm/internal/resolve"
	"github.com/schaermu/ecm/internal/store"
)

// Installer materializes resolved records
type Installer struct {
	fetcher fetch.Fetcher
	content store.ContentStore
	dir     string
	logger  *slog.Logger
}

// New creates an installer writing below dir
func New(fetcher fetch.Fetcher, content store.ContentStore, dir string, logger *slog.Logger) *Installer {
	return &Installer{fetcher: fetcher, content: content, dir: dir, logger: logger}
}

// Materialize downloads the source of r and writes it to r.FilePath,
// replacing any existing file
func (i *Installer) Materialize(ctx context.Context, r component.Record) error {
	text, err := fetch.Text(ctx, i.fetcher, r.Source)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", r.Name, err)
	}
	if err := i.content.Write(ctx, r.FilePath, text); err != nil {
		return fmt.Errorf("failed to write %s: %w", r.Name, err)
	}
	i.logger.Info("component file written", "component", r.Name, "version", r.Version, "path", r.FilePath)
	return nil
}

// Apply materializes every plan entry in order. Files written before a
// failure are left in place.
func (i *Installer) Apply(ctx context.Context, plan resolve.Plan) error {
	if len(plan) == 0 {
		return nil
	}
	if err := i.content.CreateFolder(ctx, i.dir); err != nil {
		return fmt.Errorf("failed to create components folder: %w", err)
	}
	for _, r := range plan {
		if err := i.Materialize(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the source file of r when it exists
func (i *Installer) Remove(ctx context.Context, r component.Record) error {
	if r.FilePath == "" {
		return nil
	}
	exists, err := i.content.Exists(ctx, r.FilePath)
	if err != nil {
		return err
	}
	if !exists {
		i.logger.Debug("component file already gone", "component", r.Name, "path", r.FilePath)
		return nil
	}
	if err := i.content.Delete(ctx, r.FilePath); err != nil {
		return fmt.Errorf("failed to delete %s: %w", r.Name, err)
	}
	i.logger.Info("component file deleted", "component", r.Name, "path", r.FilePath)
	return nil
}
