// Package update polls the published descriptors of installed components
package update

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/schaermu/ecm/internal/component"
	"github.com/schaermu/ecm/internal/fetch"
	"github.com/schaermu/ecm/internal/version"
)

// Available describes a newer published version of an installed component
type Available struct {
	Name      string `json:"name"`
	Installed string `json:"installed"`
	Latest    string `json:"latest"`
	Manifest  string `json:"manifest"`
	Source    string `json:"source"`
}

// Checker compares installed versions against their remote descriptors
type Checker struct {
	fetcher    fetch.Fetcher
	comparator version.Comparator
	logger     *slog.Logger
}

// NewChecker creates an update checker
func NewChecker(fetcher fetch.Fetcher, comparator version.Comparator, logger *slog.Logger) *Checker {
	return &Checker{fetcher: fetcher, comparator: comparator, logger: logger}
}

// Check polls every top-level record of forest. Dependencies are not polled.
func (c *Checker) Check(ctx context.Context, forest component.Forest) ([]Available, error) {
	var updates []Available
	for _, r := range forest {
		desc, err := fetch.PartialDescriptor(ctx, c.fetcher, r.Manifest)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", r.Name, err)
		}
		if desc.Version == "" {
			c.logger.Info("remote manifest has no version, skipping", "component", r.Name)
			continue
		}

		upgrade, err := c.comparator.IsUpgrade(r.Version, desc.Version)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", r.Name, err)
		}
		if !upgrade {
			c.logger.Debug("component is up to date", "component", r.Name, "version", r.Version)
			continue
		}

		c.logger.Info("update available", "component", r.Name, "installed", r.Version, "latest", desc.Version)
		updates = append(updates, Available{
			Name:      r.Name,
			Installed: r.Version,
			Latest:    desc.Version,
			Manifest:  r.Manifest,
			Source:    desc.Source,
		})
	}
	return updates, nil
}
