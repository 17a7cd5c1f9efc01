package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/schaermu/ecm/internal/config"
	"github.com/schaermu/ecm/internal/document"
	"github.com/schaermu/ecm/internal/ecm"
	"github.com/schaermu/ecm/internal/fetch"
	"github.com/schaermu/ecm/internal/index"
	"github.com/schaermu/ecm/internal/install"
	"github.com/schaermu/ecm/internal/manifest"
	"github.com/schaermu/ecm/internal/metrics"
	"github.com/schaermu/ecm/internal/resolve"
	"github.com/schaermu/ecm/internal/store"
	"github.com/schaermu/ecm/internal/update"
	versions "github.com/schaermu/ecm/internal/version"
)

// app holds the wired dependencies of one command run
type app struct {
	cfg     *config.Config
	manager *ecm.Manager
	metrics *metrics.Metrics
	logger  *slog.Logger

	// manifestFile is the on-disk manifest, empty when it is not a local file
	manifestFile string

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", "error", err)
		}
	}
}

// newContentStore builds the configured content backend. For the fs backend
// it also returns the store so callers can resolve local paths.
func newContentStore(cfg *config.Config) (store.ContentStore, *store.Dir, error) {
	switch cfg.Store.Content {
	case config.ContentS3:
		s3cfg := cfg.Store.S3
		opts := store.S3Options{
			Region:      s3cfg.Region,
			Endpoint:    s3cfg.Endpoint,
			AccessKeyID: s3cfg.AccessKeyID,
			PathStyle:   s3cfg.PathStyle,
		}
		if s3cfg.SecretAccessKeyFile != "" {
			secret, err := config.ReadSecretFile(s3cfg.SecretAccessKeyFile)
			if err != nil {
				return nil, nil, err
			}
			opts.SecretAccessKey = secret
		}
		return store.NewS3(store.NewS3Client(opts), s3cfg.Bucket, s3cfg.Prefix), nil, nil
	default:
		dir := store.NewDir(cfg.Paths.Root)
		return dir, dir, nil
	}
}

// buildApp wires the manager from cfg
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, dry bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	content, dir, err := newContentStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create content store: %w", err)
	}

	layout := cfg.Layout()

	var docs document.Store
	switch cfg.Store.Document {
	case config.DocumentSQLite:
		db, err := document.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		docs = db
	default:
		docs = document.NewFrontmatter(content)
		if dir != nil {
			a.manifestFile, err = dir.Abs(layout.ManifestPath())
			if err != nil {
				return nil, err
			}
		}
	}

	fetcher := fetch.NewHTTPClient(cfg.Fetch.Timeout, cfg.Fetch.UserAgent).WithObserver(a.metrics)
	comparator := versions.NewComparator(cfg.UpgradeMode())

	idx := index.NewGenerator(content, layout.IndexPath(), logger)
	m := manifest.New(content, docs, idx, layout, logger)
	resolver := resolve.New(fetcher, resolve.Options{
		Layout:      layout,
		Comparator:  comparator,
		Propagation: cfg.Propagation(),
	}, logger)
	installer := install.New(fetcher, content, layout.Dir, logger)
	checker := update.NewChecker(fetcher, comparator, logger)

	a.manager = ecm.New(m, resolver, installer, checker, content, ecm.Options{
		Layout:  layout,
		DryRun:  dry,
		Metrics: a.metrics,
	}, logger)

	return a, nil
}

// setup loads the configuration and wires the manager for a command
func setup(ctx context.Context, dry bool) (*app, error) {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return buildApp(ctx, cfg, logger, dry)
}
