package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schaermu/ecm/internal/activation"
	"github.com/schaermu/ecm/internal/config"
	"github.com/schaermu/ecm/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve component operations over HTTP",
	Long: `Serve starts a long-running HTTP server exposing list, add, update, delete,
update checks, index regeneration and orphan listing. Operation events are
streamed on /events and Prometheus metrics are served on /metrics.

When serve.hook_secret_file is set, POST /hooks/refresh accepts signed
requests that trigger a debounced update of every component. With the fs
backend the manifest is reloaded whenever it is edited on disk.

The listener is taken from systemd socket activation when present.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	return serve(ctx, a)
}

func serve(ctx context.Context, a *app) error {
	if _, err := a.manager.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize manifest: %w", err)
	}

	opts := server.Options{
		Debounce: a.cfg.Serve.Debounce,
		Metrics:  a.metrics.Handler(),
	}
	if a.cfg.Serve.HookSecretFile != "" {
		secret, err := config.ReadSecretFile(a.cfg.Serve.HookSecretFile)
		if err != nil {
			return fmt.Errorf("failed to load hook secret: %w", err)
		}
		opts.HookSecret = []byte(secret)
	}

	srv := server.New(a.manager, opts, a.logger)
	a.manager.SetEvents(srv.Hub())

	if a.cfg.WatchEnabled() {
		if a.manifestFile == "" {
			a.logger.Info("manifest watching is only available for local frontmatter manifests")
		} else if err := srv.Watch(ctx, a.manifestFile); err != nil {
			return err
		}
	}

	l, activated, err := activation.Listen(a.cfg.Serve.ListenAddr)
	if err != nil {
		return err
	}
	a.logger.Info("listening", "addr", l.Addr().String(), "socket_activated", activated)

	return srv.Serve(ctx, l)
}
