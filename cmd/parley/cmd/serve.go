package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/parley-chat/parley/internal/async"
	"github.com/parley-chat/parley/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var skipReconcile bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Start the Model Context Protocol server on stdin/stdout.

Tools: post_message, list_messages, search_messages, index_status.

On start the index is checked against the message store in the background
and any difference is repaired. A reconcile interrupted by a crash triggers
a full rebuild instead. Logs go to the log file only; stdout carries
JSON-RPC exclusively.`,
		Example: `  # Configure as an MCP server in a client
  parley serve

  # Use a separate data directory
  parley serve --data-dir /srv/parley`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), skipReconcile)
		},
	}

	cmd.Flags().BoolVar(&skipReconcile, "skip-reconcile", false, "Do not check the index against the store on start")

	return cmd
}

func runServe(ctx context.Context, skipReconcile bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			slog.Warn("app_close_failed", slog.String("error", cerr.Error()))
		}
	}()

	srv, err := mcp.NewServer(a.coordinator, a.search, a.reporter)
	if err != nil {
		return err
	}
	srv.SetMetrics(a.metrics)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	a.coordinator.Start(gctx)

	var rec *async.BackgroundReconciler
	if !skipReconcile {
		full := async.HasIncompleteReconcile(cfg.Paths.DataDir)
		rec = async.NewBackgroundReconciler(async.ReconcilerConfig{DataDir: cfg.Paths.DataDir})
		rec.ReconcileFunc = a.checker.ReconcileFunc(full)
		a.reporter.Progress = rec.Progress()

		slog.Info("reconcile_started", slog.Bool("full", full))
		rec.Start(gctx)
		g.Go(func() error {
			// A failed reconcile leaves search degraded, not the server down.
			if err := rec.Wait(); err != nil && gctx.Err() == nil {
				slog.Error("reconcile_failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		// The client closing stdin ends the session.
		defer cancel()
		return srv.Serve(gctx, cfg.Server.Transport)
	})

	err = g.Wait()
	if rec != nil {
		rec.Stop()
	}
	if left := a.coordinator.Stop(); left > 0 {
		slog.Warn("shutdown_with_unindexed_messages",
			slog.Int("pending", left),
			slog.String("action", "reconciled on next start"))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
