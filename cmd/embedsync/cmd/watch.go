package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/photonlabs/embedsync/internal/output"
	"github.com/photonlabs/embedsync/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var skipInitialSync bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run resident: watch the library and keep the index current",
		Long: `Watch the library for changes and embed new or modified items as
they appear, keeping the in-memory index hot for queries.

Sync work can be paused and resumed with 'embedsync pause' and
'embedsync resume' (or SIGUSR1/SIGUSR2 directly). SIGINT shuts down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd, skipInitialSync)
		},
	}

	cmd.Flags().BoolVar(&skipInitialSync, "skip-initial-sync", false, "Skip the full sync pass on startup")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, skipInitialSync bool) error {
	out := output.New(cmd.OutOrStdout())

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pidPath := filepath.Join(app.cfg.DataDir(), pidFileName)
	if err := writePidFile(pidPath); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer func() { _ = os.Remove(pidPath) }()

	if !skipInitialSync {
		out.Statusf("running initial sync of %s", app.root)
		if err := app.syncer.RunBulk(ctx); err != nil {
			return err
		}
	}
	if err := app.cache.Reload(ctx); err != nil {
		return err
	}
	out.Successf("watching %s (%d embeddings cached)", app.root, app.cache.Count())

	window, err := app.cfg.DebounceWindow()
	if err != nil {
		window = 0
	}
	w, err := watcher.New(app.root, window, app.source.IsIndexable, func(paths []string) {
		var ids []string
		for _, p := range paths {
			if id, ok := app.source.IDForPath(p); ok {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return
		}
		slog.Info("library_changed", slog.Int("items", len(ids)))
		app.syncer.Enqueue(ids...)
		go func() {
			if err := app.syncer.Drain(ctx); err != nil {
				slog.Error("drain aborted", slog.String("error", err.Error()))
				cancel()
			}
		}()
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	pause := make(chan os.Signal, 1)
	resume := make(chan os.Signal, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(pause, syscall.SIGUSR1)
	signal.Notify(resume, syscall.SIGUSR2)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(pause)
	defer signal.Stop(resume)
	defer signal.Stop(quit)

	for {
		select {
		case <-pause:
			app.gate.Close()
			slog.Info("sync paused")
			out.Warning("sync paused (SIGUSR2 to resume)")
		case <-resume:
			app.gate.Open()
			slog.Info("sync resumed")
			out.Success("sync resumed")
		case <-quit:
			out.Status("shutting down")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
