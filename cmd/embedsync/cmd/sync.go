package cmd

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/photonlabs/embedsync/internal/output"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the index with the library and backfill missing embeddings",
		Long: `Run one full sync pass: pull remote changes, reconcile tracked items
against the library, embed everything that is missing, and push local
results to the remote store when one is configured.

Examples:
  embedsync sync
  embedsync sync --library ~/Pictures`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), cmd)
		},
	}

	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	start := time.Now()
	slog.Info("sync_started", slog.String("root", app.root))

	if err := app.syncer.RunBulk(ctx); err != nil {
		out.Errorf("sync failed: %v", err)
		return err
	}

	status, err := app.syncer.Status(ctx)
	if err != nil {
		return err
	}
	out.Successf("sync complete in %s", time.Since(start).Round(time.Millisecond))
	out.Field("Indexed", strconv.Itoa(status.IndexedCount))
	if status.PendingCount > 0 {
		out.Warningf("%d items still pending (transient failures, will retry)", status.PendingCount)
	}
	if status.FailedCount > 0 {
		out.Warningf("%d items permanently failed", status.FailedCount)
	}
	return nil
}
