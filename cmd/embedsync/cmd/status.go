package cmd

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/photonlabs/embedsync/internal/output"
	"github.com/photonlabs/embedsync/internal/syncer"
)

// statusInfo is the full status surface, including embedder health.
type statusInfo struct {
	Root string `json:"root"`
	*syncer.IndexStatus
	EmbedderModel string `json:"embedder_model"`
	EmbedderState string `json:"embedder_state"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index coverage and embedder health",
		Long: `Display the state of the local index:
  - Indexed, pending, and permanently failed item counts
  - Index version
  - Embedding framework state`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	status, err := app.syncer.Status(ctx)
	if err != nil {
		return err
	}
	info := statusInfo{
		Root:          app.root,
		IndexStatus:   status,
		EmbedderModel: app.embedder.ModelTag(),
		EmbedderState: string(app.tracker.State()),
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	out := output.New(cmd.OutOrStdout())
	out.Header("Index Status: " + info.Root)
	out.Newline()
	out.Field("Indexed", strconv.Itoa(info.IndexedCount))
	out.Field("Pending", strconv.Itoa(info.PendingCount))
	out.Field("Failed", strconv.Itoa(info.FailedCount))
	out.Field("Index version", strconv.FormatInt(info.IndexVersion, 10))
	out.Newline()
	out.Field("Model", info.EmbedderModel)
	out.Field("Embedder", info.EmbedderState)
	return nil
}
