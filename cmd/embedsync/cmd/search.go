package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/photonlabs/embedsync/internal/output"
	"github.com/photonlabs/embedsync/internal/query"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit  int
	format string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the library by text similarity",
		Long: `Search indexed items by semantic similarity to the query text.

Results are ranked by cosine similarity; weak matches and hidden items
are filtered out.

Examples:
  embedsync search "dog on a beach"
  embedsync search "birthday cake" --limit 5
  embedsync search "red car" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, text string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.cache.Reload(ctx); err != nil {
		return err
	}
	if app.cache.Count() == 0 {
		return fmt.Errorf("index is empty; run 'embedsync sync' first")
	}

	slog.Info("search_started", slog.String("query", text), slog.Int("limit", opts.limit))
	results, err := app.engine.Search(ctx, text)
	if err != nil {
		return err
	}
	if opts.limit > 0 && len(results) > opts.limit {
		results = results[:opts.limit]
	}
	slog.Info("search_complete", slog.Int("results", len(results)))

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	printResults(out, text, results)
	return nil
}

func printResults(out *output.Writer, text string, results []query.Result) {
	if len(results) == 0 {
		out.Statusf("no matches for %q", text)
		return
	}
	for i, r := range results {
		out.Result(i+1, r.ItemID, r.Score)
	}
}
