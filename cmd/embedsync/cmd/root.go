// Package cmd provides the CLI commands for embedsync.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/photonlabs/embedsync/internal/logging"
	"github.com/photonlabs/embedsync/pkg/version"
)

var (
	debugMode      bool
	libraryPath    string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the embedsync CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embedsync",
		Short: "Embedding index synchronizer and similarity search for media libraries",
		Long: `Embedsync keeps a local embedding index in step with a media library
and answers text similarity queries against it.

It computes an embedding per library item, reconciles the index as files
come and go, mirrors the index to a remote store when one is configured,
and serves ranked similarity search over the result.

Run 'embedsync init' in your library directory to get started.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("embedsync version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.embedsync/logs/")
	cmd.PersistentFlags().StringVar(&libraryPath, "library", "", "Library root (default: walk up from the current directory)")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging routes slog to the log file, at debug level when requested.
func startLogging(_ *cobra.Command, _ []string) error {
	cleanup, err := logging.SetupDefault(debugMode)
	if err != nil {
		// Logging is best-effort for CLI runs; fall back to the default
		// handler rather than failing the command.
		slog.Warn("log file setup failed", slog.String("error", err.Error()))
		return nil
	}
	loggingCleanup = cleanup
	if debugMode {
		slog.Debug("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	}
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
