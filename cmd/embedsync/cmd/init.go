package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/photonlabs/embedsync/internal/config"
	"github.com/photonlabs/embedsync/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create a default configuration in the library directory",
		Long: `Write a default .embedsync.yaml into the library directory and create
the data directory. Existing configuration is left alone unless --force
is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	cfgPath := filepath.Join(root, config.ConfigFileName)
	if _, err := os.Stat(cfgPath); err == nil && !force {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", cfgPath)
	}

	cfg := config.Default()
	cfg.Library.Root = root
	if err := cfg.Save(cfgPath); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	out.Successf("initialized library at %s", root)
	out.Field("Config", cfgPath)
	out.Field("Data dir", cfg.DataDir())
	out.Newline()
	out.Status("Run 'embedsync sync' to build the index.")
	return nil
}
