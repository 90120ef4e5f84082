package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/photonlabs/embedsync/internal/config"
	"github.com/photonlabs/embedsync/internal/output"
)

// pidFileName is written by the resident watcher so pause/resume can find it.
const pidFileName = "watch.pid"

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause sync work in the resident watcher",
		Long: `Signal a running 'embedsync watch' process to pause sync work, for
example before a large import. Resume with 'embedsync resume'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return signalWatcher(cmd, syscall.SIGUSR1, "paused")
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume sync work in the resident watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return signalWatcher(cmd, syscall.SIGUSR2, "resumed")
		},
	}
}

func signalWatcher(cmd *cobra.Command, sig syscall.Signal, verb string) error {
	out := output.New(cmd.OutOrStdout())

	root := resolveRoot()
	cfg, err := config.LoadOrDefault(root)
	if err != nil {
		return err
	}
	if cfg.Library.Root == "" {
		cfg.Library.Root = root
	}

	pid, err := readPidFile(filepath.Join(cfg.DataDir(), pidFileName))
	if err != nil {
		return fmt.Errorf("no resident watcher found: %w (is 'embedsync watch' running?)", err)
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return fmt.Errorf("signaling watcher pid %d: %w", pid, err)
	}
	out.Successf("sync %s (watcher pid %d)", verb, pid)
	return nil
}

func writePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", path, err)
	}
	return pid, nil
}
