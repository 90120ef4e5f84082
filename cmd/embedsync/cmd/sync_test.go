package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photonlabs/embedsync/internal/config"
)

// setupLibrary creates a configured library with a few image files, using
// the static embedder so tests need no inference backend.
func setupLibrary(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.Library.Root = root
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 64
	require.NoError(t, cfg.Save(filepath.Join(root, config.ConfigFileName)))

	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(f), 0o644))
	}
	return root
}

func TestSyncCmd(t *testing.T) {
	t.Run("embeds every library item", func(t *testing.T) {
		// Given a library with three images
		root := setupLibrary(t, "a.jpg", "b.png", "photos/c.jpg")

		// When sync runs
		out, err := execute(t, "sync", "--library", root)
		require.NoError(t, err)

		// Then all items are indexed
		assert.Contains(t, out, "sync complete")

		status := statusJSON(t, root)
		assert.Equal(t, 3, status.IndexedCount)
		assert.Equal(t, 0, status.PendingCount)
	})

	t.Run("second run has nothing to do", func(t *testing.T) {
		root := setupLibrary(t, "a.jpg")
		_, err := execute(t, "sync", "--library", root)
		require.NoError(t, err)

		_, err = execute(t, "sync", "--library", root)
		require.NoError(t, err)

		status := statusJSON(t, root)
		assert.Equal(t, 1, status.IndexedCount)
	})

	t.Run("non-image files are ignored", func(t *testing.T) {
		root := setupLibrary(t, "a.jpg", "notes.txt")

		_, err := execute(t, "sync", "--library", root)
		require.NoError(t, err)

		status := statusJSON(t, root)
		assert.Equal(t, 1, status.IndexedCount)
	})
}

func TestSearchCmd(t *testing.T) {
	t.Run("errors on an empty index", func(t *testing.T) {
		root := setupLibrary(t)

		_, err := execute(t, "search", "anything", "--library", root)

		assert.ErrorContains(t, err, "index is empty")
	})

	t.Run("returns json results after a sync", func(t *testing.T) {
		root := setupLibrary(t, "a.jpg", "b.jpg")
		_, err := execute(t, "sync", "--library", root)
		require.NoError(t, err)

		out, err := execute(t, "search", "beach", "--library", root, "--format", "json")
		require.NoError(t, err)

		var results []map[string]any
		assert.NoError(t, json.Unmarshal([]byte(out), &results))
	})
}

func statusJSON(t *testing.T, root string) statusInfo {
	t.Helper()
	out, err := execute(t, "status", "--library", root, "--json")
	require.NoError(t, err)
	var info statusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	return info
}
