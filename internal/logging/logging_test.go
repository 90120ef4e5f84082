package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.input), tt.input)
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a config pointing at a temp log file
	dir := t.TempDir()
	cfg := Config{
		Level:         "info",
		FilePath:      filepath.Join(dir, "test.log"),
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)

	// When: a structured entry is logged
	logger.Info("cache reloaded", slog.Int("count", 42))
	cleanup()

	// Then: the entry lands in the file as JSON
	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"cache reloaded"`)
	assert.Contains(t, string(data), `"count":42`)
}

func TestRotatingWriter_RotatesAtMaxSize(t *testing.T) {
	// Given: a writer with a tiny max size
	dir := t.TempDir()
	path := filepath.Join(dir, "rot.log")
	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	w.maxSize = 64 // shrink below 1MB so the test stays fast

	// When: enough bytes are written to exceed the limit
	line := strings.Repeat("x", 40) + "\n"
	for i := 0; i < 4; i++ {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	// Then: a rotated file exists alongside the current one
	_, err = os.Stat(path)
	assert.NoError(t, err)
	_, err = os.Stat(path + ".1")
	assert.NoError(t, err)
}
