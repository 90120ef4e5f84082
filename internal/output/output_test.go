package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter(t *testing.T) {
	t.Run("plain writer emits no escape codes", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewWithColor(&buf, false)

		w.Header("Index Status")
		w.Field("Indexed", "42")
		w.Success("sync complete")
		w.Warning("remote unreachable")
		w.Error("sync failed")

		out := buf.String()
		assert.NotContains(t, out, "\x1b[")
		assert.Contains(t, out, "Index Status")
		assert.Contains(t, out, "✓ sync complete")
		assert.Contains(t, out, "! remote unreachable")
		assert.Contains(t, out, "✗ sync failed")
	})

	t.Run("result lines carry rank, path, and score", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewWithColor(&buf, false)

		w.Result(1, "photos/sunset.jpg", 0.8123)

		assert.Contains(t, buf.String(), "  1. photos/sunset.jpg (0.812)")
	})

	t.Run("progress bar fills with completion", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewWithColor(&buf, false)

		w.Progress(15, 30, "embedding")
		half := buf.String()
		assert.Contains(t, half, "50%")
		assert.Equal(t, 15, strings.Count(half, "█"))

		buf.Reset()
		w.Progress(30, 30, "embedding")
		done := buf.String()
		assert.Contains(t, done, "100%")
		assert.True(t, strings.HasSuffix(done, "\n"))
	})

	t.Run("zero total renders nothing", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewWithColor(&buf, false)

		w.Progress(1, 0, "noop")

		assert.Empty(t, buf.String())
	})
}
