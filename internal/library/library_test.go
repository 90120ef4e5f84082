package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root string, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("content of "+rel), 0o644))
}

func TestFSLibrary_IndexableItemIDs(t *testing.T) {
	// Given: a library with images, other files, and a dot-directory
	root := t.TempDir()
	writeFile(t, root, "beach/sunset.jpg")
	writeFile(t, root, "beach/notes.txt")
	writeFile(t, root, "trash/old.png")
	writeFile(t, root, ".embedsync/index.db")

	lib := NewFSLibrary(root, []string{"trash"})

	// When: indexable ids are listed
	ids, err := lib.IndexableItemIDs(context.Background())
	require.NoError(t, err)

	// Then: only image files outside dot-dirs are returned,
	// hidden dirs included (filtering happens at query time)
	assert.Equal(t, map[string]struct{}{
		"beach/sunset.jpg": {},
		"trash/old.png":    {},
	}, ids)
}

func TestFSLibrary_ResolveItems(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.jpg")
	writeFile(t, root, "trash/b.jpg")

	lib := NewFSLibrary(root, []string{"trash"})

	items, err := lib.ResolveItems(context.Background(), []string{"a.jpg", "trash/b.jpg", "gone.jpg"})
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.False(t, items["a.jpg"].Hidden)
	assert.True(t, items["trash/b.jpg"].Hidden)
	assert.NotContains(t, items, "gone.jpg", "deleted items must not resolve")
}

func TestFSLibrary_LoadContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.jpg")
	lib := NewFSLibrary(root, nil)

	items, err := lib.ResolveItems(context.Background(), []string{"a.jpg"})
	require.NoError(t, err)

	data, err := lib.LoadContent(context.Background(), items["a.jpg"])
	require.NoError(t, err)
	assert.Equal(t, []byte("content of a.jpg"), data)
}

func TestFSLibrary_IDForPath(t *testing.T) {
	root := t.TempDir()
	lib := NewFSLibrary(root, nil)

	id, ok := lib.IDForPath(filepath.Join(root, "album", "pic.jpg"))
	require.True(t, ok)
	assert.Equal(t, "album/pic.jpg", id)

	_, ok = lib.IDForPath(filepath.Join(root, "..", "outside.jpg"))
	assert.False(t, ok)
}

func TestFSLibrary_IsIndexable(t *testing.T) {
	lib := NewFSLibrary(t.TempDir(), nil)
	assert.True(t, lib.IsIndexable("x/y.JPG"))
	assert.True(t, lib.IsIndexable("x/y.webp"))
	assert.False(t, lib.IsIndexable("x/y.txt"))
}
