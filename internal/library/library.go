// Package library exposes the content library as indexable items.
package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Item is one piece of indexable content. Items are identified by their
// library-relative path, which is stable for the life of the file.
type Item struct {
	// ID is the library-relative path (slash-separated).
	ID string

	// Path is the absolute filesystem path.
	Path string

	// Hidden marks items filtered out of search results (but still indexed).
	Hidden bool
}

// Source is the item collaborator consumed by the sync and query layers.
type Source interface {
	// IndexableItemIDs returns the ids of all items that should be indexed.
	IndexableItemIDs(ctx context.Context) (map[string]struct{}, error)

	// ResolveItems maps ids to live items. Ids of deleted items are absent
	// from the returned map.
	ResolveItems(ctx context.Context, ids []string) (map[string]Item, error)

	// LoadContent reads the item's raw content.
	LoadContent(ctx context.Context, item Item) ([]byte, error)
}

// imageExtensions are the file types treated as indexable content.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".heic": true, ".bmp": true, ".tiff": true,
}

// FSLibrary is a filesystem-backed Source rooted at a library directory.
type FSLibrary struct {
	root       string
	hiddenDirs map[string]bool
}

// Verify interface implementation at compile time
var _ Source = (*FSLibrary)(nil)

// NewFSLibrary creates a library over the given root directory.
// Items under the named top-level hiddenDirs are indexed but marked hidden.
func NewFSLibrary(root string, hiddenDirs []string) *FSLibrary {
	hidden := make(map[string]bool, len(hiddenDirs))
	for _, d := range hiddenDirs {
		hidden[d] = true
	}
	return &FSLibrary{root: root, hiddenDirs: hidden}
}

// Root returns the library root directory.
func (l *FSLibrary) Root() string {
	return l.root
}

// IndexableItemIDs walks the library and returns ids of all image files.
// Dot-directories (including the data directory) are skipped entirely.
func (l *FSLibrary) IndexableItemIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != l.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		ids[filepath.ToSlash(rel)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ResolveItems maps ids back to live items, dropping ids whose file no
// longer exists and marking items under hidden directories.
func (l *FSLibrary) ResolveItems(ctx context.Context, ids []string) (map[string]Item, error) {
	out := make(map[string]Item, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(l.root, filepath.FromSlash(id))
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue // deleted or never a file
		}
		out[id] = Item{
			ID:     id,
			Path:   path,
			Hidden: l.isHidden(id),
		}
	}
	return out, nil
}

// LoadContent reads the item's raw bytes.
func (l *FSLibrary) LoadContent(ctx context.Context, item Item) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(item.Path)
}

// IsIndexable reports whether a path inside the library is an image file.
func (l *FSLibrary) IsIndexable(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// IDForPath converts an absolute path inside the library to an item id.
// Returns false if the path is outside the root.
func (l *FSLibrary) IDForPath(path string) (string, bool) {
	rel, err := filepath.Rel(l.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// isHidden reports whether the id's first path segment is a hidden dir.
func (l *FSLibrary) isHidden(id string) bool {
	first, _, _ := strings.Cut(id, "/")
	return l.hiddenDirs[first]
}
