package syncer

import (
	"context"
	"fmt"
	"sort"

	"github.com/photonlabs/embedsync/internal/library"
	"github.com/photonlabs/embedsync/internal/store"
)

// Diff returns the ids that still need an embedding: every known item that
// is neither already indexed nor past its error budget. The result is sorted
// so backlogs are deterministic.
func Diff(known, indexed, failed map[string]struct{}) []string {
	missing := make([]string, 0)
	for id := range known {
		if _, ok := indexed[id]; ok {
			continue
		}
		if _, ok := failed[id]; ok {
			continue
		}
		missing = append(missing, id)
	}
	sort.Strings(missing)
	return missing
}

// Backlog computes the current backlog for a model by diffing the library's
// indexable items against the store. Items whose error counter exceeds
// maxErrors are treated as permanently failed and excluded.
func Backlog(ctx context.Context, st store.Store, src library.Source, modelTag string, maxErrors int) ([]string, error) {
	known, err := src.IndexableItemIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing library items: %w", err)
	}
	indexed, err := st.GetIDs(ctx, modelTag)
	if err != nil {
		return nil, fmt.Errorf("listing indexed items: %w", err)
	}
	failed, err := st.FailedIDs(ctx, modelTag, maxErrors)
	if err != nil {
		return nil, fmt.Errorf("listing failed items: %w", err)
	}
	return Diff(known, indexed, failed), nil
}
