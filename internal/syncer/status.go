package syncer

import "context"

// IndexStatus summarizes the state of the local index.
type IndexStatus struct {
	IndexedCount int   `json:"indexed_count"`
	PendingCount int   `json:"pending_count"`
	FailedCount  int   `json:"failed_count"`
	QueuedCount  int   `json:"queued_count"`
	IndexVersion int64 `json:"index_version"`
}

// Status reports index coverage: how many items are embedded, how many still
// need work, and how many are permanently failed.
func (s *Syncer) Status(ctx context.Context) (*IndexStatus, error) {
	modelTag := s.embedder.ModelTag()

	indexed, err := s.store.GetIDs(ctx, modelTag)
	if err != nil {
		return nil, err
	}
	failed, err := s.store.FailedIDs(ctx, modelTag, s.cfg.Sync.MaxErrorCount)
	if err != nil {
		return nil, err
	}
	known, err := s.source.IndexableItemIDs(ctx)
	if err != nil {
		return nil, err
	}
	version, err := s.store.IndexVersion(ctx)
	if err != nil {
		return nil, err
	}

	return &IndexStatus{
		IndexedCount: len(indexed),
		PendingCount: len(Diff(known, indexed, failed)),
		FailedCount:  len(failed),
		QueuedCount:  s.QueueLen(),
		IndexVersion: version,
	}, nil
}
