package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/photonlabs/embedsync/internal/config"
	"github.com/photonlabs/embedsync/internal/embed"
	syncerrors "github.com/photonlabs/embedsync/internal/errors"
	"github.com/photonlabs/embedsync/internal/library"
	"github.com/photonlabs/embedsync/internal/store"
)

// Syncer schedules embedding work. Individual items arrive through Enqueue
// and are drained one at a time; RunBulk reconciles the whole library with
// bounded concurrency. Both paths checkpoint on the pause gate and on the
// store before computing, so concurrent drains never duplicate inference.
type Syncer struct {
	store    store.Store
	source   library.Source
	embedder embed.Embedder
	gate     *Gate
	lock     *store.SyncLock
	cfg      *config.Config

	mu         sync.Mutex
	queue      []string
	queued     map[string]struct{}
	draining   bool
	bulkActive bool

	// onUpdated fires after a batch of store writes settles, typically to
	// kick the cache reloader.
	onUpdated func()
}

// New creates a syncer over the given collaborators.
func New(st store.Store, src library.Source, emb embed.Embedder, gate *Gate, lock *store.SyncLock, cfg *config.Config) *Syncer {
	return &Syncer{
		store:    st,
		source:   src,
		embedder: emb,
		gate:     gate,
		lock:     lock,
		cfg:      cfg,
		queued:   make(map[string]struct{}),
	}
}

// OnUpdated registers a callback invoked after store writes settle.
func (s *Syncer) OnUpdated(fn func()) {
	s.onUpdated = fn
}

// Enqueue adds items to the pending queue. Duplicates already queued are
// ignored. Call Drain to process.
func (s *Syncer) Enqueue(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.queued[id]; ok {
			continue
		}
		s.queued[id] = struct{}{}
		s.queue = append(s.queue, id)
	}
}

// QueueLen returns the number of items waiting to be drained.
func (s *Syncer) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// pop removes and returns the most recently enqueued item.
func (s *Syncer) pop() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return "", false
	}
	id := s.queue[len(s.queue)-1]
	s.queue = s.queue[:len(s.queue)-1]
	delete(s.queued, id)
	return id, true
}

// Drain processes the queue until it is empty. Idempotent: if a drain is
// already running the call returns immediately and the active drain picks up
// anything enqueued meanwhile. A session-fatal error aborts the drain,
// leaving the remaining queue intact and all completed work persisted.
func (s *Syncer) Drain(ctx context.Context) error {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return nil
	}
	s.draining = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
	}()

	var processed int
	for {
		id, ok := s.pop()
		if !ok {
			break
		}
		changed, err := s.processItem(ctx, id)
		if err != nil {
			// Keep the item for the next drain; the first fatal wins over
			// any push failure during settle.
			s.Enqueue(id)
			if serr := s.settle(ctx, processed); serr != nil {
				slog.Warn("settling after abort failed", slog.String("error", serr.Error()))
			}
			return err
		}
		if changed {
			processed++
		}
	}
	return s.settle(ctx, processed)
}

// settle pushes pending writes and notifies observers after a batch. A
// session-fatal push error is returned to the caller; anything else is logged
// and the batch still counts as settled locally.
func (s *Syncer) settle(ctx context.Context, processed int) error {
	if processed == 0 {
		return nil
	}
	if err := s.store.PushPending(ctx); err != nil {
		if syncerrors.IsSessionFatal(err) {
			return err
		}
		slog.Warn("push of pending embeddings failed", slog.String("error", err.Error()))
	}
	if s.onUpdated != nil {
		s.onUpdated()
	}
	return nil
}

// processItem computes and stores one embedding. Item-level failures are
// recorded against the item's error counter and do not stop the drain; the
// returned error is non-nil only for session-fatal conditions or context
// cancellation. Returns whether the store changed.
func (s *Syncer) processItem(ctx context.Context, id string) (bool, error) {
	if err := s.gate.Wait(ctx); err != nil {
		return false, err
	}

	modelTag := s.embedder.ModelTag()
	minVersion := s.cfg.Embeddings.ModelVersion

	// Checkpoint: another drain or the bulk path may have gotten here first.
	exists, err := s.store.Has(ctx, id, modelTag, minVersion)
	if err != nil {
		return false, s.itemOrFatal(ctx, id, modelTag, err)
	}
	if exists {
		return false, nil
	}

	items, err := s.source.ResolveItems(ctx, []string{id})
	if err != nil {
		return false, s.itemOrFatal(ctx, id, modelTag, err)
	}
	item, ok := items[id]
	if !ok {
		// Deleted since it was enqueued; drop any stale rows.
		if err := s.store.DeleteMany(ctx, []string{id}); err != nil {
			slog.Warn("stale row cleanup failed", slog.String("item_id", id), slog.String("error", err.Error()))
		}
		return false, nil
	}

	data, err := s.source.LoadContent(ctx, item)
	if err != nil {
		return false, s.itemOrFatal(ctx, id, modelTag, err)
	}

	vector, err := s.embedder.EmbedImage(ctx, data)
	if err != nil {
		return false, s.itemOrFatal(ctx, id, modelTag, err)
	}

	if len(vector) != s.embedder.Dimensions() {
		err := syncerrors.DimensionMismatchError(len(vector), s.embedder.Dimensions())
		s.recordItemFailure(ctx, id, modelTag, err)
		return false, nil
	}

	emb := &store.Embedding{
		ItemID:   id,
		ModelTag: modelTag,
		Vector:   vector,
		Version:  minVersion,
	}
	if err := s.store.Put(ctx, emb); err != nil {
		return false, s.itemOrFatal(ctx, id, modelTag, err)
	}
	return true, nil
}

// itemOrFatal classifies an error hit while processing one item: session-fatal
// conditions and context cancellation abort the batch, anything else is
// charged to the item's error counter and the batch continues.
func (s *Syncer) itemOrFatal(ctx context.Context, id, modelTag string, err error) error {
	if syncerrors.IsSessionFatal(err) || ctx.Err() != nil {
		return err
	}
	s.recordItemFailure(ctx, id, modelTag, err)
	return nil
}

// recordItemFailure bumps the item's error counter and logs when the item
// crosses its budget.
func (s *Syncer) recordItemFailure(ctx context.Context, id, modelTag string, cause error) {
	count, err := s.store.RecordFailure(ctx, id, modelTag)
	if err != nil {
		slog.Error("recording item failure failed",
			slog.String("item_id", id), slog.String("error", err.Error()))
		return
	}
	if count > s.cfg.Sync.MaxErrorCount {
		slog.Warn("item exceeded error budget, excluded from future backlogs",
			slog.String("item_id", id),
			slog.Int("error_count", count),
			slog.String("cause", cause.Error()))
		return
	}
	slog.Debug("item embedding failed",
		slog.String("item_id", id),
		slog.Int("error_count", count),
		slog.String("cause", cause.Error()))
}

// RunBulk performs a full reconcile-and-backfill pass: pull remote changes,
// reconcile tracking against the library, then compute the backlog with
// bounded concurrency. Only one bulk pass runs per process, and a filesystem
// lock keeps concurrent processes out of each other's way.
func (s *Syncer) RunBulk(ctx context.Context) error {
	s.mu.Lock()
	if s.bulkActive {
		s.mu.Unlock()
		return fmt.Errorf("bulk sync already running")
	}
	s.bulkActive = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.bulkActive = false
		s.mu.Unlock()
	}()

	if s.lock != nil {
		ok, err := s.lock.TryLock()
		if err != nil {
			return syncerrors.StorageError("acquiring sync lock", err)
		}
		if !ok {
			return fmt.Errorf("another process holds the sync lock at %s", s.lock.Path())
		}
		defer func() {
			if err := s.lock.Unlock(); err != nil {
				slog.Warn("releasing sync lock failed", slog.String("error", err.Error()))
			}
		}()
	}

	modelTag := s.embedder.ModelTag()

	pulled, err := s.store.PullRemote(ctx, modelTag)
	if err != nil {
		if syncerrors.IsSessionFatal(err) {
			return err
		}
		slog.Warn("remote pull failed, continuing with local state", slog.String("error", err.Error()))
	}

	known, err := s.source.IndexableItemIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing library items: %w", err)
	}
	added, removed, err := s.store.Reconcile(ctx, known)
	if err != nil {
		return err
	}
	if len(added) > 0 || len(removed) > 0 {
		slog.Info("library reconciled",
			slog.Int("added", len(added)), slog.Int("removed", len(removed)))
	}

	backlog, err := Backlog(ctx, s.store, s.source, modelTag, s.cfg.Sync.MaxErrorCount)
	if err != nil {
		return err
	}
	slog.Info("bulk sync starting",
		slog.Int("backlog", len(backlog)),
		slog.Int("workers", s.cfg.Workers()))

	run := newBulkRun(int64(s.cfg.Workers()))
	var processed int64
	var processedMu sync.Mutex
	for _, id := range backlog {
		id := id
		if !run.submit(ctx, func(ctx context.Context) error {
			changed, err := s.processItem(ctx, id)
			if err != nil {
				return err
			}
			if changed {
				processedMu.Lock()
				processed++
				processedMu.Unlock()
			}
			return nil
		}) {
			break
		}
	}
	fatal := run.wait()

	processedMu.Lock()
	n := int(processed)
	processedMu.Unlock()

	if n > 0 || pulled {
		if _, err := s.store.BumpIndexVersion(ctx); err != nil {
			slog.Warn("bumping index version failed", slog.String("error", err.Error()))
		}
	}
	if serr := s.settle(ctx, n+boolToInt(pulled)); serr != nil && fatal == nil {
		fatal = serr
	}

	if fatal != nil {
		return fatal
	}
	slog.Info("bulk sync complete", slog.Int("embedded", n))
	return ctx.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
