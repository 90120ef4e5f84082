package syncer

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// bulkRun bounds concurrency for a bulk pass and tracks its first
// session-fatal error. Once a fatal error is recorded no new tasks start,
// but tasks already running are allowed to finish so their completed work
// is preserved.
type bulkRun struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu    sync.Mutex
	fatal error
}

func newBulkRun(workers int64) *bulkRun {
	return &bulkRun{sem: semaphore.NewWeighted(workers)}
}

// aborted reports whether a session-fatal error has been recorded.
func (b *bulkRun) aborted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fatal != nil
}

// recordFatal keeps the first session-fatal error.
func (b *bulkRun) recordFatal(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fatal == nil {
		b.fatal = err
	}
}

// submit runs fn on a worker slot. Returns false without running fn when the
// run has been aborted or the context is done.
func (b *bulkRun) submit(ctx context.Context, fn func(context.Context) error) bool {
	if b.aborted() {
		return false
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	if b.aborted() {
		b.sem.Release(1)
		return false
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.sem.Release(1)
		if err := fn(ctx); err != nil {
			b.recordFatal(err)
		}
	}()
	return true
}

// wait blocks until all started tasks settle and returns the first
// session-fatal error, if any.
func (b *bulkRun) wait() error {
	b.wg.Wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fatal
}
