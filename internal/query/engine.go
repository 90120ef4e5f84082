// Package query answers text similarity searches against the in-memory
// embedding cache.
package query

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/photonlabs/embedsync/internal/cache"
	"github.com/photonlabs/embedsync/internal/config"
	"github.com/photonlabs/embedsync/internal/embed"
	"github.com/photonlabs/embedsync/internal/library"
	"github.com/photonlabs/embedsync/internal/store"
)

// Result is one scored search hit.
type Result struct {
	ItemID string  `json:"item_id"`
	Path   string  `json:"path"`
	Score  float32 `json:"score"`
}

// Engine scores text queries against the cached embedding set. While a pass
// is scanning, newer queries coalesce: the latest one supersedes any other
// waiting query, a single follow-up pass runs for it, and every coalesced
// caller receives that latest result. Queries that cannot be embedded yield
// empty results rather than errors.
type Engine struct {
	embedder embed.Embedder
	cache    *cache.Cache
	source   library.Source
	store    store.Store
	cfg      *config.Config

	mu       sync.Mutex
	inflight bool
	pending  *pendingQuery
}

// pendingQuery collects callers waiting on the next pass. Its text is
// overwritten by each newer query; all waiters get the final pass's result.
type pendingQuery struct {
	text    string
	done    chan struct{}
	results []Result
	err     error
}

// New creates a query engine.
func New(emb embed.Embedder, c *cache.Cache, src library.Source, st store.Store, cfg *config.Config) *Engine {
	return &Engine{embedder: emb, cache: c, source: src, store: st, cfg: cfg}
}

// Search returns items similar to the query text, best first. Scores below
// the configured threshold are dropped and hidden items are filtered out.
func (e *Engine) Search(ctx context.Context, text string) ([]Result, error) {
	e.mu.Lock()
	if e.inflight {
		if e.pending == nil {
			e.pending = &pendingQuery{done: make(chan struct{})}
		}
		// Latest query wins; earlier waiters ride along.
		e.pending.text = text
		p := e.pending
		e.mu.Unlock()

		select {
		case <-p.done:
			return p.results, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.inflight = true
	e.mu.Unlock()

	results, err := e.runPass(ctx, text)
	e.followUp()
	return results, err
}

// followUp starts a pass for the superseding pending query, if any, and
// releases the inflight slot otherwise.
func (e *Engine) followUp() {
	e.mu.Lock()
	p := e.pending
	if p == nil {
		e.inflight = false
		e.mu.Unlock()
		return
	}
	e.pending = nil
	e.mu.Unlock()

	go func() {
		p.results, p.err = e.runPass(context.Background(), p.text)
		close(p.done)
		e.followUp()
	}()
}

// runPass embeds the query and scans the current snapshot.
func (e *Engine) runPass(ctx context.Context, text string) ([]Result, error) {
	qvec, err := e.embedder.EmbedText(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("query embedding failed, returning empty results",
			slog.String("error", err.Error()))
		return []Result{}, nil
	}

	snap := e.cache.Snapshot()
	matches, err := e.scan(ctx, snap, qvec)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	return e.resolve(ctx, matches)
}

// scan computes similarities across the snapshot with one worker per core.
func (e *Engine) scan(ctx context.Context, snap *cache.Snapshot, qvec []float32) ([]Result, error) {
	entries := snap.Entries
	if len(entries) == 0 {
		return []Result{}, nil
	}

	threshold := float32(e.cfg.Search.Threshold)
	workers := runtime.NumCPU()
	if workers > len(entries) {
		workers = len(entries)
	}
	chunk := (len(entries) + workers - 1) / workers

	parts := make([][]Result, workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		lo, hi := w*chunk, (w+1)*chunk
		if hi > len(entries) {
			hi = len(entries)
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var out []Result
			for _, entry := range entries[lo:hi] {
				score := dot(qvec, entry.Vector)
				if score >= threshold {
					out = append(out, Result{ItemID: entry.ItemID, Score: score})
				}
			}
			parts[w] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matches := make([]Result, 0)
	for _, p := range parts {
		matches = append(matches, p...)
	}
	return matches, nil
}

// resolve maps scored ids back to live items, filtering hidden ones and
// scheduling cleanup of ids whose files no longer exist.
func (e *Engine) resolve(ctx context.Context, matches []Result) ([]Result, error) {
	if len(matches) == 0 {
		return []Result{}, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ItemID
	}
	items, err := e.source.ResolveItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Walk every match even once the result cap fills: stale rows ranked
	// below the cap still need to be swept.
	results := make([]Result, 0, len(matches))
	var stale []string
	for _, m := range matches {
		item, ok := items[m.ItemID]
		if !ok {
			stale = append(stale, m.ItemID)
			continue
		}
		if item.Hidden {
			continue
		}
		if len(results) < e.cfg.Search.MaxResults {
			m.Path = item.Path
			results = append(results, m)
		}
	}

	if len(stale) > 0 {
		e.cleanupStale(stale)
	}
	return results, nil
}

// cleanupStale drops rows for deleted items off the query path.
func (e *Engine) cleanupStale(ids []string) {
	go func() {
		if err := e.store.DeleteMany(context.Background(), ids); err != nil {
			slog.Warn("stale result cleanup failed",
				slog.Int("count", len(ids)), slog.String("error", err.Error()))
			return
		}
		slog.Debug("removed stale index rows", slog.Int("count", len(ids)))
	}()
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
