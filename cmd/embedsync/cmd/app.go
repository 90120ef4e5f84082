package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/photonlabs/embedsync/internal/cache"
	"github.com/photonlabs/embedsync/internal/config"
	"github.com/photonlabs/embedsync/internal/embed"
	"github.com/photonlabs/embedsync/internal/library"
	"github.com/photonlabs/embedsync/internal/query"
	"github.com/photonlabs/embedsync/internal/store"
	"github.com/photonlabs/embedsync/internal/syncer"
)

// app wires the component graph for one CLI invocation.
type app struct {
	cfg      *config.Config
	root     string
	store    store.Store
	source   *library.FSLibrary
	embedder embed.Embedder
	tracker  *embed.StateTracker
	gate     *syncer.Gate
	syncer   *syncer.Syncer
	cache    *cache.Cache
	reloader *cache.Reloader
	engine   *query.Engine
}

// findLibraryRoot walks up from dir looking for a config file. Falls back to
// dir itself when none is found.
func findLibraryRoot(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	for cur := abs; ; {
		if _, err := os.Stat(filepath.Join(cur, config.ConfigFileName)); err == nil {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs
		}
		cur = parent
	}
}

// resolveRoot picks the library root from the --library flag or by
// discovery.
func resolveRoot() string {
	if libraryPath != "" {
		return libraryPath
	}
	return findLibraryRoot(".")
}

// openApp builds the component graph rooted at the resolved library.
// The gate starts open; resident mode closes it on demand.
func openApp(ctx context.Context) (*app, error) {
	root := resolveRoot()
	cfg, err := config.LoadOrDefault(root)
	if err != nil {
		return nil, err
	}
	if cfg.Library.Root == "" {
		cfg.Library.Root = root
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	var remote store.RemoteClient
	if cfg.Remote.URL != "" {
		remote = store.NewHTTPRemoteClient(cfg.Remote.URL, cfg.RemoteToken())
	}
	st, err := store.NewSQLiteStore(cfg.IndexPath(), remote)
	if err != nil {
		return nil, err
	}

	tracker := embed.NewStateTracker()
	embedder, err := embed.New(ctx, cfg, tracker)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	src := library.NewFSLibrary(cfg.Library.Root, cfg.Library.HiddenDirs)
	gate := syncer.NewGate()
	gate.Open()
	lock := store.NewSyncLock(cfg.DataDir())
	sy := syncer.New(st, src, embedder, gate, lock, cfg)

	c := cache.New(st, embedder.ModelTag())
	window, err := cfg.DebounceWindow()
	if err != nil {
		window = 0
	}
	reloader := cache.NewReloader(c, window)
	sy.OnUpdated(reloader.Notify)

	return &app{
		cfg:      cfg,
		root:     cfg.Library.Root,
		store:    st,
		source:   src,
		embedder: embedder,
		tracker:  tracker,
		gate:     gate,
		syncer:   sy,
		cache:    c,
		reloader: reloader,
		engine:   query.New(embedder, c, src, st, cfg),
	}, nil
}

// Close tears the graph down in dependency order.
func (a *app) Close() {
	a.reloader.Close()
	_ = a.embedder.Close()
	_ = a.store.Close()
}
