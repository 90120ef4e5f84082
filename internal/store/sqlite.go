package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	syncerrors "github.com/photonlabs/embedsync/internal/errors"
)

// metaKeyIndexVersion is the tracking-change counter consumed by downstream
// observers to detect "something changed since I last looked".
const metaKeyIndexVersion = "index_version"

// metaKeyLastPull is the remote version cursor of the last completed pull.
const metaKeyLastPull = "last_pull_version"

// SQLiteStore implements Store on a single SQLite database in WAL mode.
// An optional RemoteClient enables PushPending and PullRemote.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	remote RemoteClient
	closed bool
}

// Verify interface implementation at compile time
var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS embeddings (
	item_id     TEXT NOT NULL,
	model_tag   TEXT NOT NULL,
	vector      BLOB,
	version     INTEGER NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0,
	dirty       INTEGER NOT NULL DEFAULT 0,
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (item_id, model_tag)
);
CREATE TABLE IF NOT EXISTS tracking (
	item_id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewSQLiteStore opens (or creates) the local index database.
// An empty path creates an in-memory store for testing.
// remote may be nil for offline deployments.
func NewSQLiteStore(path string, remote RemoteClient) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, syncerrors.Wrap(syncerrors.ErrCodeStoreOpen, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, syncerrors.Wrap(syncerrors.ErrCodeStoreOpen, err)
	}

	// WAL mode must be set via PRAGMA for modernc.org/sqlite
	if path != "" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, syncerrors.Wrap(syncerrors.ErrCodeStoreOpen, err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, syncerrors.Wrap(syncerrors.ErrCodeStoreOpen, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, syncerrors.Wrap(syncerrors.ErrCodeStoreOpen, err)
	}

	return &SQLiteStore{db: db, path: path, remote: remote}, nil
}

// GetAll returns every successfully computed embedding for the model.
func (s *SQLiteStore) GetAll(ctx context.Context, modelTag string) ([]*Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, vector, version, error_count, updated_at
		FROM embeddings
		WHERE model_tag = ? AND vector IS NOT NULL`, modelTag)
	if err != nil {
		return nil, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Embedding
	for rows.Next() {
		var (
			emb     = &Embedding{ModelTag: modelTag}
			blob    []byte
			updated int64
		)
		if err := rows.Scan(&emb.ItemID, &blob, &emb.Version, &emb.ErrorCount, &updated); err != nil {
			return nil, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, syncerrors.New(syncerrors.ErrCodeStoreCorrupt,
				fmt.Sprintf("corrupt vector for item %s", emb.ItemID), err)
		}
		emb.Vector = vec
		emb.UpdatedAt = time.Unix(updated, 0)
		out = append(out, emb)
	}
	return out, rows.Err()
}

// GetIDs returns the ids of items with a computed embedding.
func (s *SQLiteStore) GetIDs(ctx context.Context, modelTag string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryIDSet(ctx, `
		SELECT item_id FROM embeddings
		WHERE model_tag = ? AND vector IS NOT NULL`, modelTag)
}

// Has reports whether a computed embedding at or above minVersion exists.
func (s *SQLiteStore) Has(ctx context.Context, itemID, modelTag string, minVersion int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM embeddings
		WHERE item_id = ? AND model_tag = ? AND vector IS NOT NULL AND version >= ?`,
		itemID, modelTag, minVersion).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	return true, nil
}

// Put upserts a computed embedding, resets its error counter, and marks it
// pending for remote push.
func (s *SQLiteStore) Put(ctx context.Context, emb *Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (item_id, model_tag, vector, version, error_count, dirty, updated_at)
		VALUES (?, ?, ?, ?, 0, 1, ?)
		ON CONFLICT(item_id, model_tag) DO UPDATE SET
			vector = excluded.vector,
			version = excluded.version,
			error_count = 0,
			dirty = 1,
			updated_at = excluded.updated_at`,
		emb.ItemID, emb.ModelTag, encodeVector(emb.Vector), emb.Version, time.Now().Unix())
	if err != nil {
		return syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	return nil
}

// RecordFailure increments the item's error counter in place of a vector.
func (s *SQLiteStore) RecordFailure(ctx context.Context, itemID, modelTag string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (item_id, model_tag, vector, version, error_count, dirty, updated_at)
		VALUES (?, ?, NULL, 0, 1, 0, ?)
		ON CONFLICT(item_id, model_tag) DO UPDATE SET
			error_count = embeddings.error_count + 1,
			updated_at = excluded.updated_at`,
		itemID, modelTag, time.Now().Unix())
	if err != nil {
		return 0, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}

	var count int
	err = s.db.QueryRowContext(ctx, `
		SELECT error_count FROM embeddings WHERE item_id = ? AND model_tag = ?`,
		itemID, modelTag).Scan(&count)
	if err != nil {
		return 0, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	return count, nil
}

// DeleteMany removes all embeddings and failure records for the ids.
func (s *SQLiteStore) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query, args := inClause(`DELETE FROM embeddings WHERE item_id IN `, ids)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	return nil
}

// FailedIDs returns ids whose error counter exceeds maxErrors.
func (s *SQLiteStore) FailedIDs(ctx context.Context, modelTag string, maxErrors int) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryIDSet(ctx, `
		SELECT item_id FROM embeddings
		WHERE model_tag = ? AND vector IS NULL AND error_count > ?`, modelTag, maxErrors)
}

// TrackedIDs returns the item ids currently tracked for indexing.
func (s *SQLiteStore) TrackedIDs(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryIDSet(ctx, `SELECT item_id FROM tracking`)
}

// Reconcile updates tracking records to match the known item set.
// The read of current tracked ids and the write of added/removed records
// happen in one transaction so a concurrent reconciliation never observes a
// half-updated set.
func (s *SQLiteStore) Reconcile(ctx context.Context, known map[string]struct{}) (added, removed []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT item_id FROM tracking`)
	if err != nil {
		return nil, nil, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	tracked := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, nil, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
		}
		tracked[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, nil, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	_ = rows.Close()

	for id := range known {
		if _, ok := tracked[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range tracked {
		if _, ok := known[id]; !ok {
			removed = append(removed, id)
		}
	}

	for _, id := range added {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tracking (item_id) VALUES (?)`, id); err != nil {
			return nil, nil, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
		}
	}
	if len(removed) > 0 {
		query, args := inClause(`DELETE FROM tracking WHERE item_id IN `, removed)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, nil, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
		}
		query, args = inClause(`DELETE FROM embeddings WHERE item_id IN `, removed)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, nil, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
		}
	}

	if len(added) > 0 || len(removed) > 0 {
		if err := bumpMetaCounter(ctx, tx, metaKeyIndexVersion); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	return added, removed, nil
}

// IndexVersion returns the monotonically increasing index version.
func (s *SQLiteStore) IndexVersion(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metaInt(ctx, metaKeyIndexVersion)
}

// BumpIndexVersion increments and returns the index version.
func (s *SQLiteStore) BumpIndexVersion(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := bumpMetaCounter(ctx, tx, metaKeyIndexVersion); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	return s.metaInt(ctx, metaKeyIndexVersion)
}

// PushPending uploads dirty embeddings to the remote store and clears their
// dirty flag. Without a remote this is a successful no-op.
func (s *SQLiteStore) PushPending(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}

	s.mu.RLock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, model_tag, vector, version, updated_at
		FROM embeddings
		WHERE dirty = 1 AND vector IS NOT NULL`)
	if err != nil {
		s.mu.RUnlock()
		return syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}

	var pending []*Embedding
	for rows.Next() {
		var (
			emb     = &Embedding{}
			blob    []byte
			updated int64
		)
		if err := rows.Scan(&emb.ItemID, &emb.ModelTag, &blob, &emb.Version, &updated); err != nil {
			_ = rows.Close()
			s.mu.RUnlock()
			return syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			_ = rows.Close()
			s.mu.RUnlock()
			return syncerrors.Wrap(syncerrors.ErrCodeStoreCorrupt, err)
		}
		emb.Vector = vec
		emb.UpdatedAt = time.Unix(updated, 0)
		pending = append(pending, emb)
	}
	err = rows.Err()
	_ = rows.Close()
	s.mu.RUnlock()
	if err != nil {
		return syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}

	if len(pending) == 0 {
		return nil
	}

	if err := s.remote.Push(ctx, pending); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(pending))
	for i, emb := range pending {
		ids[i] = emb.ItemID
	}
	query, args := inClause(`UPDATE embeddings SET dirty = 0 WHERE item_id IN `, ids)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	slog.Debug("pushed pending embeddings", slog.Int("count", len(pending)))
	return nil
}

// PullRemote fetches embeddings added remotely since the last pull and
// upserts them locally (clean, not dirty). Returns true if anything came.
func (s *SQLiteStore) PullRemote(ctx context.Context, modelTag string) (bool, error) {
	if s.remote == nil {
		return false, nil
	}

	since, err := s.metaIntLocked(ctx, metaKeyLastPull)
	if err != nil {
		return false, err
	}

	fetched, cursor, err := s.remote.Pull(ctx, modelTag, since)
	if err != nil {
		return false, err
	}
	if len(fetched) == 0 {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, emb := range fetched {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings (item_id, model_tag, vector, version, error_count, dirty, updated_at)
			VALUES (?, ?, ?, ?, 0, 0, ?)
			ON CONFLICT(item_id, model_tag) DO UPDATE SET
				vector = excluded.vector,
				version = excluded.version,
				error_count = 0,
				dirty = 0,
				updated_at = excluded.updated_at`,
			emb.ItemID, emb.ModelTag, encodeVector(emb.Vector), emb.Version, time.Now().Unix())
		if err != nil {
			return false, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaKeyLastPull, strconv.FormatInt(cursor, 10)); err != nil {
		return false, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	if err := tx.Commit(); err != nil {
		return false, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}

	slog.Info("pulled remote embeddings", slog.Int("count", len(fetched)))
	return true, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// queryIDSet runs a single-column id query into a set. Caller holds the lock.
func (s *SQLiteStore) queryIDSet(ctx context.Context, query string, args ...any) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// metaInt reads an integer meta value. Caller holds the lock.
func (s *SQLiteStore) metaInt(ctx context.Context, key string) (int64, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, syncerrors.Wrap(syncerrors.ErrCodeStoreCorrupt, err)
	}
	return n, nil
}

// metaIntLocked reads an integer meta value taking the read lock.
func (s *SQLiteStore) metaIntLocked(ctx context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metaInt(ctx, key)
}

// bumpMetaCounter increments an integer meta key inside a transaction.
func bumpMetaCounter(ctx context.Context, tx *sql.Tx, key string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, '1')
		ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(meta.value AS INTEGER) + 1 AS TEXT)`, key)
	if err != nil {
		return syncerrors.Wrap(syncerrors.ErrCodeStoreQuery, err)
	}
	return nil
}

// inClause builds "prefix (?,?,...)" with matching args.
func inClause(prefix string, ids []string) (string, []any) {
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return prefix + "(" + placeholders + ")", args
}
