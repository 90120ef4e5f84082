package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// SyncLock provides cross-process locking of the data directory so at most
// one bulk sync runs against an index at a time, even across processes.
type SyncLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewSyncLock creates a lock for the given data directory.
// The lock file is created at <dir>/.sync.lock.
func NewSyncLock(dir string) *SyncLock {
	lockPath := filepath.Join(dir, ".sync.lock")
	return &SyncLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if another process holds it.
func (l *SyncLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked SyncLock.
func (l *SyncLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		l.locked = false
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file path.
func (l *SyncLock) Path() string {
	return l.path
}
