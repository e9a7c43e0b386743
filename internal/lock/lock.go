// Package lock guards a data directory against concurrent processes.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	perrors "github.com/parley-chat/parley/internal/errors"
)

// FileName is the lock file created inside the data directory.
const FileName = "parley.lock"

// DirLock is an exclusive cross-process lock on a data directory.
// Works on all platforms (Unix, Linux, macOS, Windows).
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates a lock for dir. Nothing is acquired until TryLock.
func New(dir string) *DirLock {
	lockPath := filepath.Join(dir, FileName)
	return &DirLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking. A lock held by
// another process returns ERR_208_DATA_DIR_LOCKED.
func (l *DirLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return perrors.New(perrors.ErrCodeDataDirLocked,
			"data directory is in use by another parley process", nil).
			WithDetail("lock", l.path).
			WithSuggestion("Stop the other process or use a different --data-dir.")
	}

	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call more than once.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *DirLock) Path() string {
	return l.path
}

// IsLocked returns true if the lock is currently held.
func (l *DirLock) IsLocked() bool {
	return l.locked
}
