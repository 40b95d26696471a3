// Package store guards the data directory so only one warden process owns
// the approval queue, the generated skills and the ledger at a time.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// LockFileName is created inside the data directory.
const LockFileName = "warden.lock"

const (
	DefaultLockTimeout = 5 * time.Second
	DefaultLockRetry   = 100 * time.Millisecond
)

// FileLock is an exclusive advisory lock on a data directory.
type FileLock struct {
	mu         sync.RWMutex
	flock      *flock.Flock
	path       string
	acquiredAt time.Time
}

type LockConfig struct {
	Timeout time.Duration
	Retry   time.Duration
}

func DefaultLockConfig() LockConfig {
	return LockConfig{Timeout: DefaultLockTimeout, Retry: DefaultLockRetry}
}

// Acquire takes the lock on dir, retrying until cfg.Timeout or ctx ends.
// The directory is created when missing.
func Acquire(ctx context.Context, dir string, cfg LockConfig) (*FileLock, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLockTimeout
	}
	if cfg.Retry <= 0 {
		cfg.Retry = DefaultLockRetry
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dir, LockFileName)
	fl := flock.New(path)

	lockCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, cfg.Retry)
	if err != nil && lockCtx.Err() == nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("data dir %s is locked by another warden process (waited %v)", dir, cfg.Timeout)
	}

	l := &FileLock{flock: fl, path: path, acquiredAt: time.Now()}
	slog.Info("Data dir lock acquired", "path", path)
	return l, nil
}

// Unlock releases the lock. Calling it twice is harmless.
func (l *FileLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.flock == nil {
		return
	}
	if err := l.flock.Unlock(); err != nil {
		slog.Error("Failed to release data dir lock", "path", l.path, "error", err)
	} else {
		slog.Info("Data dir lock released", "path", l.path, "held", time.Since(l.acquiredAt).Round(time.Millisecond))
	}
	l.flock = nil
}

func (l *FileLock) IsLocked() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.flock != nil
}

func (l *FileLock) Path() string {
	return l.path
}

func (l *FileLock) HeldDuration() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.flock == nil {
		return 0
	}
	return time.Since(l.acquiredAt)
}

// CleanupStaleLocks reports a lock file older than maxAge and removes it
// when force is set. A lock held by a live process is never removed.
func CleanupStaleLocks(dir string, maxAge time.Duration, force bool) error {
	path := filepath.Join(dir, LockFileName)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	age := time.Since(info.ModTime())
	if age <= maxAge {
		return nil
	}
	slog.Warn("Found stale lock file", "path", path, "age", age.Round(time.Second), "max_age", maxAge)
	if !force {
		slog.Info("Stale lock left in place (use --force-clean-locks to remove)", "path", path)
		return nil
	}

	probe := flock.New(path)
	locked, err := probe.TryLock()
	if err != nil {
		return fmt.Errorf("probe lock %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("lock %s is held by a running process", path)
	}
	defer probe.Unlock()

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale lock: %w", err)
	}
	slog.Info("Stale lock file removed", "path", path)
	return nil
}
