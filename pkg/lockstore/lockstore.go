// Package lockstore provides an atomic read-modify-write cycle over a
// single shared JSON state file, serialized across processes by an
// advisory file lock. The commit is a temp-file write followed by a
// rename, so readers of the canonical path only ever observe a fully
// committed state. The OS drops the advisory lock when the holding
// process exits, so a crashed writer can never wedge the store.
package lockstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/gofrs/flock"
)

// ErrLockTimeout reports that the advisory lock could not be acquired
// within the configured bound. Callers skip persistence for the cycle
// and render best-effort output instead of failing.
var ErrLockTimeout = errors.New("lock acquisition timed out")

const lockRetryDelay = 25 * time.Millisecond

// WithLock acquires an exclusive lock on path+".lock", loads the current
// state (fresh() when the file is absent or unreadable), applies fn to
// it, and commits the result atomically before releasing the lock. A
// corrupted state file is never fatal: it is replaced by fresh() with a
// warning. On fn error nothing is written and the error is returned.
func WithLock[T any](path string, timeout time.Duration, fresh func() T, fn func(*T) error) (T, error) {
	var zero T
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return zero, fmt.Errorf("mkdir state dir: %w", err)
	}
	lockPath := path + ".lock"
	// Pre-create so the lock file carries owner-only permissions.
	if f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE, 0o600); err == nil {
		_ = f.Close()
	}

	lock := flock.New(lockPath)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if !ok {
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
		return zero, ErrLockTimeout
	}
	defer lock.Close()

	state := loadOrFresh(path, fresh)
	if err := fn(&state); err != nil {
		return zero, err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("encode state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return zero, fmt.Errorf("write state temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return zero, fmt.Errorf("commit state: %w", err)
	}
	return state, nil
}

// ReadSnapshot loads the last committed state without taking the lock.
// The rename commit keeps the canonical path consistent at all times, so
// this is safe for display fallbacks (e.g. after a lock timeout).
func ReadSnapshot[T any](path string, fresh func() T) T {
	return loadOrFresh(path, fresh)
}

func loadOrFresh[T any](path string, fresh func() T) T {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("state file unreadable, starting fresh", "path", path, "error", err)
		}
		return fresh()
	}
	state := fresh()
	if err := json.Unmarshal(data, &state); err != nil {
		log.Warn("state file corrupted, starting fresh", "path", path, "error", err)
		return fresh()
	}
	return state
}
