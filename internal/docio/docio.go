// Package docio provides the file-document I/O discipline shared by the plan
// and state stores: a file-scoped advisory lock around every read-modify-write
// cycle, and atomic replacement on save so a crash mid-write never leaves a
// corrupt store behind.
package docio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/fyrsmithlabs/phasegate/internal/errdefs"
)

const (
	// lockTimeout bounds how long a caller waits for a contended store file.
	lockTimeout = 10 * time.Second

	// lockPollInterval is how often lock acquisition is retried.
	lockPollInterval = 50 * time.Millisecond
)

// WithLock runs fn while holding the exclusive advisory lock guarding path.
// The lock lives next to the store file so operations against different
// stores never contend.
func WithLock(ctx context.Context, path string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errdefs.NewStoreError("lock", path, fmt.Errorf("creating store directory: %w", err))
	}

	lock := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, lockPollInterval)
	if err != nil {
		return errdefs.NewStoreError("lock", path, err)
	}
	if !locked {
		return errdefs.NewStoreError("lock", path, fmt.Errorf("not acquired within %s", lockTimeout))
	}
	defer lock.Unlock() //nolint:errcheck // release failure leaves a stale flock, nothing to do

	return fn()
}

// ReadFile reads the document at path. A missing file returns (nil, false)
// rather than an error: an absent store is an empty store.
func ReadFile(path string) ([]byte, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return content, true, nil
}

// WriteAtomic writes data to a temporary file in the same directory and
// renames it over path, so readers observe either the old or the new
// document, never a partial write.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
