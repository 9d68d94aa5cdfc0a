// Package filelock provides advisory locking of the backup root so a
// scheduled backup and a manual recovery cannot interleave.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
)

// FileName is the lock file created inside the guarded directory.
const FileName = ".lifeboat.lock"

// FileLock represents a flock-based lock on a directory
type FileLock struct {
	path string
	file *os.File
}

// ForDir creates a lock guarding dir. Nothing is created until Lock is called.
func ForDir(dir string) *FileLock {
	return &FileLock{
		path: filepath.Join(dir, FileName),
	}
}

// Path returns the lock file path
func (fl *FileLock) Path() string {
	return fl.path
}

// TryLock attempts to acquire an exclusive lock without blocking.
// Returns true if the lock was acquired, false if another process holds it.
func (fl *FileLock) TryLock() (bool, error) {
	if fl.file != nil {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(fl.path), 0o700); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return false, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	// Record the holder for operators inspecting a stuck lock.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	fl.file = f
	return true, nil
}

// Lock acquires the lock, retrying with backoff until timeout elapses or ctx
// is cancelled. A zero timeout makes a single attempt.
func (fl *FileLock) Lock(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	retryInterval := 10 * time.Millisecond

	for {
		acquired, err := fl.TryLock()
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		if !time.Now().Before(deadline) {
			holder := fl.Holder()
			if holder != 0 {
				return fmt.Errorf("%w (pid %d holds %s)", apperrors.ErrLocked, holder, fl.path)
			}
			return fmt.Errorf("%w (%s)", apperrors.ErrLocked, fl.path)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
		// Exponential backoff up to 500ms
		if retryInterval < 500*time.Millisecond {
			retryInterval *= 2
		}
	}
}

// Holder returns the PID recorded in the lock file, or 0 if unknown.
func (fl *FileLock) Holder() int {
	data, err := os.ReadFile(fl.path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// Unlock releases the lock. The lock file stays in place; flock state, not
// file existence, is what guards the directory.
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}

	err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN)
	closeErr := fl.file.Close()
	fl.file = nil

	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close lock file: %w", closeErr)
	}

	return nil
}

// WithLock executes fn while holding the lock
func (fl *FileLock) WithLock(ctx context.Context, timeout time.Duration, fn func() error) error {
	if err := fl.Lock(ctx, timeout); err != nil {
		return err
	}
	defer fl.Unlock()
	return fn()
}
