//go:build !windows

package daemon

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrLockHeld means another process holds the lock.
var ErrLockHeld = errors.New("lock held by another process")

// FileLock is an advisory flock-based lock. The daemon holds one for its
// whole lifetime to guarantee a single instance per project directory;
// EnsureRunning callers use a second one to serialize startup.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock prepares a lock at the given path without acquiring it.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// TryAcquire takes the lock without blocking. Returns ErrLockHeld when
// another process owns it.
func (l *FileLock) TryAcquire() error {
	return l.acquire(syscall.LOCK_EX | syscall.LOCK_NB)
}

// Acquire blocks until the lock is available.
func (l *FileLock) Acquire() error {
	return l.acquire(syscall.LOCK_EX)
}

func (l *FileLock) acquire(how int) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return ErrLockHeld
		}
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}

	// Record the owner pid for diagnostics. The flock is the actual
	// exclusion mechanism; the content is informational.
	if err := f.Truncate(0); err == nil {
		_, _ = f.Seek(0, 0)
		_, _ = fmt.Fprintf(f, "pid=%d\n", os.Getpid())
	}

	l.file = f
	return nil
}

// Release drops the lock.
func (l *FileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return fmt.Errorf("unlock %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", l.path, closeErr)
	}
	return nil
}
