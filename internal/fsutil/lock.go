package fsutil

import (
	"fmt"
	"os"
	"time"
)

const lockRetryDelay = 10 * time.Millisecond

// FileLock is an exclusive advisory lock held as a file created with O_EXCL.
// Portable across the filesystems cluster nodes share, unlike flock.
type FileLock struct {
	path string
}

// AcquireLock creates the lock file, retrying until timeout. A lock file
// whose mtime is older than staleAfter is treated as abandoned by a dead
// process and removed; the removal may race another waiter, so acquisition
// always goes through another O_EXCL attempt.
func AcquireLock(path string, timeout, staleAfter time.Duration) (*FileLock, error) {
	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			if cerr := f.Close(); cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("write lock %q: %w", path, cerr)
			}
			return &FileLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock %q: %w", path, err)
		}

		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > staleAfter {
			_ = os.Remove(path)
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %q still held after %s", path, timeout)
		}
		time.Sleep(lockRetryDelay)
	}
}

// Path returns the lock file's location.
func (l *FileLock) Path() string { return l.path }

// Release removes the lock file.
func (l *FileLock) Release() {
	_ = os.Remove(l.path)
}
