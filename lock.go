// Cross-process ownership of a database directory.
//
// The registry deduplicates opens inside one process; dirLock covers other
// processes. A LOCK file in the database directory is held with an
// exclusive, non-blocking OS lock (flock(2) / LockFileEx) for the life of
// the handle, so a second process fails fast with ErrLocked instead of
// racing on the tail shard.
package shardb

import (
	"fmt"
	"os"
	"sync"
)

// dirLock owns the LOCK file handle. The mutex serialises lock syscalls
// against release so Fd() cannot race with Close().
type dirLock struct {
	mu sync.Mutex
	f  *os.File
}

// acquire opens LOCK in root and takes the exclusive lock.
func acquire(root *os.Root) (*dirLock, error) {
	f, err := root.OpenFile(lockFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("lock: open: %w", err)
	}
	l := &dirLock{f: f}
	if err := l.lock(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %w", ErrLocked, err)
	}
	return l, nil
}

// release unlocks and closes the handle. Safe to call more than once.
func (l *dirLock) release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.unlock()
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
