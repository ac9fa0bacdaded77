//go:build windows

package shardb

import "golang.org/x/sys/windows"

// The whole file is locked by locking the maximum byte range.
const lockRange = ^uint32(0)

func (l *dirLock) lock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ol := new(windows.Overlapped)
	return windows.LockFileEx(windows.Handle(l.f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, lockRange, lockRange, ol)
}

func (l *dirLock) unlock() error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(l.f.Fd()), 0, lockRange, lockRange, ol)
}
