//go:build unix

package shardb

import "golang.org/x/sys/unix"

func (l *dirLock) lock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func (l *dirLock) unlock() error {
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}
