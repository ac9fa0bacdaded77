// Process-wide registry of open databases.
//
// Concurrent Connect calls for the same directory share one in-flight open
// and receive the same *DB. A failed open or create is evicted so that a
// later call starts from scratch; Close evicts the handle as well. Keys
// are absolute, cleaned paths.
package shardb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/puzpuzpuz/xsync/v3"
)

// handle is a registry entry. ready is closed once db/err are set.
type handle struct {
	ready chan struct{}
	db    *DB
	err   error
}

var registry = xsync.NewMapOf[string, *handle]()

// Connect opens the existing database at path, or returns the handle
// already open in this process. Options only apply to the call that
// actually opens the database.
func Connect(path string, opts ...Option) (*DB, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
	}

	h := &handle{ready: make(chan struct{})}
	for {
		cur, loaded := registry.LoadOrStore(key, h)
		if !loaded {
			break
		}
		<-cur.ready
		if cur.db == nil || !cur.db.closed.Load() {
			return cur.db, cur.err
		}
		// Closing: wait until the entry and the lock are gone.
		<-cur.db.released
	}

	h.db, h.err = open(key, buildOptions(opts))
	if h.err != nil {
		h.err = fmt.Errorf("%w: %s: %w", ErrUnavailable, key, h.err)
		registry.Compute(key, func(cur *handle, loaded bool) (*handle, bool) {
			return cur, cur == h
		})
	}
	close(h.ready)
	return h.db, h.err
}

// Create makes a new database at path with cfg and opens it. It fails with
// ErrExists if the path is already open in this process or exists on disk.
// An empty FileExtension defaults to DefaultExtension.
func Create(path string, cfg Config, opts ...Option) (*DB, error) {
	if cfg.FileExtension == "" {
		cfg.FileExtension = DefaultExtension
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
	}

	h := &handle{ready: make(chan struct{})}
	if _, loaded := registry.LoadOrStore(key, h); loaded {
		return nil, fmt.Errorf("%w: %s", ErrExists, key)
	}

	if _, err := os.Stat(key); err == nil {
		h.err = fmt.Errorf("%w: %s", ErrExists, key)
	} else if !errors.Is(err, fs.ErrNotExist) {
		h.err = fmt.Errorf("%w: %s: %w", ErrUnavailable, key, err)
	} else {
		h.db, h.err = create(key, cfg, buildOptions(opts))
		if errors.Is(h.err, ErrExists) {
			h.err = fmt.Errorf("%w: %s", ErrExists, key)
		} else if h.err != nil {
			h.err = fmt.Errorf("%w: %s: %w", ErrUnavailable, key, h.err)
		}
	}
	if h.err != nil {
		registry.Compute(key, func(cur *handle, loaded bool) (*handle, bool) {
			return cur, cur == h
		})
	}
	close(h.ready)
	return h.db, h.err
}

// unregister removes db's entry if it still points at db.
func unregister(db *DB) {
	registry.Compute(db.path, func(cur *handle, loaded bool) (*handle, bool) {
		if !loaded {
			return cur, true
		}
		select {
		case <-cur.ready:
			return cur, cur.db == db
		default:
			return cur, false
		}
	})
}

// buildOptions builds options from defaults and opts.
func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
