// Core database type and lifecycle.
//
// DB owns the sandboxed directory handle, the directory lock, the write
// queue and the current state pointer. Handles are obtained through
// Connect or Create (registry.go); open and create below do the actual
// work and are not deduplicated.
package shardb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
)

// DB is an open database. All methods are safe for concurrent use.
type DB struct {
	path    string   // Absolute database directory
	root    *os.Root // Sandboxed filesystem access
	lock    *dirLock // Cross-process ownership
	config  Config   // Persisted layout
	opts    options  // Runtime options
	log     *zap.Logger
	metrics *dbMetrics
	queue   *writeQueue
	state   atomic.Pointer[state]
	closed  atomic.Bool

	released chan struct{} // closed once Close has released every resource
}

// Path returns the database directory.
func (db *DB) Path() string {
	return db.path
}

// Config returns the persisted configuration.
func (db *DB) Config() Config {
	return db.config
}

// open opens the existing database at path.
func open(path string, opts options) (*DB, error) {
	root, err := os.OpenRoot(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg, err := readConfig(root)
	if errors.Is(err, fs.ErrNotExist) {
		root.Close()
		return nil, ErrNotFound
	}
	if err != nil {
		root.Close()
		return nil, err
	}

	lock, err := acquire(root)
	if err != nil {
		root.Close()
		return nil, err
	}

	log := opts.logger.Named("shardb").With(zap.String("db", path))
	st, err := load(root, cfg, opts, log)
	if err != nil {
		lock.release()
		root.Close()
		return nil, err
	}

	db := &DB{
		path:   path,
		root:   root,
		lock:   lock,
		config: cfg,
		opts:   opts,
		log:    log,

		released: make(chan struct{}),
	}
	db.state.Store(st)
	db.queue = newWriteQueue(db.run)
	db.metrics = newMetrics(db, path)

	log.Info("opened",
		zap.Int("capacity", cfg.FileCapacity),
		zap.Int("shards", len(st.shards)),
		zap.Int("lines", st.lines))
	return db, nil
}

// load builds the initial state from the manifest, or adopts the store
// directory when there is none.
func load(root *os.Root, cfg Config, opts options, log *zap.Logger) (*state, error) {
	if err := root.Mkdir(storeDir, 0755); err != nil && !errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("open: create store: %w", err)
	}

	m, err := readManifest(root)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if m != nil {
		if err := reconcile(root, m, cfg.FileExtension, log); err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		st := m.state()
		if want := ceilDiv(st.lines, cfg.FileCapacity); want != len(st.shards) {
			return nil, fmt.Errorf("%w: %d lines need %d shards, manifest lists %d",
				ErrCorruptManifest, st.lines, want, len(st.shards))
		}
		return st, nil
	}

	st, err := adopt(root, cfg, opts.readBuffer, log)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if err := writeManifest(root, st, opts.algorithm, opts.syncWrites); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return st, nil
}

// create makes a new database directory at path and opens it.
func create(path string, cfg Config, opts options) (*DB, error) {
	if err := os.Mkdir(path, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrExists
		}
		return nil, err
	}

	root, err := os.OpenRoot(path)
	if err != nil {
		os.RemoveAll(path)
		return nil, err
	}
	err = initialise(root, cfg, opts)
	root.Close()
	if err != nil {
		os.RemoveAll(path)
		return nil, err
	}

	opts.logger.Named("shardb").Info("created",
		zap.String("db", path),
		zap.Int("capacity", cfg.FileCapacity),
		zap.String("ext", cfg.FileExtension))
	return open(path, opts)
}

// initialise writes the layout of an empty database.
func initialise(root *os.Root, cfg Config, opts options) error {
	if err := root.Mkdir(storeDir, 0755); err != nil {
		return fmt.Errorf("create: store: %w", err)
	}
	if err := writeConfig(root, cfg); err != nil {
		return fmt.Errorf("create: config: %w", err)
	}
	if err := writeManifest(root, &state{}, opts.algorithm, opts.syncWrites); err != nil {
		return fmt.Errorf("create: %w", err)
	}
	return nil
}

// Close waits for every queued write to settle, then releases the lock and
// the directory handle. Writes submitted after Close fail with ErrClosed.
// The registry entry is removed last, so a Connect racing with Close waits
// for the release and then opens a fresh handle.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	defer close(db.released)
	db.queue.close()

	var errs []error
	if err := db.lock.release(); err != nil {
		errs = append(errs, err)
	}
	if err := db.root.Close(); err != nil {
		errs = append(errs, err)
	}
	unregister(db)

	st := db.snapshot()
	db.log.Info("closed", zap.Int("shards", len(st.shards)), zap.Int("lines", st.lines))
	return errors.Join(errs...)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
