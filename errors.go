// Package shardb provides an append-only line store backed by a directory
// of fixed-capacity text files ("shards"). Every line gets a global,
// zero-based address; shard i holds addresses [i*C, i*C+C-1] where C is the
// configured file capacity, so locating a line is arithmetic rather than a
// scan.
//
// Writes against one database are serialised through a FIFO queue drained
// by a single worker goroutine. Each committed write publishes a new
// immutable state value (shard list, line count, tail size) through an
// atomic pointer, so queries run against a snapshot without taking locks
// and never observe a half-applied write. A manifest file records the
// committed state durably; failed writes are rolled back so the directory
// always matches the manifest.
package shardb

import "errors"

// Sentinel errors for programmatic handling. Callers can use errors.Is to
// distinguish configuration problems (ErrInvalidConfig), availability
// (ErrUnavailable, ErrLocked, ErrNotFound) and I/O failures during an
// operation (ErrWriteFailed, ErrReadFailed).
var (
	ErrInvalidConfig   = errors.New("invalid database configuration")
	ErrUnavailable     = errors.New("database unavailable")
	ErrNotFound        = errors.New("database not found")
	ErrExists          = errors.New("database already exists")
	ErrLocked          = errors.New("database is locked by another process")
	ErrClosed          = errors.New("database is closed")
	ErrCorruptManifest = errors.New("corrupt manifest")
	ErrWriteFailed     = errors.New("write failed")
	ErrReadFailed      = errors.New("read failed")
	ErrInvalidLine     = errors.New("line contains a newline")
	ErrInvalidPattern  = errors.New("invalid regex pattern")
)
