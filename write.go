// Write pipeline.
//
// A batch is distributed in two parts. The leading items fill the room
// left in the tail shard and are written at the tail's committed byte
// offset. The rest is cut into chunks of exactly FileCapacity lines (the
// last may be shorter), and each chunk becomes a new shard named by its
// index. New shards are written concurrently to temporary files and renamed
// into place.
//
// Commit order is: shard bytes, then manifest, then in-memory state. If any
// step fails, the tail shard is truncated back to its committed size and
// every new shard file is removed, so disk, manifest and memory still agree
// on the previous state. Anything rollback cannot undo is repaired on the
// next open by manifest reconciliation.
package shardb

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WriteResult reports the outcome of one write.
type WriteResult struct {
	InsertedLines  int // Lines appended by this write
	InsertedShards int // Shard files created by this write
	TotalLines     int // Lines in the database after the write
	TotalShards    int // Shards in the database after the write
}

// WriteOp is a submitted write. It runs exactly once, in submission order
// relative to other writes on the same database. Wait may be called any
// number of times and always returns the same outcome.
type WriteOp struct {
	items []string
	done  chan struct{}
	res   WriteResult
	err   error
}

// Wait blocks until the write has settled and returns its outcome.
func (op *WriteOp) Wait() (WriteResult, error) {
	<-op.done
	return op.res, op.err
}

// Done is closed once the write has settled.
func (op *WriteOp) Done() <-chan struct{} {
	return op.done
}

func (op *WriteOp) settle(res WriteResult, err error) {
	op.res, op.err = res, err
	close(op.done)
}

// Insert submits lines for appending and returns immediately. Lines must
// not contain '\n'; an invalid batch settles with ErrInvalidLine without
// touching disk.
func (db *DB) Insert(items ...string) *WriteOp {
	op := &WriteOp{items: slices.Clone(items), done: make(chan struct{})}
	for i, item := range op.items {
		if strings.ContainsRune(item, '\n') {
			op.settle(WriteResult{}, fmt.Errorf("%w: item %d", ErrInvalidLine, i))
			return op
		}
	}
	if !db.queue.push(op) {
		op.settle(WriteResult{}, ErrClosed)
	}
	return op
}

// Write appends lines and waits for the result.
func (db *DB) Write(items ...string) (WriteResult, error) {
	return db.Insert(items...).Wait()
}

// run executes one op on the queue worker.
func (db *DB) run(op *WriteOp) {
	start := time.Now()
	res, err := db.apply(op.items)
	db.metrics.observeWrite(res, err, start)
	op.settle(res, err)
}

// apply performs the durable writes for a batch and commits. Only the
// queue worker calls it, so the tail shard has a single writer.
func (db *DB) apply(items []string) (WriteResult, error) {
	st := db.snapshot()
	capacity := db.config.FileCapacity

	if len(items) == 0 {
		return WriteResult{TotalLines: st.lines, TotalShards: len(st.shards)}, nil
	}

	room := 0
	if r := st.lines % capacity; r != 0 {
		room = capacity - r
	}
	head := min(room, len(items))
	chunks := split(items[head:], capacity)

	added := make([]string, len(chunks))
	for k := range chunks {
		added[k] = shardName(len(st.shards)+k, db.config.FileExtension)
	}

	tail := st.tail
	if head > 0 {
		n, err := db.appendTail(st.last(), st.tail, items[:head])
		if err != nil {
			return WriteResult{}, db.rollback(st, nil, fmt.Errorf("append %s: %w", st.last(), err))
		}
		tail += n
	}

	if len(chunks) > 0 {
		sizes, err := db.createShards(added, chunks)
		if err != nil {
			return WriteResult{}, db.rollback(st, added, err)
		}
		tail = sizes[len(sizes)-1]
	}

	next := st.next(len(items), added, tail)
	if err := writeManifest(db.root, next, db.opts.algorithm, db.opts.syncWrites); err != nil {
		return WriteResult{}, db.rollback(st, added, err)
	}
	db.state.Store(next)

	db.log.Debug("commit",
		zap.Int("lines", len(items)),
		zap.Int("shards_created", len(added)),
		zap.Int("total_lines", next.lines),
		zap.Int("total_shards", len(next.shards)))

	return WriteResult{
		InsertedLines:  len(items),
		InsertedShards: len(added),
		TotalLines:     next.lines,
		TotalShards:    len(next.shards),
	}, nil
}

// split cuts items into consecutive chunks of size n.
func split(items []string, n int) [][]string {
	var chunks [][]string
	for len(items) > 0 {
		k := min(n, len(items))
		chunks = append(chunks, items[:k])
		items = items[k:]
	}
	return chunks
}

// rows encodes lines as '\n' terminated rows.
func rows(items []string) []byte {
	n := len(items)
	for _, item := range items {
		n += len(item)
	}
	buf := make([]byte, 0, n)
	for _, item := range items {
		buf = append(buf, item...)
		buf = append(buf, '\n')
	}
	return buf
}

// appendTail writes items at byte offset off of the tail shard and returns
// the number of bytes written.
func (db *DB) appendTail(name string, off int64, items []string) (int64, error) {
	f, err := db.root.OpenFile(shardPath(name), os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	data := rows(items)
	if _, err := f.WriteAt(data, off); err != nil {
		f.Close()
		return 0, err
	}
	if db.opts.syncWrites {
		if err := f.Sync(); err != nil {
			f.Close()
			return 0, err
		}
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// createShards writes each chunk to its new shard concurrently and returns
// the byte size of every shard in index order.
func (db *DB) createShards(names []string, chunks [][]string) ([]int64, error) {
	sizes := make([]int64, len(chunks))
	errs := make([]error, len(chunks))

	var wg sync.WaitGroup
	for k := range chunks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sizes[k], errs[k] = db.createShard(names[k], chunks[k])
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if db.opts.syncWrites {
		syncDir(db.root, storeDir)
	}
	return sizes, nil
}

// createShard writes one new shard through a temporary file.
func (db *DB) createShard(name string, items []string) (int64, error) {
	tmpName := name + ".tmp"
	f, err := db.root.OpenFile(shardPath(tmpName), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", name, err)
	}
	data := rows(items)
	if _, err := f.Write(data); err != nil {
		f.Close()
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	if db.opts.syncWrites {
		if err := f.Sync(); err != nil {
			f.Close()
			return 0, fmt.Errorf("sync %s: %w", name, err)
		}
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", name, err)
	}
	if err := db.root.Rename(shardPath(tmpName), shardPath(name)); err != nil {
		return 0, fmt.Errorf("rename %s: %w", name, err)
	}
	return int64(len(data)), nil
}

// rollback restores the files of the committed state st after a failed
// write and returns the error to report. added lists the shard names the
// write may have created.
func (db *DB) rollback(st *state, added []string, cause error) error {
	var errs []error
	if last := st.last(); last != "" {
		if sz, err := size(db.root, last); err == nil && sz != st.tail {
			if err := truncate(db.root, last, st.tail); err != nil {
				errs = append(errs, fmt.Errorf("rollback: truncate %s: %w", last, err))
			}
		}
	}
	for _, name := range added {
		for _, p := range []string{name, name + ".tmp"} {
			if err := db.root.Remove(shardPath(p)); err != nil && !os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("rollback: remove %s: %w", p, err))
			}
		}
	}

	err := fmt.Errorf("%w: %w", ErrWriteFailed, cause)
	if len(errs) > 0 {
		rerr := errors.Join(errs...)
		db.log.Error("rollback incomplete", zap.Error(rerr))
		err = errors.Join(err, rerr)
	}
	db.log.Error("write failed", zap.Error(cause))
	return err
}
