// Full scan in address order.
//
// All walks every shard of one snapshot sequentially, yielding lines
// lazily. Unlike Query it holds at most one line in memory, which makes it
// the building block for Dump and for callers that stream a whole
// database. Breaking out of the range loop stops the scan.
package shardb

import (
	"fmt"
	"iter"
)

// All yields every line of the current snapshot with its address.
func (db *DB) All() iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		if db.closed.Load() {
			yield(Item{}, ErrClosed)
			return
		}
		st := db.snapshot()
		capacity := db.config.FileCapacity

		for s, name := range st.shards {
			// The tail shard holds exactly the committed remainder.
			to := capacity - 1
			if s == len(st.shards)-1 {
				to = st.lines - s*capacity - 1
			}
			k := 0
			for ln, err := range lines(db.root, name, 0, to, 1, db.opts.readBuffer) {
				if err != nil {
					yield(Item{}, fmt.Errorf("%w: shard %d: %w", ErrReadFailed, s, err))
					return
				}
				if !yield(Item{Address: s*capacity + k, Line: ln}, nil) {
					return
				}
				k++
			}
			if k != to+1 {
				yield(Item{}, fmt.Errorf("%w: shard %d (%s): read %d lines, want %d",
					ErrReadFailed, s, name, k, to+1))
				return
			}
		}
	}
}
