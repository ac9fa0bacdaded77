// Immutable database state and snapshots.
//
// A state value is built once by the writer and then only read. Commit
// swaps DB.state to a new value; readers that loaded the previous pointer
// keep a complete, consistent view because nothing they reference is ever
// modified. This is the whole isolation mechanism: there is no reader lock.
package shardb

import "slices"

// state is one committed version of the database.
type state struct {
	shards []string // shard file names, oldest first; index == shard number
	lines  int      // total lines appended
	tail   int64    // byte size of the last shard, 0 when there are no shards
}

// next returns the state after appending lines to the tail shard and
// creating added shards. The receiver is left untouched.
func (s *state) next(lines int, added []string, tail int64) *state {
	shards := s.shards
	if len(added) > 0 {
		shards = slices.Concat(s.shards, added)
	}
	return &state{shards: shards, lines: s.lines + lines, tail: tail}
}

// last returns the name of the tail shard, or "" when empty.
func (s *state) last() string {
	if len(s.shards) == 0 {
		return ""
	}
	return s.shards[len(s.shards)-1]
}

// Stats reports the counts of a snapshot.
type Stats struct {
	Lines    int    // Total lines
	Shards   int    // Shard files
	Capacity int    // Lines per shard
	Tail     int64  // Byte size of the last shard
	Ext      string // Shard file extension
}

// Stats returns the counts of the current snapshot.
func (db *DB) Stats() Stats {
	st := db.snapshot()
	return Stats{
		Lines:    st.lines,
		Shards:   len(st.shards),
		Capacity: db.config.FileCapacity,
		Tail:     st.tail,
		Ext:      db.config.FileExtension,
	}
}

// snapshot returns the current committed state.
func (db *DB) snapshot() *state {
	return db.state.Load()
}
