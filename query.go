// Query engine.
//
// A query resolves its shard selection, skip and limit into one contiguous
// address span against a snapshot, then reads only the shards that span
// touches. Shards are read concurrently and reassembled in shard order.
// Each line's address is computed from its shard and offset, so the result
// is in address order regardless of which read finishes first.
//
// Queries never enter the write queue. The snapshot is taken once, when
// Run starts, and later commits cannot affect it.
package shardb

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Predicate decides whether a line is included in a query result. A line
// is excluded when the predicate returns false, returns an error, or
// panics; none of these abort the query.
type Predicate func(line string) (bool, error)

// Contains returns a predicate matching lines that contain substr.
func Contains(substr string) Predicate {
	return func(line string) (bool, error) {
		return strings.Contains(line, substr), nil
	}
}

// Match returns a predicate matching lines against a regular expression.
func Match(pattern string) (Predicate, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}
	return func(line string) (bool, error) {
		return re.MatchString(line), nil
	}, nil
}

// keep evaluates p, mapping errors and panics to false.
func (p Predicate) keep(line string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	match, err := p(line)
	return err == nil && match
}

// Item is one addressed line.
type Item struct {
	Address int    // Global line index
	Line    string // Line content without terminator
}

// QueryResult holds the matching lines and the counts of the snapshot the
// query ran against.
type QueryResult struct {
	Items       []Item
	TotalLines  int
	TotalShards int
}

// Selection kinds.
const (
	selectAll = iota
	selectShard
	selectRange
)

// Query is a read request built with chained setters and executed by Run.
// Setters called after Run have no effect on the memoized result.
type Query struct {
	db    *DB
	kind  int
	from  int
	to    int
	open  bool // range without an upper bound
	skip  int
	limit int
	pred  Predicate

	once sync.Once
	res  QueryResult
	err  error
}

// Query starts a query over all shards.
func (db *DB) Query() *Query {
	return &Query{db: db}
}

// Shard restricts the query to one shard. An index outside the snapshot's
// shards selects nothing.
func (q *Query) Shard(i int) *Query {
	q.kind, q.from, q.to, q.open = selectShard, i, i, false
	return q
}

// ShardRange restricts the query to shards from..to inclusive. Negative
// bounds are treated as 0 and reversed bounds are swapped. Shards past the
// last one are ignored.
func (q *Query) ShardRange(from, to int) *Query {
	from, to = max(from, 0), max(to, 0)
	if from > to {
		from, to = to, from
	}
	q.kind, q.from, q.to, q.open = selectRange, from, to, false
	return q
}

// ShardsFrom restricts the query to shard from and every later shard.
func (q *Query) ShardsFrom(from int) *Query {
	q.kind, q.from, q.to, q.open = selectRange, max(from, 0), 0, true
	return q
}

// Skip drops the first n selected lines. Negative n is treated as 0.
func (q *Query) Skip(n int) *Query {
	q.skip = max(n, 0)
	return q
}

// Limit caps the number of selected lines after Skip. Zero or negative
// means no limit.
func (q *Query) Limit(n int) *Query {
	q.limit = max(n, 0)
	return q
}

// Find sets the row predicate. A nil predicate is ignored.
func (q *Query) Find(p Predicate) *Query {
	if p != nil {
		q.pred = p
	}
	return q
}

// Run executes the query once and returns its memoized result.
func (q *Query) Run() (QueryResult, error) {
	q.once.Do(func() {
		start := time.Now()
		q.res, q.err = q.exec()
		q.db.metrics.observeQuery(q.res, q.err, start)
	})
	return q.res, q.err
}

// span resolves the selection, skip and limit against a snapshot.
func (q *Query) span(st *state, capacity int) span {
	n := len(st.shards)
	sp := span{start: 0, end: st.lines - 1}

	switch q.kind {
	case selectShard:
		if q.from < 0 || q.from > n-1 {
			return emptySpan
		}
		sp = shardSpan(q.from, capacity)
	case selectRange:
		to := q.to
		if q.open || to > n-1 {
			to = n - 1
		}
		if q.from > to {
			return emptySpan
		}
		sp = span{start: shardSpan(q.from, capacity).start, end: shardSpan(to, capacity).end}
	}

	return sp.clip(st.lines - 1).skip(q.skip).limit(q.limit)
}

func (q *Query) exec() (QueryResult, error) {
	if q.db.closed.Load() {
		return QueryResult{}, ErrClosed
	}
	st := q.db.snapshot()
	capacity := q.db.config.FileCapacity
	res := QueryResult{TotalLines: st.lines, TotalShards: len(st.shards)}

	sp := q.span(st, capacity)
	if sp.empty() {
		return res, nil
	}

	first, last := shardOf(sp.start, capacity), shardOf(sp.end, capacity)
	parts := make([][]string, last-first+1)
	want := make([]int, len(parts))
	errs := make([]error, len(parts))

	var wg sync.WaitGroup
	for s := first; s <= last; s++ {
		from, to := 0, capacity-1
		if s == first {
			from = offsetOf(sp.start, capacity)
		}
		if s == last {
			to = offsetOf(sp.end, capacity)
		}
		want[s-first] = to - from + 1
		wg.Add(1)
		go func() {
			defer wg.Done()
			parts[s-first], errs[s-first] = readRange(q.db.root, st.shards[s], from, to, q.db.opts.readBuffer)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return QueryResult{}, fmt.Errorf("%w: shard %d: %w", ErrReadFailed, first+i, err)
		}
		// A committed shard always holds its full range.
		if len(parts[i]) != want[i] {
			return QueryResult{}, fmt.Errorf("%w: shard %d (%s): read %d lines, want %d",
				ErrReadFailed, first+i, st.shards[first+i], len(parts[i]), want[i])
		}
	}

	res.Items = make([]Item, 0, sp.len())
	for i, part := range parts {
		s := first + i
		base := s * capacity
		if s == first {
			base = sp.start
		}
		for k, ln := range part {
			if q.pred != nil && !q.pred.keep(ln) {
				continue
			}
			res.Items = append(res.Items, Item{Address: base + k, Line: ln})
		}
	}
	return res, nil
}
