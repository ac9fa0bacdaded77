// Address arithmetic for fixed-capacity shards.
//
// A line's address maps to (shard, offset) by integer division, and every
// selection a query can express (all lines, one shard, a run of adjacent
// shards) is a single contiguous address range. span models that range;
// skip and limit only ever move its ends, so it never needs to represent
// holes.
package shardb

// shardOf returns the shard index holding address i.
func shardOf(i, capacity int) int {
	return i / capacity
}

// offsetOf returns the line offset of address i within its shard.
func offsetOf(i, capacity int) int {
	return i % capacity
}

// shardSpan returns the full address range of shard s.
func shardSpan(s, capacity int) span {
	return span{start: s * capacity, end: s*capacity + capacity - 1}
}

// span is an inclusive address range. It is empty when end < start.
type span struct {
	start int
	end   int
}

// emptySpan is the canonical empty range.
var emptySpan = span{start: 0, end: -1}

func (s span) empty() bool {
	return s.end < s.start
}

func (s span) len() int {
	if s.empty() {
		return 0
	}
	return s.end - s.start + 1
}

// clip lowers the upper bound to last.
func (s span) clip(last int) span {
	if s.end > last {
		s.end = last
	}
	if s.empty() {
		return emptySpan
	}
	return s
}

// skip drops the first n addresses.
func (s span) skip(n int) span {
	if n <= 0 || s.empty() {
		return s
	}
	if n >= s.len() {
		return emptySpan
	}
	s.start += n
	return s
}

// limit keeps at most n addresses from the start. Zero means no limit.
func (s span) limit(n int) span {
	if n <= 0 || s.empty() {
		return s
	}
	if n < s.len() {
		s.end = s.start + n - 1
	}
	return s
}
