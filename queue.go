// Per-database FIFO write queue.
//
// Every WriteOp is enqueued when it is created and executed by the single
// worker goroutine in enqueue order. The worker starts an op only after the
// previous one has settled; a failed op is settled with its error and the
// worker moves on, so one failure never blocks or fails its successors.
// The mutex guards only the slice bookkeeping, never the I/O.
package shardb

import "sync"

// writeQueue is an unbounded FIFO drained by one worker goroutine.
type writeQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ops    []*WriteOp
	closed bool
	done   chan struct{}
}

// newWriteQueue starts the worker. run is called for each op in order.
func newWriteQueue(run func(*WriteOp)) *writeQueue {
	q := &writeQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.work(run)
	return q
}

// push appends op. Returns false if the queue is closed.
func (q *writeQueue) push(op *WriteOp) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.ops = append(q.ops, op)
	q.cond.Signal()
	return true
}

// pop blocks until an op is available. It returns nil once the queue is
// closed and drained.
func (q *writeQueue) pop() *WriteOp {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.ops) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.ops) == 0 {
		return nil
	}
	op := q.ops[0]
	q.ops[0] = nil // release for gc
	q.ops = q.ops[1:]
	return op
}

func (q *writeQueue) work(run func(*WriteOp)) {
	defer close(q.done)
	for {
		op := q.pop()
		if op == nil {
			return
		}
		run(op)
	}
}

// close rejects further pushes, lets the worker finish every op already
// queued, and waits for it to exit.
func (q *writeQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}

// pending returns the number of ops waiting to run.
func (q *writeQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}
