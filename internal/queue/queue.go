// Package queue provides the bounded queue decoupling a Source's acquirer
// loop from its consumer loop (spec.md §4.2). It is grounded on
// original_source/driver/ni/ts_queue.h: a mutex-and-condvar queue whose
// Dequeue bounds its wait rather than blocking forever, so a consumer loop
// can still observe a stop request. Unlike ts_queue.h, Enqueue here blocks
// once the queue is at capacity: spec.md §4.5's documented backpressure
// chain (cluster write stall -> queue fills -> acquirer's next read blocks)
// only holds if Enqueue can itself block the acquirer thread.
package queue

import (
	"sync"
	"time"

	"github.com/aegisedge/daqdriver/internal/telem"
)

// DequeueWait is the bounded wait on an empty queue before Dequeue reports
// ok=false, matching ts_queue.h's 2-second condition_variable wait_for.
const DequeueWait = 2 * time.Second

// BatchQueue is a bounded, single-producer/single-consumer FIFO of Frames.
type BatchQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []telem.Frame
	cap      int
	closed   bool
}

// NewBatchQueue builds a BatchQueue holding at most capacity Frames.
func NewBatchQueue(capacity int) *BatchQueue {
	q := &BatchQueue{cap: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends frame, blocking while the queue is at capacity. It
// returns false without enqueuing if the queue has been closed.
func (q *BatchQueue) Enqueue(frame telem.Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) >= q.cap && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return false
	}
	q.items = append(q.items, frame)
	q.notEmpty.Signal()
	return true
}

// Dequeue removes and returns the oldest Frame, waiting up to DequeueWait
// if the queue is empty. ok is false on timeout or if the queue is closed
// and drained.
func (q *BatchQueue) Dequeue() (frame telem.Frame, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 && !q.closed {
		waited := make(chan struct{})
		timer := time.AfterFunc(DequeueWait, func() {
			q.mu.Lock()
			defer q.mu.Unlock()
			q.notEmpty.Broadcast()
		})
		go func() {
			<-waited
			timer.Stop()
		}()
		q.notEmpty.Wait()
		close(waited)
	}

	if len(q.items) == 0 {
		return telem.Frame{}, false
	}

	frame = q.items[0]
	q.items = q.items[1:]
	q.notFull.Signal()
	return frame, true
}

// Reset discards any buffered Frames without closing the queue and wakes
// any Enqueue blocked on a full queue.
func (q *BatchQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.notFull.Broadcast()
}

// Close unblocks any pending Enqueue or Dequeue and marks the queue closed.
// Further Enqueue calls fail; Dequeue continues to drain buffered Frames
// until empty, then fails.
func (q *BatchQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// Len reports the number of buffered Frames.
func (q *BatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
