// Package queue provides the unbounded FIFO used by transports. Unbounded
// by design: the protocol applies no flow control at this layer, so an
// enqueue must never block the producing handler.
package queue

import "sync"

// Queue is a concurrency-safe unbounded FIFO of message frames.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  [][]byte
	closed bool
}

// New returns an empty open queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a frame. Returns false if the queue is closed.
func (q *Queue) Push(msg []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, msg)
	q.cond.Signal()
	return true
}

// Pop blocks until a frame is available or the queue is closed and drained.
// The second result is false only when the queue is exhausted.
func (q *Queue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// Close stops accepting frames. Frames already queued remain poppable.
// Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
