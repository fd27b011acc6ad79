package queue

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ThreadSafeQueue is an unbounded FIFO with a blocking pop.
// Add never blocks, so producers that are themselves consumers of another
// queue cannot deadlock on a full buffer.
type ThreadSafeQueue[T any] struct {
	items  []T
	mu     sync.Mutex
	cond   *sync.Cond // Signalled on Add and Close
	closed bool
	log    *logrus.Entry
}

// NewThreadSafeQueue creates an empty open queue
func NewThreadSafeQueue[T any](log *logrus.Entry) *ThreadSafeQueue[T] {
	q := &ThreadSafeQueue[T]{log: log}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add appends an item. It returns false if the queue has been closed.
func (q *ThreadSafeQueue[T]) Add(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.log.Debug("Attempted to add item to closed queue")
		return false
	}

	q.items = append(q.items, item)
	q.cond.Signal()
	return true
}

// Pop removes the oldest item, blocking while the queue is empty and open.
// Returns false once the queue is closed and drained.
func (q *ThreadSafeQueue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			var zero T
			return zero, false
		}
		q.cond.Wait()
	}
	return q.popLocked(), true
}

func (q *ThreadSafeQueue[T]) popLocked() T {
	item := q.items[0]
	var zero T
	q.items[0] = zero // avoid holding a reference in the backing array
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return item
}

// Close stops further Adds. Items already queued can still be popped.
func (q *ThreadSafeQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast() // Wake up all waiting consumers so they can observe the closed state
	}
}

// Len returns the current number of items in the queue (thread-safe)
func (q *ThreadSafeQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
