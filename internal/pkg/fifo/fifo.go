/*
Package fifo provides an unbounded, close-aware FIFO queue.

It backs every network connection's outbound direction and the event bus
dispatch queue: producers enqueue without ever blocking, a single consumer
blocks until an item arrives or the queue is closed.
*/
package fifo

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Push and Pop once the queue has been closed
// and, for Pop, fully drained.
var ErrClosed = errors.New("fifo: queue closed")

// Queue is an unbounded FIFO queue of T.
//
// Push never blocks. Pop blocks until an item is available or the queue
// is closed; items enqueued before Close are still delivered in order.
type Queue[T any] struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	items    []T
	closed   bool
}

// New constructs an empty, open Queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.nonEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends v to the tail of the queue. It returns ErrClosed if the
// queue has been closed; the item is not enqueued in that case.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	q.items = append(q.items, v)
	q.nonEmpty.Signal()
	return nil
}

// Pop removes and returns the head of the queue, blocking while the queue
// is empty. Once the queue is closed and drained it returns ErrClosed.
func (q *Queue[T]) Pop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.nonEmpty.Wait()
	}

	if len(q.items) == 0 {
		var zero T
		return zero, ErrClosed
	}

	head := q.items[0]
	q.items = q.items[1:]
	return head, nil
}

// Close marks the queue closed and wakes all blocked consumers. Closing an
// already-closed queue is a no-op.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	q.nonEmpty.Broadcast()
}

// Len reports the number of items currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
