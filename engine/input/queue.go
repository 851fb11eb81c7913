package input

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-sim/common"
)

// Queue is a double-buffered FIFO of input events. Producers append to the back
// buffer from any goroutine; the single consumer swaps buffers with Drain at the
// start of each tick, so events enqueued during a tick land in the next one.
type Queue struct {
	mu     sync.Mutex
	back   []Event
	front  []Event
	closed bool
}

// NewQueue creates a Queue whose buffers start with the given capacity.
//
// Parameters:
//   - capacity: initial capacity of each buffer
//
// Returns:
//   - *Queue: the new queue
func NewQueue(capacity int) *Queue {
	return &Queue{
		back:  make([]Event, 0, capacity),
		front: make([]Event, 0, capacity),
	}
}

// Enqueue appends ev to the pending buffer.
//
// Parameters:
//   - ev: the event to deliver on a later Drain
//
// Returns:
//   - error: common.ErrStopped if the queue has been closed
func (q *Queue) Enqueue(ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return common.ErrStopped
	}
	q.back = append(q.back, ev)
	return nil
}

// Drain atomically takes every pending event in enqueue order.
// The returned slice is only valid until the next Drain.
//
// Returns:
//   - []Event: the pending events, possibly empty
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.front, q.back = q.back, q.front[:0]
	return q.front
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.back)
}

// Close rejects further Enqueue calls and discards pending events.
// Calling Close more than once is safe; later calls discard nothing.
//
// Returns:
//   - int: the number of events that were pending and are now discarded
func (q *Queue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	q.closed = true
	n := len(q.back)
	q.back = nil
	return n
}
