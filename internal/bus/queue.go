package bus

import (
	"context"
	"sync"
	"time"
)

// Queue is an unbounded FIFO of events shared by all pollers. Each event is
// handed to exactly one Pop call.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	notify chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends evt and wakes one waiting poller. It never blocks.
func (q *Queue) Push(evt Event) {
	q.mu.Lock()
	q.items = append(q.items, evt)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// PushFront puts evt back at the head of the queue, for a poller that took
// it but could not hand it on.
func (q *Queue) PushFront(evt Event) {
	q.mu.Lock()
	q.items = append([]Event{evt}, q.items...)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest event, waiting up to timeout for one to
// arrive. It returns false when the timeout elapses or ctx is done.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Event, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if evt, ok := q.tryPop(); ok {
			return evt, true
		}
		select {
		case <-q.notify:
		case <-timer.C:
			return Event{}, false
		case <-ctx.Done():
			return Event{}, false
		}
	}
}

func (q *Queue) tryPop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Event{}, false
	}
	evt := q.items[0]
	q.items[0] = Event{}
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// Pass the wake-up on so another poller sees the remaining items.
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return evt, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
