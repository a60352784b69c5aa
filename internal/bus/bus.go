package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
// A subscriber whose buffer is full when an event arrives is evicted and its
// channel closed, so it learns it fell behind instead of silently missing
// events.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	origin    string
	namespace string
	ch        chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends an event to all subscribers whose namespace is a prefix of
// event.Kind, skipping those registered under event.Origin. It returns the
// number of subscribers the event was handed to.
func (b *Bus) Publish(evt Event) int {
	var slow []int
	delivered := 0

	// Sends happen under the read lock so eviction cannot close a channel
	// mid-send.
	b.mu.RLock()
	for id, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.namespace) {
			continue
		}
		if evt.Origin != "" && sub.origin == evt.Origin {
			continue
		}
		select {
		case sub.ch <- evt:
			delivered++
		default:
			slow = append(slow, id)
		}
	}
	b.mu.RUnlock()

	if len(slow) > 0 {
		b.mu.Lock()
		for _, id := range slow {
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		}
		b.mu.Unlock()
	}
	return delivered
}

// Subscribe returns a channel that receives events matching the given namespace prefix.
// bufSize controls the channel buffer. Returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	return b.SubscribeAs("", namespace, bufSize)
}

// SubscribeAs is Subscribe for a named origin. Events published with the
// same Origin are not delivered back to it. The channel is closed if the
// subscriber is evicted for falling behind; unsubscribing never closes it.
func (b *Bus) SubscribeAs(origin, namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{origin: origin, namespace: namespace, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Len returns the number of active subscribers whose namespace starts with
// prefix. An empty prefix counts all of them.
func (b *Bus) Len(prefix string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, sub := range b.subs {
		if strings.HasPrefix(sub.namespace, prefix) {
			n++
		}
	}
	return n
}
