// Package live fans relay events out to connected browser clients. New
// messages go both to a shared pull queue (SSE) and to every push subscriber
// (WebSocket); typing notifications are push only.
package live

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/wpprelay/internal/bus"
	"github.com/matheus3301/wpprelay/internal/metrics"
	"github.com/matheus3301/wpprelay/internal/store"
	"go.uber.org/zap"
)

// Event types.
const (
	TypeNewMessage  = "new_message"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
)

// Namespace prefixes the bus kind of every live event.
const Namespace = "live."

// Event is the wire form of a live notification.
type Event struct {
	Type    string         `json:"type"`
	Message *store.Message `json:"message,omitempty"`
	Data    any            `json:"data,omitempty"`
}

// Payload returns what push clients receive as the frame's data.
func (e Event) Payload() any {
	if e.Message != nil {
		return e.Message
	}
	return e.Data
}

// Hub combines the push bus and the pull queue.
type Hub struct {
	bus    *bus.Bus
	queue  *bus.Queue
	logger *zap.Logger
}

// NewHub creates a hub publishing on b and q.
func NewHub(b *bus.Bus, q *bus.Queue, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{bus: b, queue: q, logger: logger}
}

// PublishMessage announces a newly created message. Storage identifiers are
// stripped before the message leaves the process.
func (h *Hub) PublishMessage(msg store.Message) {
	pub := msg.Public()
	evt := Event{Type: TypeNewMessage, Message: &pub}
	be := h.wrap(evt, "")
	h.queue.Push(be)
	n := h.bus.Publish(be)
	metrics.LiveEventsPublished.WithLabelValues(TypeNewMessage).Inc()
	h.logger.Debug("live message published", zap.String("wamid", pub.ProviderID), zap.Int("push_subscribers", n))
}

// PublishTyping relays a typing notification to every push subscriber
// except origin.
func (h *Hub) PublishTyping(kind, origin string, data any) error {
	if kind != TypeTypingStart && kind != TypeTypingStop {
		return fmt.Errorf("unsupported live event %q", kind)
	}
	h.bus.Publish(h.wrap(Event{Type: kind, Data: data}, origin))
	metrics.LiveEventsPublished.WithLabelValues(kind).Inc()
	return nil
}

func (h *Hub) wrap(evt Event, origin string) bus.Event {
	return bus.Event{
		Kind:      Namespace + evt.Type,
		Timestamp: time.Now(),
		Origin:    origin,
		Payload:   evt,
	}
}

// Subscribe registers a push subscriber identified by origin.
func (h *Hub) Subscribe(origin string, buf int) (<-chan bus.Event, func()) {
	return h.bus.SubscribeAs(origin, Namespace, buf)
}

// Subscribers returns the number of connected push subscribers.
func (h *Hub) Subscribers() int {
	return h.bus.Len(Namespace)
}

// Pull takes the next queued event, waiting up to timeout.
func (h *Hub) Pull(ctx context.Context, timeout time.Duration) (Event, bool) {
	for {
		be, ok := h.queue.Pop(ctx, timeout)
		if !ok {
			return Event{}, false
		}
		if evt, ok := FromBus(be); ok {
			return evt, true
		}
	}
}

// Requeue returns an event taken by Pull to the head of the pull queue.
func (h *Hub) Requeue(evt Event) {
	h.queue.PushFront(h.wrap(evt, ""))
}

// FromBus extracts the live event carried by a bus event.
func FromBus(be bus.Event) (Event, bool) {
	evt, ok := be.Payload.(Event)
	return evt, ok
}
