package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	// Origin names the subscriber that caused the event. Subscribers
	// registered under the same origin do not receive it.
	Origin  string
	Payload any
}
