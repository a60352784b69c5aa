package status

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/wpprelay/internal/bus"
	"github.com/matheus3301/wpprelay/internal/store"
)

// State represents the health of the relay's store.
type State string

const (
	Booting  State = "BOOTING"
	Ready    State = "READY"
	Degraded State = "DEGRADED"
)

// EventStatusChanged is the bus kind published on every transition.
const EventStatusChanged = "store.status_changed"

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:  {Ready, Degraded},
	Ready:    {Degraded},
	Degraded: {Ready},
}

// Machine tracks and enforces store health transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to)
}

func (m *Machine) transitionLocked(to State) error {
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      EventStatusChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// Observe folds the outcome of a store operation into the state: success
// means READY, an ErrUnavailable failure means DEGRADED. Other errors and
// outcomes matching the current state leave it unchanged.
func (m *Machine) Observe(err error) {
	var to State
	switch {
	case err == nil:
		to = Ready
	case errors.Is(err, store.ErrUnavailable):
		to = Degraded
	default:
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == to {
		return
	}
	_ = m.transitionLocked(to)
}

// Pinger is the part of a store Watch needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Watch pings p every interval and observes the result until ctx is done.
// The first ping runs immediately.
func (m *Machine) Watch(ctx context.Context, p Pinger, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		pctx, cancel := context.WithTimeout(ctx, interval)
		err := p.Ping(pctx)
		cancel()
		if ctx.Err() != nil {
			return
		}
		m.Observe(err)

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
