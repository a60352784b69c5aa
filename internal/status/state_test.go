package status

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/wpprelay/internal/bus"
	"github.com/matheus3301/wpprelay/internal/store"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		path []State
	}{
		{[]State{Ready}},
		{[]State{Degraded}},
		{[]State{Ready, Degraded}},
		{[]State{Degraded, Ready}},
		{[]State{Ready, Degraded, Ready}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.path), func(t *testing.T) {
			m := NewMachine(nil)
			for _, s := range tt.path {
				if err := m.Transition(s); err != nil {
					t.Fatalf("Transition(%s) error = %v (current: %s)", s, err, m.Current())
				}
			}
			if want := tt.path[len(tt.path)-1]; m.Current() != want {
				t.Errorf("state = %s, want %s", m.Current(), want)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Booting); err == nil {
		t.Error("Transition(BOOTING -> BOOTING) should fail")
	}
	_ = m.Transition(Ready)
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(READY -> READY) should fail")
	}
	if err := m.Transition(Booting); err == nil {
		t.Error("Transition(READY -> BOOTING) should fail")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("store.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Degraded); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != EventStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, EventStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != Degraded {
		t.Errorf("change = %v -> %v, want BOOTING -> DEGRADED", change.From, change.To)
	}
}

func TestObserve(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("store.", 10)
	defer unsub()
	m := NewMachine(b)

	m.Observe(nil)
	m.Observe(nil)
	if m.Current() != Ready {
		t.Fatalf("state = %s, want READY", m.Current())
	}

	m.Observe(errors.New("validation failed"))
	if m.Current() != Ready {
		t.Errorf("non-store error changed state to %s", m.Current())
	}

	m.Observe(fmt.Errorf("find: %w", store.ErrUnavailable))
	if m.Current() != Degraded {
		t.Errorf("state = %s, want DEGRADED", m.Current())
	}

	m.Observe(nil)
	if m.Current() != Ready {
		t.Errorf("state = %s, want READY after recovery", m.Current())
	}

	// BOOTING->READY, READY->DEGRADED, DEGRADED->READY
	if got := len(ch); got != 3 {
		t.Errorf("published %d events, want 3", got)
	}
}

type flakyPinger struct {
	calls atomic.Int32
	down  atomic.Bool
}

func (p *flakyPinger) Ping(context.Context) error {
	p.calls.Add(1)
	if p.down.Load() {
		return store.Unavailable{}.Ping(context.Background())
	}
	return nil
}

func TestWatch(t *testing.T) {
	m := NewMachine(nil)
	p := &flakyPinger{}
	p.down.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Watch(ctx, p, 10*time.Millisecond)
		close(done)
	}()

	waitFor(t, func() bool { return m.Current() == Degraded })
	p.down.Store(false)
	waitFor(t, func() bool { return m.Current() == Ready })

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
