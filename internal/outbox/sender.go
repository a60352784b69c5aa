package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/wpprelay/internal/store"
	"go.uber.org/zap"
)

// DefaultMaxPending bounds the number of messages held in memory.
const DefaultMaxPending = 1000

// Ingester persists a message unless its provider id already exists.
type Ingester interface {
	IngestMessage(ctx context.Context, msg *store.Message) (bool, error)
}

// Sender holds outbound messages that could not be persisted because the
// store was down and writes them once it answers again. Messages are kept
// in memory only; a restart loses them.
type Sender struct {
	ingester   Ingester
	logger     *zap.Logger
	interval   time.Duration
	maxPending int

	mu      sync.Mutex
	pending []store.Message
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSender creates a new outbox sender that retries every interval.
func NewSender(ing Ingester, interval time.Duration, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		ingester:   ing,
		logger:     logger,
		interval:   interval,
		maxPending: DefaultMaxPending,
	}
}

// Defer queues msg for a later write. When the outbox is full the oldest
// message is dropped.
func (s *Sender) Defer(msg store.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) >= s.maxPending {
		dropped := s.pending[0]
		s.pending = s.pending[1:]
		s.logger.Warn("outbox full, dropping oldest message", zap.String("wamid", dropped.ProviderID))
	}
	s.pending = append(s.pending, msg)
}

// Pending returns the number of messages waiting to be written. A batch
// being flushed is not counted until it is requeued.
func (s *Sender) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Start begins retrying pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the retry loop and waits for it to exit.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Flush writes pending messages in order. It stops at the first store
// failure and keeps that message and the rest for the next attempt. It
// returns the number of messages written.
func (s *Sender) Flush(ctx context.Context) int {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return 0
	}

	written := 0
	for i := range batch {
		msg := batch[i]
		inserted, err := s.ingester.IngestMessage(ctx, &msg)
		if errors.Is(err, store.ErrUnavailable) || ctx.Err() != nil {
			s.requeue(batch[i:])
			break
		}
		if err != nil {
			s.logger.Error("dropping outbound message", zap.String("wamid", msg.ProviderID), zap.Error(err))
			continue
		}
		if inserted {
			written++
			s.logger.Info("deferred message persisted", zap.String("wamid", msg.ProviderID))
		}
	}
	return written
}

// requeue puts rest back ahead of anything deferred meanwhile.
func (s *Sender) requeue(rest []store.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(append([]store.Message(nil), rest...), s.pending...)
	if over := len(s.pending) - s.maxPending; over > 0 {
		s.pending = s.pending[over:]
	}
}
