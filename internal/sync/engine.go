package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wpprelay/internal/metrics"
	"github.com/matheus3301/wpprelay/internal/store"
	"github.com/matheus3301/wpprelay/internal/wa"
	"go.uber.org/zap"
)

// DefaultAuthor is the display name of outbound messages sent without one.
const DefaultAuthor = "You"

const outboundPrefix = "local_"

// HealthObserver is told the outcome of every store round trip.
type HealthObserver interface {
	Observe(err error)
}

// Engine reconciles normalized records with the store. Messages are
// inserted only when their provider id is absent; status updates rewrite
// the status of an existing message and are dropped otherwise.
type Engine struct {
	store  store.Store
	corpus *wa.Corpus
	health HealthObserver
	logger *zap.Logger
	now    func() time.Time

	bootMu gosync.Mutex
}

// NewEngine creates a new sync engine. corpus and health may be nil.
func NewEngine(s store.Store, corpus *wa.Corpus, health HealthObserver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  s,
		corpus: corpus,
		health: health,
		logger: logger,
		now:    time.Now,
	}
}

// Result summarizes one Apply batch.
type Result struct {
	Inserted   []store.Message
	Duplicates int
	Matched    int
	Unmatched  int
}

// IngestMessage stores msg unless a message with the same provider id
// already exists. It reports whether a new message was written.
func (e *Engine) IngestMessage(ctx context.Context, msg *store.Message) (bool, error) {
	existing, err := e.store.FindOne(ctx, store.Filter{ProviderID: msg.ProviderID})
	e.observe(err)
	if err != nil {
		metrics.IngestRecords.WithLabelValues("message", "error").Inc()
		return false, fmt.Errorf("lookup message %s: %w", msg.ProviderID, err)
	}
	if existing != nil {
		metrics.IngestRecords.WithLabelValues("message", "duplicate").Inc()
		return false, nil
	}

	err = e.store.Insert(ctx, msg)
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a race with a concurrent ingest of the same id.
		metrics.IngestRecords.WithLabelValues("message", "duplicate").Inc()
		return false, nil
	}
	e.observe(err)
	if err != nil {
		metrics.IngestRecords.WithLabelValues("message", "error").Inc()
		return false, fmt.Errorf("insert message %s: %w", msg.ProviderID, err)
	}
	metrics.IngestRecords.WithLabelValues("message", "inserted").Inc()
	return true, nil
}

// ApplyStatus rewrites the status of the message with the update's target
// id. An absent target is not an error; the update is dropped.
func (e *Engine) ApplyStatus(ctx context.Context, upd store.StatusUpdate) (bool, error) {
	matched, err := e.store.UpdateOne(ctx,
		store.Filter{ProviderID: upd.TargetID},
		store.Patch{Status: upd.Status})
	e.observe(err)
	if err != nil {
		metrics.IngestRecords.WithLabelValues("status", "error").Inc()
		return false, fmt.Errorf("apply status %s: %w", upd.TargetID, err)
	}
	if !matched {
		metrics.IngestRecords.WithLabelValues("status", "unmatched").Inc()
		e.logger.Debug("status target not found", zap.String("wamid", upd.TargetID), zap.String("status", string(upd.Status)))
		return false, nil
	}
	metrics.IngestRecords.WithLabelValues("status", "matched").Inc()
	return true, nil
}

// Apply reconciles records in order. It stops at the first store error and
// returns the partial result alongside it.
func (e *Engine) Apply(ctx context.Context, records []wa.Record) (Result, error) {
	var res Result
	for _, r := range records {
		switch {
		case r.Message != nil:
			msg := *r.Message
			inserted, err := e.IngestMessage(ctx, &msg)
			if err != nil {
				return res, err
			}
			if inserted {
				res.Inserted = append(res.Inserted, msg)
			} else {
				res.Duplicates++
			}
		case r.Status != nil:
			matched, err := e.ApplyStatus(ctx, *r.Status)
			if err != nil {
				return res, err
			}
			if matched {
				res.Matched++
			} else {
				res.Unmatched++
			}
		}
	}
	return res, nil
}

// CreateOutbound builds a message typed by the local user and stores it.
// On a store failure the built message is still returned together with the
// error so the caller can fan it out.
func (e *Engine) CreateOutbound(ctx context.Context, contactID, body, author string) (store.Message, error) {
	if author == "" {
		author = DefaultAuthor
	}
	now := e.now()
	id := outboundID(now)
	msg := store.Message{
		ProviderID:  id,
		ID:          id,
		ContactID:   contactID,
		ContactName: author,
		Timestamp:   store.Timestamp(float64(now.UnixNano()) / 1e9),
		Text:        store.Text{Body: body},
		Type:        "text",
		Status:      store.StatusSent,
	}
	if _, err := e.IngestMessage(ctx, &msg); err != nil {
		metrics.StoreDegraded.WithLabelValues("create_outbound").Inc()
		e.logger.Warn("outbound message not persisted", zap.String("wamid", id), zap.Error(err))
		return msg, err
	}
	return msg, nil
}

func outboundID(t time.Time) string {
	tail := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return outboundPrefix + t.Format("20060102150405") + "_" + tail
}

// Bootstrap replays the payload corpus when the store is empty. It reports
// whether a replay ran. Concurrent calls run one at a time.
func (e *Engine) Bootstrap(ctx context.Context) (bool, error) {
	if e.corpus == nil {
		return false, nil
	}
	e.bootMu.Lock()
	defer e.bootMu.Unlock()

	n, err := e.store.Count(ctx)
	e.observe(err)
	if err != nil {
		return false, fmt.Errorf("count messages: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	records, err := e.corpus.Records()
	if err != nil {
		return false, fmt.Errorf("read corpus: %w", err)
	}
	res, err := e.Apply(ctx, records)
	if err != nil {
		return true, fmt.Errorf("bootstrap: %w", err)
	}
	e.logger.Info("store bootstrapped from payloads",
		zap.String("dir", e.corpus.Dir()),
		zap.Int("inserted", len(res.Inserted)),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("statuses_matched", res.Matched),
		zap.Int("statuses_unmatched", res.Unmatched),
	)
	return true, nil
}

func (e *Engine) observe(err error) {
	if e.health != nil {
		e.health.Observe(err)
	}
}
