package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/matheus3301/wpprelay/internal/live"
	intsync "github.com/matheus3301/wpprelay/internal/sync"
	"github.com/matheus3301/wpprelay/internal/wa"
	"go.uber.org/zap"
)

const maxWebhookBody = 4 << 20

// SyncService ingests provider webhook deliveries.
type SyncService struct {
	engine *intsync.Engine
	hub    *live.Hub
	logger *zap.Logger
}

// NewSyncService creates a new sync service.
func NewSyncService(engine *intsync.Engine, hub *live.Hub, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{engine: engine, hub: hub, logger: logger}
}

// Ingest normalizes one webhook body, applies it and announces the newly
// inserted messages. Messages inserted before a store failure are still
// announced.
func (s *SyncService) Ingest(ctx context.Context, body []byte) (intsync.Result, error) {
	doc, err := wa.ParseDocument(body)
	if err != nil {
		return intsync.Result{}, err
	}
	res, err := s.engine.Apply(ctx, doc.Records)
	for _, m := range res.Inserted {
		s.hub.PublishMessage(m)
	}
	if err != nil {
		return res, err
	}
	s.logger.Info("webhook applied",
		zap.Int("inserted", len(res.Inserted)),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("statuses_matched", res.Matched),
		zap.Int("statuses_unmatched", res.Unmatched),
	)
	return res, nil
}

func (s *Server) postWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body too large"})
		return
	}
	res, err := s.Sync.Ingest(r.Context(), body)
	var perr *wa.ParseError
	switch {
	case errors.As(err, &perr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": perr.Error()})
		return
	case err != nil:
		s.Logger.Warn("webhook not fully applied", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"messages": len(res.Inserted), "statuses": res.Matched})
}
