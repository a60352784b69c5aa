package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/matheus3301/wpprelay/internal/live"
	"github.com/matheus3301/wpprelay/internal/store"
	intsync "github.com/matheus3301/wpprelay/internal/sync"
	"go.uber.org/zap"
)

// ErrInvalidMessage is returned by Send when the contact or text is missing.
var ErrInvalidMessage = errors.New("wa_id and text are required")

// SendRequest is the body of POST /messages.
type SendRequest struct {
	ContactID string `json:"wa_id"`
	Text      string `json:"text"`
	Name      string `json:"name"`
}

// Deferrer takes messages that could not be persisted for a later write.
type Deferrer interface {
	Defer(msg store.Message)
}

// MessageService accepts messages typed in the browser client.
type MessageService struct {
	engine *intsync.Engine
	hub    *live.Hub
	outbox Deferrer
	logger *zap.Logger
}

// NewMessageService creates a new message service. outbox may be nil, in
// which case messages sent during a store outage are only announced.
func NewMessageService(engine *intsync.Engine, hub *live.Hub, outbox Deferrer, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{engine: engine, hub: hub, outbox: outbox, logger: logger}
}

// Send stores the message and announces it to live clients. A store
// failure does not fail the send; the message is still announced.
func (s *MessageService) Send(ctx context.Context, req SendRequest) (store.Message, error) {
	if req.ContactID == "" || req.Text == "" {
		return store.Message{}, ErrInvalidMessage
	}
	msg, err := s.engine.CreateOutbound(ctx, req.ContactID, req.Text, req.Name)
	if err != nil {
		s.logger.Warn("sending without persistence", zap.String("wamid", msg.ProviderID), zap.Error(err))
		if s.outbox != nil && errors.Is(err, store.ErrUnavailable) {
			s.outbox.Defer(msg)
		}
	}
	s.hub.PublishMessage(msg)
	return msg, nil
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var in SendRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	if _, err := s.Messages.Send(r.Context(), in); err != nil {
		if errors.Is(err, ErrInvalidMessage) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Message stored successfully"})
}
