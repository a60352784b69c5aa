package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/matheus3301/wpprelay/internal/chats"
	"github.com/matheus3301/wpprelay/internal/metrics"
	"github.com/matheus3301/wpprelay/internal/store"
	intsync "github.com/matheus3301/wpprelay/internal/sync"
	"github.com/matheus3301/wpprelay/internal/wa"
	"go.uber.org/zap"
)

// ChatService serves the chat list and per-contact threads. Store failures
// never surface to the caller: both fall back to the payload corpus.
type ChatService struct {
	store  store.Store
	engine *intsync.Engine
	corpus *wa.Corpus
	logger *zap.Logger
}

// NewChatService creates a new chat service backed by the store.
func NewChatService(s store.Store, engine *intsync.Engine, corpus *wa.Corpus, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{store: s, engine: engine, corpus: corpus, logger: logger}
}

// ListChats returns one summary per known contact.
func (s *ChatService) ListChats(ctx context.Context) []store.ChatSummary {
	if _, err := s.engine.Bootstrap(ctx); err != nil {
		s.logger.Warn("bootstrap failed", zap.Error(err))
	}

	msgs, err := s.store.Find(ctx, store.Filter{})
	if err != nil {
		metrics.StoreDegraded.WithLabelValues("list_chats").Inc()
		s.logger.Warn("store unavailable, listing chats from payloads", zap.Error(err))
		if msgs, err = s.corpus.Messages(); err != nil {
			s.logger.Warn("payload messages unavailable", zap.Error(err))
		}
	}

	directory, err := s.corpus.Contacts()
	if err != nil {
		s.logger.Warn("contact directory unavailable", zap.Error(err))
	}
	return chats.Aggregate(msgs, directory)
}

// Thread returns the messages of one contact in timestamp order.
func (s *ChatService) Thread(ctx context.Context, contactID string) []store.Message {
	msgs, err := s.store.Find(ctx, store.Filter{ContactID: contactID})
	if err != nil {
		metrics.StoreDegraded.WithLabelValues("thread").Inc()
		s.logger.Warn("store unavailable, reading thread from payloads", zap.String("wa_id", contactID), zap.Error(err))
	}
	if err != nil || len(msgs) == 0 {
		msgs, err = s.corpus.MessagesFor(contactID)
		if err != nil {
			s.logger.Warn("payload thread unavailable", zap.String("wa_id", contactID), zap.Error(err))
		}
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	chats.SortThread(msgs)
	return msgs
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Chats.ListChats(r.Context()))
}

func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Chats.Thread(r.Context(), chi.URLParam(r, "wa_id")))
}
