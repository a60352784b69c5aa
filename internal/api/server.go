// Package api serves the relay's HTTP surface: chat list and threads,
// message submission, the provider webhook, and the two live channels
// (SSE pull stream and WebSocket push).
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/matheus3301/wpprelay/internal/live"
	"github.com/matheus3301/wpprelay/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DefaultKeepalive is the idle interval between SSE pings.
const DefaultKeepalive = time.Second

// Server routes HTTP requests to the relay services.
type Server struct {
	Chats    *ChatService
	Messages *MessageService
	Sync     *SyncService
	Health   *HealthService
	Hub      *live.Hub

	// Keepalive is how long /events waits for an event before sending a ping.
	Keepalive time.Duration
	Logger    *zap.Logger
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Keepalive <= 0 {
		s.Keepalive = DefaultKeepalive
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logRequests(s.Logger), middleware.Recoverer, instrument)

	s.mountHealth(r)
	s.mountMetrics(r)

	r.Get("/chats", s.listChats)
	r.Get("/chats/{wa_id}", s.getThread)
	r.Post("/messages", s.postMessage)
	r.Post("/webhook", s.postWebhook)
	r.Get("/events", s.streamEvents)
	r.Get("/ws", s.serveWS)
	return r
}

func (s *Server) mountMetrics(r chi.Router) {
	metrics.MustRegister()
	r.Method("GET", "/metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
