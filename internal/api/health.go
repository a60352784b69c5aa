package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/matheus3301/wpprelay/internal/status"
	"github.com/matheus3301/wpprelay/internal/store"
)

// HealthService reports liveness and store connectivity.
type HealthService struct {
	store   store.Store
	machine *status.Machine
}

// NewHealthService creates a health service. machine may be nil.
func NewHealthService(s store.Store, m *status.Machine) *HealthService {
	return &HealthService{store: s, machine: m}
}

// StoreConnected pings the store with a short timeout.
func (h *HealthService) StoreConnected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	err := h.store.Ping(ctx)
	if h.machine != nil {
		h.machine.Observe(err)
	}
	return err == nil
}

func (h *HealthService) state() status.State {
	if h.machine == nil {
		return ""
	}
	return h.machine.Current()
}

// /readyz pings the store with a short timeout.
func (s *Server) mountHealth(r chi.Router) {
	// Liveness: process is up
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Readiness: the store answers
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.Health.StoreConnected(r.Context()) {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		connected := s.Health.StoreConnected(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"status":          "ok",
			"message":         "relay is running",
			"store_connected": connected,
			"store_state":     s.Health.state(),
		})
	})
}
