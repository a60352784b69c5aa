package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/matheus3301/wpprelay/internal/api"
	"github.com/matheus3301/wpprelay/internal/config"
	"go.uber.org/zap"
)

// Server manages the HTTP server lifecycle for the relay.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	cancel     context.CancelFunc
	logger     *zap.Logger
}

// NewServer creates an HTTP server bound to the configured address.
func NewServer(cfg *config.Config, logger *zap.Logger, apiSrv *api.Server) (*Server, error) {
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}

	// Long-lived /events and /ws requests derive from this context so Stop
	// can end them.
	baseCtx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           apiSrv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	return &Server{
		httpServer: srv,
		listener:   listener,
		cancel:     cancel,
		logger:     logger,
	}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.Addr()))
	if err := s.httpServer.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop ends streaming requests and performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	s.cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown", zap.Error(err))
	}
}
