package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/workflowd/pkg/events"
	"github.com/cuemby/workflowd/pkg/log"
	"github.com/cuemby/workflowd/pkg/metrics"
	"github.com/cuemby/workflowd/pkg/storage"
	"github.com/rs/zerolog"
)

// Server serves the workflow API next to the metrics and health endpoints
type Server struct {
	router *Router
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer creates a server mounting the API under basePath
func NewServer(commander Commander, store storage.Store, broker *events.Broker, basePath string) *Server {
	return &Server{
		router: NewRouter(commander, store, broker, basePath),
		logger: log.WithComponent("api"),
	}
}

// Handler returns the combined handler: API routes plus /metrics, /health,
// /ready and /live
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	mux.Handle("/", s.router.Handler())
	return mux
}

// Start listens on addr until Stop is called
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("API server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop shuts the server down, closing open event streams after the grace period
func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Graceful shutdown incomplete, closing")
		_ = s.srv.Close()
	}
}
