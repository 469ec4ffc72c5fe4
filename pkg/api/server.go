package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/hypernet/pkg/log"
	"github.com/cuemby/hypernet/pkg/metrics"
	"github.com/cuemby/hypernet/pkg/node"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// StateSource provides the node state served on /state
type StateSource interface {
	Snapshot() node.Snapshot
}

// AdminServer serves a node's health, metrics and state over HTTP. It is
// separate from the node's TCP protocol port.
type AdminServer struct {
	source StateSource
	health *metrics.Health
	router chi.Router
	logger zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewAdminServer creates an admin server for source, reporting the
// components tracked by health
func NewAdminServer(source StateSource, health *metrics.Health) *AdminServer {
	s := &AdminServer{
		source: source,
		health: health,
		router: chi.NewRouter(),
		logger: log.WithComponent("admin"),
	}
	s.RegisterRoutes(s.router)
	return s
}

// RegisterRoutes registers the admin routes on r
func (s *AdminServer) RegisterRoutes(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(readOnly)

	r.Get("/health", s.health.HealthHandler())
	r.Get("/ready", s.health.ReadyHandler())
	r.Get("/live", s.health.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())
	r.Get("/state", s.handleState)
	r.Get("/state/value", s.handleValue)
	r.Get("/state/peers", s.handlePeers)
}

// Handler returns the router for embedding in other servers
func (s *AdminServer) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background
func (s *AdminServer) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	s.server = server
	s.listener = l
	s.mu.Unlock()

	go func() {
		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Admin server failed")
		}
	}()

	s.logger.Info().Str("addr", l.Addr().String()).Msg("Admin server listening")
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *AdminServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends
func (s *AdminServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *AdminServer) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Snapshot())
}

func (s *AdminServer) handleValue(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"label": snap.Label,
		"value": snap.Value,
	})
}

func (s *AdminServer) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Snapshot().Peers)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
