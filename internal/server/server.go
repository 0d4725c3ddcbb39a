// ABOUTME: HTTP server hosting the WebSocket endpoint and the REST surface
// ABOUTME: Owns listener setup, route registration, and graceful shutdown

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Atomixxxx/MONPROJETIA2.0/internal/agent"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/config"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/ollama"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/protocol"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/registry"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/store"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/workflow"
)

// Server hosts the gateway's WebSocket endpoint and REST API on a single
// HTTP listener.
type Server struct {
	cfg          *config.Config
	registry     *registry.Registry
	orchestrator *workflow.Orchestrator
	roster       *agent.Roster
	backend      *ollama.Client
	store        store.Store
	logger       *slog.Logger
	httpServer   *http.Server

	version   string
	startedAt time.Time
}

// New wires the server's routes. The store may be nil when persistence is
// disabled.
func New(cfg *config.Config, reg *registry.Registry, orch *workflow.Orchestrator, roster *agent.Roster, backend *ollama.Client, st store.Store, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:          cfg,
		registry:     reg,
		orchestrator: orch,
		roster:       roster,
		backend:      backend,
		store:        st,
		logger:       logger.With("component", "server"),
		version:      version,
		startedAt:    time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{session_id}", s.handleWebSocket)

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)

	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("GET /api/server/status", s.handleServerStatus)
	mux.HandleFunc("POST /api/admin/close-session/{session_id}", s.handleCloseSession)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the server and blocks until the context is canceled or the
// listener fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := s.startServer(ln)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// startServer serves HTTP in a goroutine, returning an error channel.
func (s *Server) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown notifies connected sessions, disconnects them, and stops the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	s.registry.Broadcast(protocol.NewWarning("Server is shutting down"))
	s.registry.Close()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
