// ABOUTME: REST surface: health probes, agent listing, server status, admin actions
// ABOUTME: Thin JSON wrappers over the registry, roster, and Ollama backend

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ServerStatusResponse is the payload of GET /api/server/status.
type ServerStatusResponse struct {
	ActiveConnections int    `json:"active_connections"`
	MaxConnections    int    `json:"max_connections"`
	AgentsTotal       int    `json:"agents_total"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	Version           string `json:"version"`
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the Ollama backend is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	models, err := s.backend.ListModels(ctx)
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("ollama unreachable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d models)", len(models))
}

// handleListAgents returns the roster with live availability.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	statuses := s.agentStatuses(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statuses)
}

// handleServerStatus reports connection and roster counts.
func (s *Server) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	response := ServerStatusResponse{
		ActiveConnections: s.registry.Count(),
		MaxConnections:    s.cfg.Sessions.MaxSessions,
		AgentsTotal:       len(s.roster.Names()),
		UptimeSeconds:     int64(time.Since(s.startedAt).Seconds()),
		Version:           s.version,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleCloseSession force-disconnects a session by id.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	if !s.registry.Has(sessionID) {
		s.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	s.registry.Disconnect(sessionID)
	s.logger.Info("session closed by admin", "session_id", sessionID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":     "closed",
		"session_id": sessionID,
	})
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
