// ABOUTME: Owns the set of live sessions: admission, capacity, and liveness.
// ABOUTME: The single writer path to every session's outbound transport.

package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Atomixxxx/MONPROJETIA2.0/internal/protocol"
)

// ErrSessionIDTooShort indicates a session id below the configured minimum length.
var ErrSessionIDTooShort = errors.New("session id too short")

// ErrSessionExists indicates a session with the same id is already registered.
var ErrSessionExists = errors.New("session already active")

// ErrRegistryFull indicates the live-session ceiling has been reached.
var ErrRegistryFull = errors.New("too many active sessions")

// Transport is the write side of a session's connection. The gorilla
// adapter in the server package satisfies it; tests substitute fakes.
// WriteMessage must be safe to call with a concurrent Close.
type Transport interface {
	WriteMessage(data []byte) error
	Close() error
}

// Config bounds the registry.
type Config struct {
	MaxSessions       int
	MinSessionIDLen   int
	HeartbeatInterval time.Duration
	LivenessGrace     time.Duration
}

// Session is one admitted live connection. Owned exclusively by the
// Registry; callers hold it only as an opaque handle.
type Session struct {
	ID        string
	CreatedAt time.Time

	transport Transport
	ctx       context.Context
	cancel    context.CancelFunc

	// writeMu serializes writes so envelope order on the wire matches
	// generation order.
	writeMu sync.Mutex

	mu       sync.Mutex
	lastSeen time.Time
}

// Context is canceled when the session is disconnected, for whatever
// reason. Long-running work on behalf of the session should watch it.
func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) sinceLastSeen() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastSeen)
}

// Registry coordinates all live sessions. All methods are safe for
// concurrent use; the session map and live count are guarded by one mutex,
// and capacity check plus registration happen under a single acquisition.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	// OnCountChange, when set, observes the live-session count after every
	// admission and removal. Used for the telemetry gauge.
	OnCountChange func(n int)
}

// New creates an empty registry.
func New(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger.With("component", "registry"),
		sessions: make(map[string]*Session),
	}
}

// Connect admits a session. It rejects malformed ids, duplicate ids, and
// admissions beyond the ceiling; on success the session is registered and
// its liveness loop is running.
func (r *Registry) Connect(sessionID string, transport Transport) (*Session, error) {
	if len(sessionID) < r.cfg.MinSessionIDLen {
		return nil, ErrSessionIDTooShort
	}

	s := &Session{
		ID:        sessionID,
		CreatedAt: time.Now(),
		transport: transport,
		lastSeen:  time.Now(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx
	s.cancel = cancel

	r.mu.Lock()
	if _, exists := r.sessions[sessionID]; exists {
		r.mu.Unlock()
		cancel()
		return nil, ErrSessionExists
	}
	if len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		cancel()
		return nil, ErrRegistryFull
	}
	r.sessions[sessionID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("session connected", "session_id", sessionID, "total_sessions", count)
	r.notifyCount(count)

	go r.livenessLoop(ctx, s)

	return s, nil
}

// Disconnect removes a session, cancels its liveness loop, and closes its
// transport. Idempotent and safe to call concurrently from the liveness
// loop, the orchestrator, and the read loop.
func (r *Registry) Disconnect(sessionID string) {
	r.mu.Lock()
	s, exists := r.sessions[sessionID]
	if exists {
		delete(r.sessions, sessionID)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !exists {
		return
	}

	s.cancel()
	_ = s.transport.Close()

	r.logger.Info("session disconnected", "session_id", sessionID, "total_sessions", count)
	r.notifyCount(count)
}

// Send writes one envelope to a session. Best effort: any failure marks the
// session dead, disconnects it, and returns false. This is the only
// outbound path, so transport failures are detected exactly once.
func (r *Registry) Send(sessionID string, env protocol.Envelope) bool {
	r.mu.Lock()
	s, exists := r.sessions[sessionID]
	r.mu.Unlock()

	if !exists {
		return false
	}

	data, err := env.Marshal()
	if err != nil {
		r.logger.Error("marshaling envelope", "session_id", sessionID, "type", env.Type, "error", err)
		return false
	}

	s.writeMu.Lock()
	err = s.transport.WriteMessage(data)
	s.writeMu.Unlock()

	if err != nil {
		r.logger.Warn("send failed, dropping session", "session_id", sessionID, "type", env.Type, "error", err)
		r.Disconnect(sessionID)
		return false
	}
	return true
}

// Touch records inbound traffic for a session, refreshing its liveness.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	s, exists := r.sessions[sessionID]
	r.mu.Unlock()

	if exists {
		s.touch()
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Has reports whether the session is currently registered.
func (r *Registry) Has(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[sessionID]
	return ok
}

// Broadcast sends an envelope to every currently-registered session,
// iterating a point-in-time snapshot of the session set.
func (r *Registry) Broadcast(env protocol.Envelope) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Send(id, env)
	}
}

// Close disconnects every session. Used during shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Disconnect(id)
	}
}

// livenessLoop pushes heartbeats on a fixed period and force-disconnects
// the session when no inbound traffic has been seen within the grace
// window. Detects half-open connections the transport alone would miss.
func (r *Registry) livenessLoop(ctx context.Context, s *Session) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.sinceLastSeen() > r.cfg.LivenessGrace {
				r.logger.Warn("session missed liveness window, forcing disconnect",
					"session_id", s.ID,
					"last_seen", s.sinceLastSeen().Round(time.Millisecond),
				)
				r.Disconnect(s.ID)
				return
			}
			if !r.Send(s.ID, protocol.NewHeartbeat()) {
				// Send already disconnected the session.
				return
			}
		}
	}
}

func (r *Registry) notifyCount(n int) {
	if r.OnCountChange != nil {
		r.OnCountChange(n)
	}
}
