// ABOUTME: WebSocket endpoint wiring gorilla connections into the session registry
// ABOUTME: Runs the per-connection read loop and dispatches inbound messages

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Atomixxxx/MONPROJETIA2.0/internal/protocol"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/registry"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The gateway serves local frontends on arbitrary ports.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTransport adapts a gorilla connection to the registry's Transport.
// The registry serializes writes, so WriteMessage is never called
// concurrently with itself.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) WriteMessage(data []byte) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// handleWebSocket upgrades the connection, runs admission, and services the
// session until the client goes away or admission control evicts it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}

	sess, err := s.registry.Connect(sessionID, &wsTransport{conn: conn})
	if err != nil {
		s.rejectConnection(conn, sessionID, err)
		return
	}
	defer s.registry.Disconnect(sessionID)

	s.registry.Send(sessionID, protocol.NewConnectionEstablished(sessionID, s.registry.Count(), s.version))

	s.readLoop(sess, conn)
}

// rejectConnection closes a connection that failed admission with a policy
// violation close frame so the client can tell rejection from a transport
// failure.
func (s *Server) rejectConnection(conn *websocket.Conn, sessionID string, reason error) {
	s.logger.Warn("session rejected", "session_id", sessionID, "reason", reason)

	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason.Error())
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	_ = conn.Close()
}

// readLoop services inbound frames until the connection dies or the idle
// deadline passes. Any inbound traffic counts as liveness.
func (s *Server) readLoop(sess *registry.Session, conn *websocket.Conn) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.Sessions.IdleTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Info("session read loop ended", "session_id", sess.ID, "error", err)
			return
		}
		s.registry.Touch(sess.ID)
		s.dispatch(sess, data)
	}
}

// dispatch routes one inbound message. Malformed or unknown messages get an
// error envelope; the session stays open.
func (s *Server) dispatch(sess *registry.Session, data []byte) {
	in, err := protocol.ParseInbound(data)
	if err != nil {
		s.logger.Warn("malformed inbound message", "session_id", sess.ID, "error", err)
		s.registry.Send(sess.ID, protocol.NewError("Invalid message format"))
		return
	}

	switch in.Type {
	case protocol.InboundChatRequest:
		s.orchestrator.Submit(sess.Context(), sess.ID, in.Prompt, in.SelectedAgents)
	case protocol.InboundPing:
		s.registry.Send(sess.ID, protocol.NewPong())
	case protocol.InboundGetAgents:
		s.registry.Send(sess.ID, protocol.NewAgentsList(s.agentStatuses(sess.Context())))
	case protocol.InboundHeartbeatAck:
		// Touch in the read loop already covered it.
	default:
		s.registry.Send(sess.ID, protocol.NewError("Unknown message type: "+in.Type))
	}
}

// agentStatuses snapshots the roster with live availability.
func (s *Server) agentStatuses(ctx context.Context) []protocol.AgentStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	agents := s.roster.All()
	statuses := make([]protocol.AgentStatus, 0, len(agents))
	for _, a := range agents {
		statuses = append(statuses, protocol.AgentStatus{
			Name:        a.Name,
			Role:        a.Role.Label(),
			Model:       a.Model,
			Description: a.Description,
			Color:       a.Color,
			Emoji:       a.Emoji,
			Available:   a.Available(ctx),
		})
	}
	return statuses
}
