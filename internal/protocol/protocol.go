// ABOUTME: Typed message envelopes exchanged over a session's WebSocket.
// ABOUTME: Defines outbound envelope constructors and inbound client messages.

package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// EnvelopeType discriminates outbound envelopes.
type EnvelopeType string

// Outbound envelope types. These are the wire-level "type" values the
// frontend switches on, so they must stay stable.
const (
	TypeConnectionEstablished EnvelopeType = "connection_established"
	TypeWorkflowStart         EnvelopeType = "workflow_start"
	TypeAgentMessage          EnvelopeType = "agent_message"
	TypeWorkflowComplete      EnvelopeType = "workflow_complete"
	TypeAgentsList            EnvelopeType = "agents_list"
	TypeError                 EnvelopeType = "error"
	TypeWarning               EnvelopeType = "warning"
	TypeHeartbeat             EnvelopeType = "heartbeat"
	TypePong                  EnvelopeType = "pong"
)

// Inbound message types sent by the client.
const (
	InboundChatRequest  = "chat_request"
	InboundPing         = "ping"
	InboundGetAgents    = "get_agents"
	InboundHeartbeatAck = "heartbeat_ack"
)

// Envelope is one unit of server-to-client communication. Envelopes are
// immutable once constructed; the registry is the only component that
// writes them to a session.
type Envelope struct {
	Type      EnvelopeType `json:"type"`
	Timestamp string       `json:"timestamp"`

	// Free-form fields; which ones are set depends on Type.
	Message        string         `json:"message,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	Agent          string         `json:"agent,omitempty"`
	Status         string         `json:"status,omitempty"`
	Content        string         `json:"content,omitempty"`
	Stage          string         `json:"stage,omitempty"`
	Elapsed        float64        `json:"elapsed,omitempty"`
	Agents         []string       `json:"agents,omitempty"`
	AgentsDetail   []AgentStatus  `json:"agents_detail,omitempty"`
	ResultsCount   int            `json:"results_count,omitempty"`
	AgentsExecuted int            `json:"agents_executed,omitempty"`
	ServerInfo     map[string]any `json:"server_info,omitempty"`
}

// AgentStatus is the per-agent entry carried by an agents_list envelope.
type AgentStatus struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Model       string `json:"model"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Emoji       string `json:"emoji"`
	Available   bool   `json:"available"`
}

// Marshal encodes the envelope as UTF-8 JSON.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NewConnectionEstablished builds the greeting envelope sent right after
// a session is admitted.
func NewConnectionEstablished(sessionID string, activeConnections int, version string) Envelope {
	return Envelope{
		Type:      TypeConnectionEstablished,
		Timestamp: now(),
		Message:   "WebSocket connection established",
		SessionID: sessionID,
		ServerInfo: map[string]any{
			"version":            version,
			"active_connections": activeConnections,
		},
	}
}

// NewWorkflowStart announces a run and the agents resolved for it.
func NewWorkflowStart(sessionID string, agents []string) Envelope {
	return Envelope{
		Type:      TypeWorkflowStart,
		Timestamp: now(),
		Message:   fmt.Sprintf("Workflow started with %d agents", len(agents)),
		SessionID: sessionID,
		Agents:    agents,
	}
}

// NewAgentProgress reports that a stage has begun.
func NewAgentProgress(agentName, stage string, index, total int) Envelope {
	return Envelope{
		Type:      TypeAgentMessage,
		Timestamp: now(),
		Agent:     agentName,
		Status:    fmt.Sprintf("Stage %d/%d - in progress", index, total),
		Content:   "Working...",
		Stage:     stage,
	}
}

// NewAgentResult carries one stage's artifact and its wall-clock duration.
func NewAgentResult(agentName, stage, content string, elapsed time.Duration) Envelope {
	return Envelope{
		Type:      TypeAgentMessage,
		Timestamp: now(),
		Agent:     agentName,
		Status:    "Done",
		Content:   content,
		Stage:     stage,
		Elapsed:   elapsed.Seconds(),
	}
}

// NewWorkflowComplete is the terminal envelope of a successful run.
func NewWorkflowComplete(sessionID string, resultsCount, agentsExecuted int, elapsed time.Duration) Envelope {
	return Envelope{
		Type:           TypeWorkflowComplete,
		Timestamp:      now(),
		Message:        "Workflow completed",
		SessionID:      sessionID,
		ResultsCount:   resultsCount,
		AgentsExecuted: agentsExecuted,
		Elapsed:        elapsed.Seconds(),
	}
}

// NewAgentsList carries the roster with live availability.
func NewAgentsList(agents []AgentStatus) Envelope {
	return Envelope{
		Type:         TypeAgentsList,
		Timestamp:    now(),
		AgentsDetail: agents,
	}
}

// NewError reports a validation failure to the client. The session stays open.
func NewError(message string) Envelope {
	return Envelope{Type: TypeError, Timestamp: now(), Message: message}
}

// NewWarning reports a non-fatal adjustment, e.g. agent list truncation.
func NewWarning(message string) Envelope {
	return Envelope{Type: TypeWarning, Timestamp: now(), Message: message}
}

// NewHeartbeat is the liveness probe pushed by the registry.
func NewHeartbeat() Envelope {
	return Envelope{Type: TypeHeartbeat, Timestamp: now()}
}

// NewPong answers a client ping.
func NewPong() Envelope {
	return Envelope{Type: TypePong, Timestamp: now()}
}

// Inbound is a client-to-server message. Fields beyond Type are only
// meaningful for chat_request.
type Inbound struct {
	Type           string   `json:"type"`
	Prompt         string   `json:"prompt,omitempty"`
	SelectedAgents []string `json:"selected_agents,omitempty"`
}

// ParseInbound decodes a client frame. A JSON error is returned as-is so
// the caller can answer with an error envelope and keep the session open.
func ParseInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("decoding inbound message: %w", err)
	}
	return in, nil
}
