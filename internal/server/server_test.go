// ABOUTME: End-to-end tests for the WebSocket endpoint and REST surface
// ABOUTME: Runs the real registry, orchestrator, and roster against a stub Ollama

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atomixxxx/MONPROJETIA2.0/internal/agent"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/config"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/ollama"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/protocol"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/registry"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/telemetry"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/workflow"
)

var stubModels = []string{
	"agent-visionnaire",
	"agent-architecte",
	"agent-frontend-engineer",
	"agent-backend-engineer",
	"agent-designer-ui-ux",
	"agent-seo-content-expert",
	"agent-database-specialist",
	"agent-deployer-devops",
	"agent-critique",
	"agent-optimiseur",
	"agent-translator",
}

// fakeOllama answers /api/tags with every builtin model and /api/generate
// with a canned completion.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		models := make([]map[string]any, 0, len(stubModels))
		for _, m := range stubModels {
			models = append(models, map[string]any{"name": m})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"models": models})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model":    req.Model,
			"response": "stub completion",
			"done":     true,
		})
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

type testEnv struct {
	srv  *Server
	http *httptest.Server
	reg  *registry.Registry
}

func startGateway(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	ollamaStub := fakeOllama(t)

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	backend := ollama.NewClient(ollamaStub.URL, 5*time.Second)
	roster, err := agent.NewRoster("", backend, agent.Options{
		Retries:        cfg.Workflow.Retries,
		Backoff:        time.Millisecond,
		AttemptTimeout: time.Second,
		CacheValidity:  time.Minute,
		MaxResultLen:   cfg.Workflow.MaxResultLen,
	}, nil)
	require.NoError(t, err)

	reg := registry.New(registry.Config{
		MaxSessions:       cfg.Sessions.MaxSessions,
		MinSessionIDLen:   cfg.Sessions.MinSessionIDLen,
		HeartbeatInterval: cfg.Sessions.HeartbeatInterval,
		LivenessGrace:     cfg.Sessions.LivenessGrace,
	}, nil)

	orch := workflow.New(workflow.Config{
		AgentCap:   cfg.Workflow.AgentCap,
		OnBusy:     cfg.Workflow.OnBusy,
		QueueDepth: cfg.Workflow.QueueDepth,
	}, roster, reg, nil, telemetry.Noop(), nil)

	srv := New(cfg, reg, orch, roster, backend, nil, nil, "test")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		reg.Close()
		ts.Close()
	})

	return &testEnv{srv: srv, http: ts, reg: reg}
}

func (e *testEnv) wsURL(sessionID string) string {
	return "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws/" + sessionID
}

func dial(t *testing.T, e *testEnv, sessionID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(sessionID), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestWebSocket_ConnectionEstablished(t *testing.T) {
	e := startGateway(t, nil)
	conn := dial(t, e, "abc123")

	env := readEnvelope(t, conn)
	assert.Equal(t, protocol.TypeConnectionEstablished, env.Type)
	assert.Equal(t, "abc123", env.SessionID)
	assert.NotEmpty(t, env.Timestamp)
}

func TestWebSocket_RejectsShortSessionID(t *testing.T) {
	e := startGateway(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL("ab"), nil)
	require.NoError(t, err, "upgrade succeeds; rejection arrives as a close frame")
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestWebSocket_RejectsDuplicateSessionID(t *testing.T) {
	e := startGateway(t, nil)

	first := dial(t, e, "abc123")
	readEnvelope(t, first) // greeting

	second, _, err := websocket.DefaultDialer.Dial(e.wsURL("abc123"), nil)
	require.NoError(t, err)
	defer second.Close()

	_ = second.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = second.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)

	// The first session is unaffected.
	sendJSON(t, first, map[string]string{"type": "ping"})
	assert.Equal(t, protocol.TypePong, readEnvelope(t, first).Type)
}

func TestWebSocket_RejectsBeyondCeiling(t *testing.T) {
	e := startGateway(t, func(cfg *config.Config) {
		cfg.Sessions.MaxSessions = 1
	})

	first := dial(t, e, "abc123")
	readEnvelope(t, first)

	second, _, err := websocket.DefaultDialer.Dial(e.wsURL("xyz789"), nil)
	require.NoError(t, err)
	defer second.Close()

	_ = second.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = second.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestWebSocket_PingPong(t *testing.T) {
	e := startGateway(t, nil)
	conn := dial(t, e, "abc123")
	readEnvelope(t, conn)

	sendJSON(t, conn, map[string]string{"type": "ping"})
	assert.Equal(t, protocol.TypePong, readEnvelope(t, conn).Type)
}

func TestWebSocket_GetAgents(t *testing.T) {
	e := startGateway(t, nil)
	conn := dial(t, e, "abc123")
	readEnvelope(t, conn)

	sendJSON(t, conn, map[string]string{"type": "get_agents"})
	env := readEnvelope(t, conn)
	require.Equal(t, protocol.TypeAgentsList, env.Type)
	require.Len(t, env.AgentsDetail, len(stubModels))
	for _, a := range env.AgentsDetail {
		assert.True(t, a.Available, "agent %s should be available against the stub", a.Name)
	}
}

func TestWebSocket_MalformedMessageKeepsSessionOpen(t *testing.T) {
	e := startGateway(t, nil)
	conn := dial(t, e, "abc123")
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json{")))
	assert.Equal(t, protocol.TypeError, readEnvelope(t, conn).Type)

	// Session survives the bad frame.
	sendJSON(t, conn, map[string]string{"type": "ping"})
	assert.Equal(t, protocol.TypePong, readEnvelope(t, conn).Type)
}

func TestWebSocket_UnknownTypeKeepsSessionOpen(t *testing.T) {
	e := startGateway(t, nil)
	conn := dial(t, e, "abc123")
	readEnvelope(t, conn)

	sendJSON(t, conn, map[string]string{"type": "make_coffee"})
	env := readEnvelope(t, conn)
	assert.Equal(t, protocol.TypeError, env.Type)
	assert.Contains(t, env.Message, "make_coffee")
}

func TestWebSocket_ChatRequestRunsWorkflow(t *testing.T) {
	e := startGateway(t, nil)
	conn := dial(t, e, "abc123")
	readEnvelope(t, conn)

	sendJSON(t, conn, map[string]any{
		"type":            "chat_request",
		"prompt":          "Build a landing page",
		"selected_agents": []string{"Mike", "Bob"},
	})

	var types []protocol.EnvelopeType
	for {
		env := readEnvelope(t, conn)
		types = append(types, env.Type)
		if env.Type == protocol.TypeWorkflowComplete {
			assert.Equal(t, 2, env.ResultsCount)
			assert.Equal(t, 2, env.AgentsExecuted)
			break
		}
		if env.Type == protocol.TypeAgentMessage && env.Status == "Done" {
			assert.Contains(t, env.Content, "stub completion")
		}
	}

	require.Equal(t, protocol.TypeWorkflowStart, types[0])
	agentMessages := 0
	for _, typ := range types {
		if typ == protocol.TypeAgentMessage {
			agentMessages++
		}
	}
	assert.Equal(t, 4, agentMessages, "progress + result per stage")
}

func TestWebSocket_IdleTimeoutCloses(t *testing.T) {
	e := startGateway(t, func(cfg *config.Config) {
		cfg.Sessions.IdleTimeout = 200 * time.Millisecond
	})
	conn := dial(t, e, "abc123")
	readEnvelope(t, conn)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server should drop the idle connection")
}

func TestAPI_Health(t *testing.T) {
	e := startGateway(t, nil)

	resp, err := http.Get(e.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_Ready(t *testing.T) {
	e := startGateway(t, nil)

	resp, err := http.Get(e.http.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_ReadyBackendDown(t *testing.T) {
	e := startGateway(t, nil)

	// Point the server at a dead backend.
	e.srv.backend = ollama.NewClient("http://127.0.0.1:1", time.Second)

	resp, err := http.Get(e.http.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAPI_ListAgents(t *testing.T) {
	e := startGateway(t, nil)

	resp, err := http.Get(e.http.URL + "/api/agents")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var agents []protocol.AgentStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&agents))
	assert.Len(t, agents, len(stubModels))
}

func TestAPI_ServerStatus(t *testing.T) {
	e := startGateway(t, nil)
	conn := dial(t, e, "abc123")
	readEnvelope(t, conn)

	resp, err := http.Get(e.http.URL + "/api/server/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status ServerStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, 1, status.ActiveConnections)
	assert.Equal(t, 50, status.MaxConnections)
	assert.Equal(t, len(stubModels), status.AgentsTotal)
	assert.Equal(t, "test", status.Version)
}

func TestAPI_CloseSession(t *testing.T) {
	e := startGateway(t, nil)
	conn := dial(t, e, "abc123")
	readEnvelope(t, conn)

	resp, err := http.Post(e.http.URL+"/api/admin/close-session/abc123", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "connection should be closed by the admin action")
	assert.False(t, e.reg.Has("abc123"))
}

func TestAPI_CloseSessionNotFound(t *testing.T) {
	e := startGateway(t, nil)

	resp, err := http.Post(e.http.URL+"/api/admin/close-session/nope1", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
