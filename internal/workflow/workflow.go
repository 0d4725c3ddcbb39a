// ABOUTME: Stage-sequenced workflow orchestrator driving agents over a session
// ABOUTME: Owns per-session busy policy, run state, artifacts, and result envelopes

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Atomixxxx/MONPROJETIA2.0/internal/agent"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/protocol"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/store"
	"github.com/Atomixxxx/MONPROJETIA2.0/internal/telemetry"
)

// Busy policies for a chat_request arriving while the session already has
// an active run.
const (
	PolicyReject = "reject"
	PolicyQueue  = "queue"
)

// RunState tracks where a run is in its lifecycle.
type RunState int

const (
	StateIdle RunState = iota
	StateStarting
	StateRunning
	StateCompleted
	StateErrored
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Run is one workflow execution for a session.
type Run struct {
	ID        string
	SessionID string
	Prompt    string
	Agents    []*agent.Agent
	State     RunState
	Stage     int
}

// Sender delivers envelopes to a session. *registry.Registry satisfies it.
type Sender interface {
	Send(sessionID string, env protocol.Envelope) bool
}

// Config bounds a single run and sets the busy policy.
type Config struct {
	AgentCap   int
	OnBusy     string
	QueueDepth int
}

type request struct {
	ctx    context.Context
	prompt string
	names  []string
}

type sessionState struct {
	running bool
	queue   []request
}

// Orchestrator executes workflow runs. Stages within a run are strictly
// sequential; runs for different sessions proceed concurrently, each on its
// own goroutine.
type Orchestrator struct {
	cfg    Config
	roster *agent.Roster
	sender Sender
	sink   store.Store // optional artifact persistence
	tel    *telemetry.Telemetry
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// New creates an orchestrator. sink may be nil when persistence is disabled.
func New(cfg Config, roster *agent.Roster, sender Sender, sink store.Store, tel *telemetry.Telemetry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if tel == nil {
		tel = telemetry.Noop()
	}
	return &Orchestrator{
		cfg:      cfg,
		roster:   roster,
		sender:   sender,
		sink:     sink,
		tel:      tel,
		logger:   logger.With("component", "workflow"),
		sessions: make(map[string]*sessionState),
	}
}

// Submit starts a run for the session, or applies the busy policy when one
// is already active. ctx should be the session's context so a disconnect
// aborts the run. Submit never blocks on inference.
func (o *Orchestrator) Submit(ctx context.Context, sessionID, prompt string, agentNames []string) {
	o.mu.Lock()
	st, ok := o.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		o.sessions[sessionID] = st
	}
	if st.running {
		switch o.cfg.OnBusy {
		case PolicyQueue:
			if len(st.queue) >= o.cfg.QueueDepth {
				o.mu.Unlock()
				o.sender.Send(sessionID, protocol.NewError("Workflow queue is full, try again later"))
				return
			}
			st.queue = append(st.queue, request{ctx: ctx, prompt: prompt, names: agentNames})
			o.mu.Unlock()
			o.logger.Debug("run queued", "session_id", sessionID, "queue_len", len(st.queue))
			return
		default: // PolicyReject
			o.mu.Unlock()
			o.sender.Send(sessionID, protocol.NewError("A workflow is already running for this session"))
			return
		}
	}
	st.running = true
	o.mu.Unlock()

	go o.runLoop(ctx, sessionID, prompt, agentNames)
}

// Busy reports whether the session currently has an active run.
func (o *Orchestrator) Busy(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.sessions[sessionID]
	return ok && st.running
}

// runLoop executes the submitted run, then drains any queued requests for
// the same session before freeing the slot.
func (o *Orchestrator) runLoop(ctx context.Context, sessionID, prompt string, names []string) {
	for {
		o.execute(ctx, sessionID, prompt, names)

		o.mu.Lock()
		st := o.sessions[sessionID]
		if len(st.queue) == 0 {
			st.running = false
			delete(o.sessions, sessionID)
			o.mu.Unlock()
			return
		}
		next := st.queue[0]
		st.queue = st.queue[1:]
		o.mu.Unlock()

		ctx, prompt, names = next.ctx, next.prompt, next.names
	}
}

func (o *Orchestrator) execute(ctx context.Context, sessionID, prompt string, names []string) {
	run := &Run{
		SessionID: sessionID,
		Prompt:    prompt,
		State:     StateStarting,
	}

	if strings.TrimSpace(prompt) == "" {
		o.sender.Send(sessionID, protocol.NewError("Empty prompt"))
		run.State = StateErrored
		return
	}

	agents, truncated := o.roster.Resolve(names, o.cfg.AgentCap)
	if len(agents) == 0 {
		o.sender.Send(sessionID, protocol.NewError("No valid agents selected"))
		run.State = StateErrored
		return
	}
	if truncated {
		o.sender.Send(sessionID, protocol.NewWarning(
			fmt.Sprintf("Agent list truncated to the maximum of %d per workflow", o.cfg.AgentCap)))
	}

	run.ID = uuid.New().String()
	run.Agents = agents

	ctx, span := o.tel.Tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("session_id", sessionID),
			attribute.String("run_id", run.ID),
			attribute.Int("agents", len(agents)),
		))
	defer span.End()

	o.tel.RunStarted(ctx)
	o.logger.Info("workflow started",
		"session_id", sessionID, "run_id", run.ID, "agents", len(agents))

	agentNames := make([]string, len(agents))
	for i, a := range agents {
		agentNames[i] = a.Name
	}
	if !o.sender.Send(sessionID, protocol.NewWorkflowStart(sessionID, agentNames)) {
		o.abort(ctx, run)
		return
	}

	start := time.Now()
	prior := make(map[string]string, len(agents))
	run.State = StateRunning

	for i, ag := range agents {
		if ctx.Err() != nil {
			o.abort(ctx, run)
			return
		}
		run.Stage = i
		stage := fmt.Sprintf("step_%d", i+1)

		if !o.sender.Send(sessionID, protocol.NewAgentProgress(ag.Name, stage, i+1, len(agents))) {
			o.abort(ctx, run)
			return
		}

		stageStart := time.Now()
		result := ag.Invoke(ctx, prompt, prior)
		elapsed := time.Since(stageStart)
		prior[stage] = result

		o.persist(ctx, run, stage, ag, result, elapsed)
		o.tel.StageCompleted(ctx, ag.Name, elapsed)

		if !o.sender.Send(sessionID, protocol.NewAgentResult(ag.Name, stage, result, elapsed)) {
			o.abort(ctx, run)
			return
		}
	}

	if !o.sender.Send(sessionID, protocol.NewWorkflowComplete(sessionID, len(prior), len(agents), time.Since(start))) {
		o.abort(ctx, run)
		return
	}

	run.State = StateCompleted
	o.tel.RunCompleted(ctx, "completed")
	o.logger.Info("workflow completed",
		"session_id", sessionID, "run_id", run.ID,
		"stages", len(prior), "elapsed", time.Since(start))
}

// abort marks the run errored without notifying the session. Send failures
// mean the session is gone, so there is nobody left to tell.
func (o *Orchestrator) abort(ctx context.Context, run *Run) {
	run.State = StateErrored
	o.tel.RunCompleted(ctx, "errored")
	o.logger.Warn("workflow aborted",
		"session_id", run.SessionID, "run_id", run.ID, "stage", run.Stage)
}

// persist saves a stage artifact. Persistence failures are logged, never
// surfaced to the session.
func (o *Orchestrator) persist(ctx context.Context, run *Run, stage string, ag *agent.Agent, content string, elapsed time.Duration) {
	if o.sink == nil {
		return
	}
	err := o.sink.SaveArtifact(ctx, &store.Artifact{
		SessionID: run.SessionID,
		RunID:     run.ID,
		Stage:     stage,
		Agent:     ag.Name,
		Model:     ag.Model,
		Content:   content,
		Elapsed:   elapsed,
	})
	if err != nil {
		o.logger.Warn("failed to persist stage artifact",
			"run_id", run.ID, "stage", stage, "error", err)
	}
}
