// ABOUTME: Store interface and data types for workflow artifact persistence
// ABOUTME: Defines the Artifact struct and the Store interface the orchestrator writes to

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Artifact is one stage's output, persisted per session and run.
type Artifact struct {
	ID        string
	SessionID string
	RunID     string
	Stage     string
	Agent     string
	Model     string
	Content   string
	Elapsed   time.Duration
	CreatedAt time.Time
}

// Store persists workflow artifacts. The orchestrator treats it as a pure
// side-effecting sink: a failed save is logged, never surfaced to the client.
type Store interface {
	// SaveArtifact persists one stage artifact.
	SaveArtifact(ctx context.Context, a *Artifact) error

	// ListByRun returns a run's artifacts in stage order.
	ListByRun(ctx context.Context, runID string) ([]*Artifact, error)

	// ListBySession returns all artifacts saved for a session, newest run first.
	ListBySession(ctx context.Context, sessionID string) ([]*Artifact, error)

	// Close releases the underlying resources.
	Close() error
}
