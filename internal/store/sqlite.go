// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides artifact persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS artifacts (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			agent TEXT NOT NULL,
			model TEXT NOT NULL,
			content TEXT NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id, stage);
		CREATE INDEX IF NOT EXISTS idx_artifacts_session ON artifacts(session_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// SaveArtifact persists one stage artifact. A zero ID is replaced with a
// fresh UUID; a zero CreatedAt is stamped with the current time.
func (s *SQLiteStore) SaveArtifact(ctx context.Context, a *Artifact) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, session_id, run_id, stage, agent, model, content, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.RunID, a.Stage, a.Agent, a.Model, a.Content,
		a.Elapsed.Milliseconds(), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting artifact: %w", err)
	}
	return nil
}

// ListByRun returns a run's artifacts in stage order.
func (s *SQLiteStore) ListByRun(ctx context.Context, runID string) ([]*Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, run_id, stage, agent, model, content, elapsed_ms, created_at
		FROM artifacts WHERE run_id = ? ORDER BY stage`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying artifacts: %w", err)
	}
	defer rows.Close()

	return scanArtifacts(rows)
}

// ListBySession returns all artifacts saved for a session, newest first.
func (s *SQLiteStore) ListBySession(ctx context.Context, sessionID string) ([]*Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, run_id, stage, agent, model, content, elapsed_ms, created_at
		FROM artifacts WHERE session_id = ? ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying artifacts: %w", err)
	}
	defer rows.Close()

	return scanArtifacts(rows)
}

func scanArtifacts(rows *sql.Rows) ([]*Artifact, error) {
	var artifacts []*Artifact
	for rows.Next() {
		var a Artifact
		var elapsedMS int64
		if err := rows.Scan(&a.ID, &a.SessionID, &a.RunID, &a.Stage, &a.Agent, &a.Model,
			&a.Content, &elapsedMS, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		a.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		artifacts = append(artifacts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating artifacts: %w", err)
	}
	return artifacts, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
