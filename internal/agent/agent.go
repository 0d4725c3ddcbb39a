// ABOUTME: Agent wraps one inference capability with availability caching.
// ABOUTME: Invoke guarantees a non-empty response via bounded retry and deterministic fallback.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Atomixxxx/MONPROJETIA2.0/internal/ollama"
)

// Backend is the inference service consumed by agents. *ollama.Client
// satisfies it; tests substitute fakes.
type Backend interface {
	ListModels(ctx context.Context) ([]string, error)
	Generate(ctx context.Context, model, prompt string, opts *ollama.GenerateOptions) (string, error)
}

// Options bound the cost of a single Invoke and the availability cache.
type Options struct {
	// Retries is the number of re-attempts after the first failed call.
	Retries int
	// Backoff is the fixed pause between attempts.
	Backoff time.Duration
	// AttemptTimeout bounds each individual backend call.
	AttemptTimeout time.Duration
	// CacheValidity is how long an availability probe result is trusted.
	CacheValidity time.Duration
	// MaxResultLen truncates successful responses, in runes.
	MaxResultLen int
}

// DefaultOptions mirror the reference deployment.
func DefaultOptions() Options {
	return Options{
		Retries:        2,
		Backoff:        time.Second,
		AttemptTimeout: 60 * time.Second,
		CacheValidity:  60 * time.Second,
		MaxResultLen:   500,
	}
}

// Agent represents one named inference capability. Configuration fields are
// immutable after construction; only the availability cache mutates, and it
// is safe for concurrent use across sessions.
type Agent struct {
	Name        string
	Model       string
	Role        Role
	Description string
	Color       string
	Emoji       string

	backend Backend
	opts    Options
	logger  *slog.Logger

	// availability cache
	mu              sync.RWMutex
	available       bool
	checkedAt       time.Time
	lastInteraction time.Time
}

// New creates an agent bound to a backend. The role must already be
// validated via ParseRole.
func New(name, model string, role Role, description, color, emoji string, backend Backend, opts Options, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		Name:        name,
		Model:       model,
		Role:        role,
		Description: description,
		Color:       color,
		Emoji:       emoji,
		backend:     backend,
		opts:        opts,
		logger:      logger.With("component", "agent", "agent", name),
	}
}

// Available reports whether the agent's model is installed on the backend.
// The answer is cached for the configured validity window. A failed probe
// counts as unavailable and still refreshes the cache, so a down backend is
// not hammered once per call.
func (a *Agent) Available(ctx context.Context) bool {
	a.mu.RLock()
	if !a.checkedAt.IsZero() && time.Since(a.checkedAt) < a.opts.CacheValidity {
		v := a.available
		a.mu.RUnlock()
		return v
	}
	a.mu.RUnlock()

	models, err := a.backend.ListModels(ctx)
	available := err == nil && slices.Contains(models, a.Model)
	if err != nil {
		a.logger.Warn("availability probe failed", "model", a.Model, "error", err)
	}

	a.mu.Lock()
	a.available = available
	a.checkedAt = time.Now()
	a.mu.Unlock()

	return available
}

// Invoke produces this agent's artifact for one workflow stage. It never
// fails: backend trouble is resolved locally by retrying up to
// Retries+1 attempts and then falling back to the role's deterministic
// placeholder. The returned string is never empty.
func (a *Agent) Invoke(ctx context.Context, input string, priorStages map[string]string) string {
	a.touch()

	if !a.Available(ctx) {
		a.logger.Info("model unavailable, using fallback", "model", a.Model)
		return a.fallback()
	}

	prompt := buildPrompt(a.Role, input, priorStages)

	for attempt := 0; attempt <= a.opts.Retries; attempt++ {
		out, err := a.generateOnce(ctx, prompt)
		if err == nil {
			return a.format(truncate(out, a.opts.MaxResultLen))
		}

		a.logger.Warn("generation attempt failed",
			"attempt", attempt+1,
			"max_attempts", a.opts.Retries+1,
			"error", err,
		)

		if attempt < a.opts.Retries {
			select {
			case <-time.After(a.opts.Backoff):
			case <-ctx.Done():
				return a.fallback()
			}
		}
	}

	return a.fallback()
}

// generateOnce performs a single bounded backend call.
func (a *Agent) generateOnce(ctx context.Context, prompt string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.opts.AttemptTimeout)
	defer cancel()

	return a.backend.Generate(attemptCtx, a.Model, prompt, &ollama.GenerateOptions{
		NumPredict:  300,
		Temperature: 0.7,
		Stop:        []string{"---", "\n\n\n"},
		NumCtx:      4096,
	})
}

// format decorates a successful response with the agent's identity, the
// shape the frontend renders.
func (a *Agent) format(text string) string {
	return fmt.Sprintf("%s **%s** (%s):\n\n%s", a.Emoji, a.Name, a.Role.Label(), text)
}

// fallback returns the role's deterministic placeholder, decorated the same
// way as a real response so downstream stages always have usable input.
func (a *Agent) fallback() string {
	return fmt.Sprintf("%s **%s** (%s):\n\n%s", a.Emoji, a.Name, a.Role.Label(), roleTable[a.Role].fallback)
}

func (a *Agent) touch() {
	a.mu.Lock()
	a.lastInteraction = time.Now()
	a.mu.Unlock()
}

// LastInteraction reports when the agent was last invoked.
func (a *Agent) LastInteraction() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastInteraction
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
