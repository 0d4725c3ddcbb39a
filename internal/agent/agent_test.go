// ABOUTME: Tests for agent availability caching and retry-then-fallback invocation.
// ABOUTME: Uses a scriptable fake backend instead of a live Ollama instance.

package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atomixxxx/MONPROJETIA2.0/internal/ollama"
)

// fakeBackend is a scriptable Backend implementation.
type fakeBackend struct {
	mu            sync.Mutex
	models        []string
	listErr       error
	listCalls     int
	generateErr   error
	generateOut   string
	generateCalls int
	// failFirstN makes the first N Generate calls fail even when
	// generateErr is nil.
	failFirstN int
}

func (f *fakeBackend) ListModels(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.models, nil
}

func (f *fakeBackend) Generate(ctx context.Context, model, prompt string, opts *ollama.GenerateOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	if f.failFirstN > 0 {
		f.failFirstN--
		return "", errors.New("transient backend error")
	}
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.generateOut, nil
}

func (f *fakeBackend) calls() (list, generate int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.generateCalls
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Backoff = time.Millisecond
	opts.AttemptTimeout = time.Second
	return opts
}

func newTestAgent(backend Backend, opts Options) *Agent {
	return New("Bob", "agent-architecte", RoleArchitect, "architecture", "#FFEAA7", "🏗️", backend, opts, slog.Default())
}

func TestAvailable(t *testing.T) {
	t.Run("caches probe result within validity window", func(t *testing.T) {
		backend := &fakeBackend{models: []string{"agent-architecte"}}
		a := newTestAgent(backend, testOptions())

		assert.True(t, a.Available(context.Background()))
		assert.True(t, a.Available(context.Background()))

		list, _ := backend.calls()
		assert.Equal(t, 1, list, "second call should hit the cache")
	})

	t.Run("probe failure is cached as unavailable", func(t *testing.T) {
		backend := &fakeBackend{listErr: errors.New("connection refused")}
		a := newTestAgent(backend, testOptions())

		assert.False(t, a.Available(context.Background()))
		assert.False(t, a.Available(context.Background()))

		list, _ := backend.calls()
		assert.Equal(t, 1, list, "failed probe must not be retried within the window")
	})

	t.Run("expired cache triggers a fresh probe", func(t *testing.T) {
		backend := &fakeBackend{models: []string{"agent-architecte"}}
		opts := testOptions()
		opts.CacheValidity = time.Millisecond
		a := newTestAgent(backend, opts)

		a.Available(context.Background())
		time.Sleep(5 * time.Millisecond)
		a.Available(context.Background())

		list, _ := backend.calls()
		assert.Equal(t, 2, list)
	})
}

func TestInvoke(t *testing.T) {
	t.Run("returns formatted response on success", func(t *testing.T) {
		backend := &fakeBackend{models: []string{"agent-architecte"}, generateOut: "use postgres"}
		a := newTestAgent(backend, testOptions())

		out := a.Invoke(context.Background(), "build a landing page", nil)
		assert.Contains(t, out, "Bob")
		assert.Contains(t, out, "Software Architect")
		assert.Contains(t, out, "use postgres")
	})

	t.Run("unavailable model falls back without a generate attempt", func(t *testing.T) {
		backend := &fakeBackend{models: []string{"something-else"}}
		a := newTestAgent(backend, testOptions())

		out := a.Invoke(context.Background(), "anything", nil)
		assert.NotEmpty(t, out)
		assert.Contains(t, out, "Suggested architecture")

		_, generate := backend.calls()
		assert.Equal(t, 0, generate)
	})

	t.Run("retries transient failures then succeeds", func(t *testing.T) {
		backend := &fakeBackend{models: []string{"agent-architecte"}, generateOut: "ok", failFirstN: 2}
		a := newTestAgent(backend, testOptions())

		out := a.Invoke(context.Background(), "anything", nil)
		assert.Contains(t, out, "ok")

		_, generate := backend.calls()
		assert.Equal(t, 3, generate)
	})

	t.Run("exhausted attempts return the fallback, never an empty string", func(t *testing.T) {
		backend := &fakeBackend{models: []string{"agent-architecte"}, generateErr: errors.New("boom")}
		a := newTestAgent(backend, testOptions())

		out := a.Invoke(context.Background(), "anything", nil)
		assert.NotEmpty(t, out)
		assert.Contains(t, out, "Suggested architecture")

		_, generate := backend.calls()
		assert.Equal(t, 3, generate, "retries=2 means three attempts")
	})

	t.Run("truncates long responses", func(t *testing.T) {
		long := strings.Repeat("x", 2000)
		backend := &fakeBackend{models: []string{"agent-architecte"}, generateOut: long}
		opts := testOptions()
		opts.MaxResultLen = 100
		a := newTestAgent(backend, opts)

		out := a.Invoke(context.Background(), "anything", nil)
		assert.Contains(t, out, strings.Repeat("x", 100))
		assert.NotContains(t, out, strings.Repeat("x", 101))
	})

	t.Run("records last interaction", func(t *testing.T) {
		backend := &fakeBackend{models: []string{"agent-architecte"}, generateOut: "ok"}
		a := newTestAgent(backend, testOptions())

		require.True(t, a.LastInteraction().IsZero())
		a.Invoke(context.Background(), "anything", nil)
		assert.False(t, a.LastInteraction().IsZero())
	})
}

func TestBuildPrompt(t *testing.T) {
	t.Run("includes earlier stage artifacts in order", func(t *testing.T) {
		prompt := buildPrompt(RoleBackend, "a shop", map[string]string{
			"step_2": "second",
			"step_1": "first",
		})
		assert.Contains(t, prompt, "As the backend engineer")
		assert.Contains(t, prompt, "step_1: first")
		assert.Contains(t, prompt, "step_2: second")
		assert.Less(t, strings.Index(prompt, "step_1"), strings.Index(prompt, "step_2"))
	})

	t.Run("omits the context section for the first stage", func(t *testing.T) {
		prompt := buildPrompt(RoleVisionary, "a shop", nil)
		assert.NotContains(t, prompt, "earlier stages")
	})
}

func TestParseRole(t *testing.T) {
	t.Run("accepts known roles case-insensitively", func(t *testing.T) {
		role, err := ParseRole("Architect")
		require.NoError(t, err)
		assert.Equal(t, RoleArchitect, role)
	})

	t.Run("rejects unknown roles", func(t *testing.T) {
		_, err := ParseRole("prompt-wizard")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown agent role")
	})
}
