// ABOUTME: Tests for the Ollama HTTP client against a stub backend.
// ABOUTME: Covers tag listing, generation, and error translation.

package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListModels(t *testing.T) {
	t.Run("returns installed model names", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/tags", r.URL.Path)
			require.Equal(t, http.MethodGet, r.Method)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]any{
					{"name": "agent-visionnaire", "size": 1234},
					{"name": "agent-architecte", "size": 5678},
				},
			})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second)
		names, err := client.ListModels(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"agent-visionnaire", "agent-architecte"}, names)
	})

	t.Run("propagates backend errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second)
		_, err := client.ListModels(context.Background())
		assert.Error(t, err)
	})

	t.Run("fails when backend is unreachable", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", 100*time.Millisecond)
		_, err := client.ListModels(context.Background())
		assert.Error(t, err)
	})
}

func TestGenerate(t *testing.T) {
	t.Run("sends prompt and returns completion", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/generate", r.URL.Path)

			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "agent-architecte", req["model"])
			assert.Equal(t, "design a schema", req["prompt"])
			assert.Equal(t, false, req["stream"])

			_ = json.NewEncoder(w).Encode(map[string]any{
				"model":    "agent-architecte",
				"response": "use postgres",
				"done":     true,
			})
		}))
		defer srv.Close()

		client := NewClient(srv.URL, time.Second)
		out, err := client.Generate(context.Background(), "agent-architecte", "design a schema", &GenerateOptions{
			NumPredict:  300,
			Temperature: 0.7,
		})
		require.NoError(t, err)
		assert.Equal(t, "use postgres", out)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The server only watches for client disconnect once the body is
			// consumed, so drain it or r.Context() never gets cancelled.
			_, _ = io.Copy(io.Discard, r.Body)
			<-r.Context().Done()
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		client := NewClient(srv.URL, time.Second)
		_, err := client.Generate(ctx, "m", "p", nil)
		assert.Error(t, err)
	})
}
