// ABOUTME: HTTP client for the local Ollama inference backend.
// ABOUTME: Exposes model listing (/api/tags) and completion generation (/api/generate).

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GenerateOptions tunes a single completion request.
type GenerateOptions struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	NumCtx      int      `json:"num_ctx,omitempty"`
}

// generateRequest is the body for POST /api/generate.
type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Stream  bool             `json:"stream"`
	Options *GenerateOptions `json:"options,omitempty"`
}

// generateResponse is the (non-streaming) response from /api/generate.
type generateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// tagsResponse is the response from GET /api/tags.
type tagsResponse struct {
	Models []Model `json:"models"`
}

// Model is a single installed model as reported by /api/tags.
type Model struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

// Client talks to one Ollama instance. Safe for concurrent use.
type Client struct {
	host       string
	httpClient *http.Client
}

// NewClient creates a client for the Ollama instance at host
// (e.g. "http://localhost:11434"). timeout bounds each request.
func NewClient(host string, timeout time.Duration) *Client {
	return &Client{
		host:       host,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListModels returns the names of all installed models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request (is Ollama running?): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend error: %s - %s", resp.Status, string(body))
	}

	var tags tagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}

// Generate produces a completion for the given model and prompt.
// The call blocks until the backend answers or ctx expires.
func (c *Client) Generate(ctx context.Context, model, prompt string, opts *GenerateOptions) (string, error) {
	reqBody := generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Options: opts,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("backend error: %s - %s", resp.Status, string(body))
	}

	var gen generateResponse
	if err := json.Unmarshal(body, &gen); err != nil {
		return "", fmt.Errorf("unmarshaling response: %w", err)
	}

	return gen.Response, nil
}
