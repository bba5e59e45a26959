// Package ollama is the HTTP client for the Ollama model server. It carries
// both collaborators the pipeline needs: embedding generation and text
// completion, plus the health/model listing used by the status endpoint.
//
// The client is constructed explicitly and injected into its consumers;
// there is no package-level singleton and no ambient environment lookup.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the standard local Ollama endpoint.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultTemperature and DefaultMaxTokens apply when CompleteOptions
	// leaves them zero. These match a general-purpose chat call; grounded
	// answer generation passes lower values for focus.
	DefaultTemperature float32 = 0.7
	DefaultMaxTokens           = 2048

	defaultEmbedTimeout    = 30 * time.Second
	defaultGenerateTimeout = 2 * time.Minute
)

// Config holds client construction parameters.
type Config struct {
	BaseURL         string
	Model           string // generation model, e.g. "llama3.2"
	EmbeddingModel  string // e.g. "nomic-embed-text"
	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration

	// RequestsPerSecond paces outbound calls so a large ingestion cannot
	// saturate the model server. Zero disables pacing.
	RequestsPerSecond float64

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to a single Ollama server.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL         string
	model           string
	embeddingModel  string
	embedTimeout    time.Duration
	generateTimeout time.Duration
	httpc           *http.Client
	limiter         *rate.Limiter
	logger          *slog.Logger
}

// New creates a Client from cfg. Zero-valued fields fall back to defaults.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	embedTimeout := cfg.EmbedTimeout
	if embedTimeout <= 0 {
		embedTimeout = defaultEmbedTimeout
	}
	generateTimeout := cfg.GenerateTimeout
	if generateTimeout <= 0 {
		generateTimeout = defaultGenerateTimeout
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		baseURL:         baseURL,
		model:           cfg.Model,
		embeddingModel:  cfg.EmbeddingModel,
		embedTimeout:    embedTimeout,
		generateTimeout: generateTimeout,
		httpc:           httpc,
		limiter:         limiter,
		logger:          logger,
	}
}

// EmbedError reports a failed embedding call. During ingestion these are
// recoverable per chunk: the pipeline logs, skips and continues.
type EmbedError struct {
	Message string
	Err     error
}

func (e *EmbedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding failed: %s: %v", e.Message, e.Err)
	}
	return "embedding failed: " + e.Message
}

func (e *EmbedError) Unwrap() error { return e.Err }

// GenerateError reports a failed completion call. These are fatal to the
// query that triggered them; no retry happens at this layer.
type GenerateError struct {
	Message string
	Err     error
}

func (e *GenerateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed: %s: %v", e.Message, e.Err)
	}
	return "generation failed: " + e.Message
}

func (e *GenerateError) Unwrap() error { return e.Err }

// CompleteOptions tune a completion call. Zero values take the defaults.
type CompleteOptions struct {
	Temperature float32
	MaxTokens   int
}

// Embed returns the embedding vector for text using the configured
// embedding model. The call is bounded by the embed timeout.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.embedTimeout)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		return nil, &EmbedError{Message: "rate limit wait", Err: err}
	}

	reqBody := map[string]any{
		"model":  c.embeddingModel,
		"prompt": text,
	}
	var resp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := c.post(ctx, "/api/embeddings", reqBody, &resp); err != nil {
		return nil, &EmbedError{Message: "request to " + c.baseURL, Err: err}
	}
	if len(resp.Embedding) == 0 {
		return nil, &EmbedError{Message: "no embedding returned for model " + c.embeddingModel}
	}
	return resp.Embedding, nil
}

// Complete returns the model's completion for prompt. The call is bounded
// by the generate timeout.
func (c *Client) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.generateTimeout)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		return "", &GenerateError{Message: "rate limit wait", Err: err}
	}

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	reqBody := map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": temperature,
			"top_p":       0.9,
			"num_predict": maxTokens,
		},
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := c.post(ctx, "/api/generate", reqBody, &resp); err != nil {
		return "", &GenerateError{Message: "request to " + c.baseURL, Err: err}
	}
	if resp.Response == "" {
		return "", &GenerateError{Message: "empty response from model " + c.model}
	}
	return resp.Response, nil
}

// ModelInfo describes one model reported by the server.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Health describes the reachability of the Ollama server. A failed check is
// reported in the struct, not as an error: callers surface degraded status
// rather than failing the whole status request.
type Health struct {
	Status  string      `json:"status"` // "healthy" or "unhealthy"
	Models  []ModelInfo `json:"models,omitempty"`
	BaseURL string      `json:"base_url"`
	Error   string      `json:"error,omitempty"`
}

// CheckHealth probes the server's model listing endpoint.
func (c *Client) CheckHealth(ctx context.Context) Health {
	models, err := c.ListModels(ctx)
	if err != nil {
		c.logger.Warn("ollama health check failed", "base_url", c.baseURL, "error", err)
		return Health{Status: "unhealthy", BaseURL: c.baseURL, Error: err.Error()}
	}
	return Health{Status: "healthy", Models: models, BaseURL: c.baseURL}
}

// ListModels returns the models available on the server.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing models: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}
	return out.Models, nil
}

// wait blocks on the rate limiter when one is configured.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// post sends a JSON body and decodes a JSON response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		// Bounded read keeps a misbehaving server from ballooning the error.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
