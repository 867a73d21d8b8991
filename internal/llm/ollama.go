package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaEmbedder generates embeddings via a local Ollama instance.
// All HTTP calls are wrapped with circuit breaker protection so a down
// backend fails fast instead of stalling every insert and query.
type OllamaEmbedder struct {
	baseURL string
	model   string
	timeout time.Duration
	client  *http.Client
	breaker *Breaker
}

// OllamaConfig holds Ollama embedder configuration.
type OllamaConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model name (default: nomic-embed-text).
	Model string

	// Timeout is the per-request timeout (default: 5s).
	Timeout time.Duration
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse carries a 2D embeddings array; a single input always
// yields exactly one row.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an Ollama embedder; zero config fields get
// defaults.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &OllamaEmbedder{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewBreaker(),
	}
}

// Embed generates an embedding for the given text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	result, err := e.breaker.Execute(ctx, func() (interface{}, error) {
		return e.embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("ollama: %w", err)
		}
		return nil, err
	}
	return result.([]float64), nil
}

// embed is the raw HTTP call without circuit breaker wrapping.
func (e *OllamaEmbedder) embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(b))
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding vector")
	}

	embedding := make([]float64, len(respData.Embeddings[0]))
	for i, v := range respData.Embeddings[0] {
		embedding[i] = float64(v)
	}
	return embedding, nil
}

// Model returns the configured embedding model name.
func (e *OllamaEmbedder) Model() string { return e.model }

// HealthCheck verifies that Ollama is reachable. Not breaker-wrapped
// since it is the probe itself.
func (e *OllamaEmbedder) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", e.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check returned status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

var _ Embedder = (*OllamaEmbedder)(nil)
