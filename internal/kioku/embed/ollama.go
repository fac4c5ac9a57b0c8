package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	defaultOllamaBase  = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
)

// knownOllamaDims maps recognized local models to their dimensionality.
var knownOllamaDims = map[string]int{
	"nomic-embed-text":  768,
	"all-minilm":        384,
	"mxbai-embed-large": 1024,
}

// ollama implements Embedder against a local Ollama instance. No auth;
// the request/response shape is Ollama's own ({model, prompt} in,
// {embedding} out).
type ollama struct {
	baseURL string
	model   string
	dims    int
	client  *http.Client
}

func newOllama(cfg Config) *ollama {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBase
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	dims := cfg.Dims
	if dims == 0 {
		if known, ok := knownOllamaDims[model]; ok {
			dims = known
		} else {
			dims = knownOllamaDims[defaultOllamaModel]
		}
	}
	return &ollama{
		baseURL: baseURL,
		model:   model,
		dims:    dims,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed calls /api/embeddings on the local instance.
func (e *ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	data, err := json.Marshal(ollamaRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embed ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/api/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("embed ollama: create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed ollama: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed ollama: HTTP %d: %s", resp.StatusCode, body)
	}

	var parsed ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embed ollama: decode response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embed ollama: no embedding returned")
	}
	return parsed.Embedding, nil
}

// Dims returns the configured or model-derived dimensionality.
func (e *ollama) Dims() int { return e.dims }

// Compile-time interface satisfaction check.
var _ Embedder = (*ollama)(nil)
