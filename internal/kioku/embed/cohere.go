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
	defaultCohereBase  = "https://api.cohere.ai/v1"
	defaultCohereModel = "embed-english-v3.0"
)

var knownCohereDims = map[string]int{
	"embed-english-v3.0":            1024,
	"embed-multilingual-v3.0":       1024,
	"embed-english-light-v3.0":      384,
	"embed-multilingual-light-v3.0": 384,
}

// cohere implements Embedder against the Cohere embed API. The wire shape
// differs from OpenAI's: a texts array goes in, an embeddings array of
// arrays comes out.
type cohere struct {
	apiKey  string
	baseURL string
	model   string
	dims    int
	client  *http.Client
}

func newCohere(cfg Config) *cohere {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultCohereBase
	}
	model := cfg.Model
	if model == "" {
		model = defaultCohereModel
	}
	dims := cfg.Dims
	if dims == 0 {
		if known, ok := knownCohereDims[model]; ok {
			dims = known
		} else {
			dims = knownCohereDims[defaultCohereModel]
		}
	}
	return &cohere{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		dims:    dims,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type cohereRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type cohereResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Message    string      `json:"message,omitempty"`
}

// Embed calls /embed and extracts the first vector.
func (e *cohere) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	data, err := json.Marshal(cohereRequest{
		Texts:     []string{text},
		Model:     e.model,
		InputType: "search_document",
	})
	if err != nil {
		return nil, fmt.Errorf("embed cohere: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/embed", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("embed cohere: create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed cohere: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embed cohere: read response body: %w", err)
	}

	var parsed cohereResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("embed cohere: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Message != "" {
			return nil, fmt.Errorf("embed cohere: API error (HTTP %d): %s", resp.StatusCode, parsed.Message)
		}
		return nil, fmt.Errorf("embed cohere: unexpected HTTP status %d", resp.StatusCode)
	}
	if len(parsed.Embeddings) == 0 {
		return nil, fmt.Errorf("embed cohere: no embeddings returned")
	}
	return parsed.Embeddings[0], nil
}

// Dims returns the configured or model-derived dimensionality.
func (e *cohere) Dims() int { return e.dims }

// Compile-time interface satisfaction check.
var _ Embedder = (*cohere)(nil)
