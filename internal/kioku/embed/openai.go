package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// openAIDefaults maps the OpenAI-compatible providers to their endpoint and
// model defaults. Mistral and Together expose the same wire shape as the
// OpenAI embeddings API, differing only in base URL and model catalog.
var openAIDefaults = map[string]struct {
	baseURL string
	model   string
	dims    int
}{
	ProviderOpenAI:   {"https://api.openai.com/v1", "text-embedding-3-small", 1536},
	ProviderMistral:  {"https://api.mistral.ai/v1", "mistral-embed", 1024},
	ProviderTogether: {"https://api.together.xyz/v1", "togethercomputer/m2-bert-80M-8k-retrieval", 768},
}

// knownOpenAIDims holds dimensionalities for models we recognize. Models
// outside this list are sent verbatim; their dimensionality must then come
// from Config.Dims.
var knownOpenAIDims = map[string]int{
	"text-embedding-3-small":                    1536,
	"text-embedding-3-large":                    3072,
	"text-embedding-ada-002":                    1536,
	"mistral-embed":                             1024,
	"togethercomputer/m2-bert-80M-8k-retrieval": 768,
}

// openAICompatible implements Embedder for the OpenAI embeddings wire shape:
// POST {base}/embeddings with bearer auth, {input, model} request, and a
// data[].embedding response.
type openAICompatible struct {
	apiKey  string
	baseURL string
	model   string
	dims    int
	client  *http.Client
}

func newOpenAICompatible(cfg Config) *openAICompatible {
	defaults := openAIDefaults[cfg.Provider]

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaults.baseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaults.model
	}
	dims := cfg.Dims
	if dims == 0 {
		if known, ok := knownOpenAIDims[model]; ok {
			dims = known
		} else {
			dims = defaults.dims
		}
	}

	return &openAICompatible{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		dims:    dims,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type openAIRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed calls the embeddings endpoint and extracts the first vector.
func (e *openAICompatible) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	data, err := json.Marshal(openAIRequest{Input: text, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("embed openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("embed openai: create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed openai: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embed openai: read response body: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("embed openai: decode response: %w", err)
	}

	if parsed.Error != nil {
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("embed openai: rate limit (HTTP 429): %s", parsed.Error.Message)
		}
		return nil, fmt.Errorf("embed openai: API error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embed openai: unexpected HTTP status %d", resp.StatusCode)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embed openai: no embedding data returned")
	}
	return parsed.Data[0].Embedding, nil
}

// Dims returns the configured or model-derived dimensionality.
func (e *openAICompatible) Dims() int { return e.dims }

// Compile-time interface satisfaction check.
var _ Embedder = (*openAICompatible)(nil)
