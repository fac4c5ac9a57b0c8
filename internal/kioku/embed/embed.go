// Package embed maps a configured provider name to an embedding backend
// and normalizes every failure mode (network errors, non-2xx statuses,
// unparsable bodies) into an error return. Exactly one of {vector, error}
// comes back from Embed; nothing is thrown past this boundary.
package embed

import (
	"context"
	"fmt"
	"time"
)

// Embedder produces vector embeddings for text. Dims reports the vector
// dimensionality, which fixes the dimensionality of newly created storage
// collections.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dims() int
}

// Config selects and configures a provider. Zero fields fall back to the
// provider's defaults. A Model not on the provider's known list is passed
// through verbatim; set Dims alongside it when the model's dimensionality
// differs from the provider default.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Dims     int
	Timeout  time.Duration
}

// Provider names accepted by New.
const (
	ProviderOpenAI   = "openai"
	ProviderMistral  = "mistral"
	ProviderTogether = "together"
	ProviderOllama   = "ollama"
	ProviderCohere   = "cohere"
	ProviderNoop     = "noop"
)

const defaultTimeout = 30 * time.Second

// RequiresKey reports whether the named provider needs an API key. The
// buffering pipeline uses this as a pre-flight check so a misconfigured
// provider short-circuits before any network call.
func RequiresKey(provider string) bool {
	switch provider {
	case ProviderOllama, ProviderNoop:
		return false
	default:
		return true
	}
}

// New creates the Embedder selected by cfg.Provider.
func New(cfg Config) (Embedder, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	switch cfg.Provider {
	case ProviderOpenAI, ProviderMistral, ProviderTogether:
		return newOpenAICompatible(cfg), nil
	case ProviderOllama:
		return newOllama(cfg), nil
	case ProviderCohere:
		return newCohere(cfg), nil
	case ProviderNoop, "":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("embed: unknown provider %q", cfg.Provider)
	}
}

// Noop is a stub Embedder returning a nil vector with no error. With a nil
// vector the caller skips storage writes and similarity search entirely.
type Noop struct{}

// Embed returns nil with no error, signalling that embedding is unavailable.
func (Noop) Embed(_ context.Context, _ string) ([]float32, error) { return nil, nil }

// Dims returns 0; no collection should be created for a noop embedder.
func (Noop) Dims() int { return 0 }

// Compile-time interface satisfaction check.
var _ Embedder = Noop{}
