package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAICompatible_Embed(t *testing.T) {
	var gotReq openAIRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2, 0.3}, "index": 0},
			},
		})
	}))
	defer srv.Close()

	e := newOpenAICompatible(Config{
		Provider: ProviderOpenAI,
		APIKey:   "sk-test",
		BaseURL:  srv.URL,
	})

	vec, err := e.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("vector = %v", vec)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Input != "hello world" || gotReq.Model != "text-embedding-3-small" {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestOpenAICompatible_EmbedEmptyText(t *testing.T) {
	e := newOpenAICompatible(Config{Provider: ProviderOpenAI, BaseURL: "http://unreachable.invalid"})
	vec, err := e.Embed(context.Background(), "")
	if err != nil || vec != nil {
		t.Errorf("Embed(\"\") = %v, %v; want nil, nil without network use", vec, err)
	}
}

func TestOpenAICompatible_EmbedErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantSub string
	}{
		{
			name:    "rate limit",
			status:  http.StatusTooManyRequests,
			body:    `{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`,
			wantSub: "rate limit",
		},
		{
			name:    "api error",
			status:  http.StatusUnauthorized,
			body:    `{"error":{"message":"bad key","type":"invalid_request_error"}}`,
			wantSub: "invalid_request_error",
		},
		{
			name:    "error status without error body",
			status:  http.StatusInternalServerError,
			body:    `{}`,
			wantSub: "unexpected HTTP status 500",
		},
		{
			name:    "empty data",
			status:  http.StatusOK,
			body:    `{"data":[]}`,
			wantSub: "no embedding data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			e := newOpenAICompatible(Config{Provider: ProviderOpenAI, APIKey: "k", BaseURL: srv.URL})
			_, err := e.Embed(context.Background(), "text")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not contain %q", err, tt.wantSub)
			}
		})
	}
}

func TestOllama_Embed(t *testing.T) {
	var gotReq ollamaRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.4, 0.5}})
	}))
	defer srv.Close()

	e := newOllama(Config{Provider: ProviderOllama, BaseURL: srv.URL})
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("vector = %v", vec)
	}
	if gotReq.Model != "nomic-embed-text" || gotReq.Prompt != "hello" {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestCohere_Embed(t *testing.T) {
	var gotReq cohereRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.7, 0.8}}})
	}))
	defer srv.Close()

	e := newCohere(Config{Provider: ProviderCohere, APIKey: "k", BaseURL: srv.URL})
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.7 {
		t.Errorf("vector = %v", vec)
	}
	if len(gotReq.Texts) != 1 || gotReq.Texts[0] != "hello" || gotReq.InputType != "search_document" {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestCohere_EmbedAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid model"}`))
	}))
	defer srv.Close()

	e := newCohere(Config{Provider: ProviderCohere, APIKey: "k", BaseURL: srv.URL})
	_, err := e.Embed(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "invalid model") {
		t.Errorf("err = %v, want API error carrying the message", err)
	}
}
