package vstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultQdrantTimeout = 30 * time.Second

// QdrantConfig configures the Qdrant HTTP backend.
type QdrantConfig struct {
	// URL is the base URL of the Qdrant instance, e.g. http://localhost:6333.
	URL string

	// APIKey is sent as the api-key header when non-empty.
	APIKey string

	// Timeout is the per-request HTTP timeout. Defaults to 30 s.
	Timeout time.Duration
}

// Qdrant implements Store against the Qdrant REST API. It is safe for
// concurrent use.
type Qdrant struct {
	cfg    QdrantConfig
	client *http.Client
	logger *slog.Logger
}

// NewQdrant creates a Qdrant backend. If logger is nil, the default slog
// logger is used.
func NewQdrant(cfg QdrantConfig, logger *slog.Logger) *Qdrant {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultQdrantTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Qdrant{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// --- wire types ---

type qdrantCreateRequest struct {
	Vectors qdrantVectorParams `json:"vectors"`
}

type qdrantVectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type qdrantUpsertRequest struct {
	Points []Point `json:"points"`
}

type qdrantSearchRequest struct {
	Vector         []float32     `json:"vector"`
	Limit          int           `json:"limit"`
	ScoreThreshold float64       `json:"score_threshold,omitempty"`
	WithPayload    bool          `json:"with_payload"`
	Filter         *qdrantFilter `json:"filter,omitempty"`
}

type qdrantFilter struct {
	Must   []qdrantCondition `json:"must,omitempty"`
	Should []qdrantCondition `json:"should,omitempty"`
}

type qdrantCondition struct {
	Key   string       `json:"key"`
	Match *qdrantMatch `json:"match,omitempty"`
	Range *qdrantRange `json:"range,omitempty"`
}

type qdrantMatch struct {
	Value any `json:"value"`
}

type qdrantRange struct {
	LT int64 `json:"lt"`
}

type qdrantSearchResponse struct {
	Result []struct {
		Score   float64 `json:"score"`
		Payload Payload `json:"payload"`
	} `json:"result"`
}

type qdrantScrollRequest struct {
	Filter      *qdrantFilter `json:"filter"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
}

type qdrantScrollResponse struct {
	Result struct {
		Points []json.RawMessage `json:"points"`
	} `json:"result"`
}

type qdrantCollectionsResponse struct {
	Result struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	} `json:"result"`
}

// EnsureCollection probes the collection and creates it when absent.
// Another writer creating it concurrently is tolerated: the create call's
// "already exists" response is treated as success.
func (q *Qdrant) EnsureCollection(ctx context.Context, name string, dims int) error {
	status, _, err := q.do(ctx, http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	req := qdrantCreateRequest{
		Vectors: qdrantVectorParams{Size: dims, Distance: "Cosine"},
	}
	status, body, err := q.do(ctx, http.MethodPut, "/collections/"+name, req)
	if err != nil {
		return err
	}
	if status == http.StatusOK || status == http.StatusConflict {
		if status == http.StatusConflict {
			q.logger.Debug("qdrant: collection created concurrently", "collection", name)
		}
		return nil
	}
	return fmt.Errorf("qdrant: create collection %q: HTTP %d: %s", name, status, truncate(body))
}

// DeleteCollection removes the named collection.
func (q *Qdrant) DeleteCollection(ctx context.Context, name string) error {
	status, body, err := q.do(ctx, http.MethodDelete, "/collections/"+name, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant: delete collection %q: HTTP %d: %s", name, status, truncate(body))
	}
	return nil
}

// ListCollections returns the names of all collections.
func (q *Qdrant) ListCollections(ctx context.Context) ([]string, error) {
	status, body, err := q.do(ctx, http.MethodGet, "/collections", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("qdrant: list collections: HTTP %d: %s", status, truncate(body))
	}

	var resp qdrantCollectionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("qdrant: decode collections response: %w", err)
	}
	names := make([]string, 0, len(resp.Result.Collections))
	for _, c := range resp.Result.Collections {
		names = append(names, c.Name)
	}
	return names, nil
}

// Upsert writes points into the collection.
func (q *Qdrant) Upsert(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	status, body, err := q.do(ctx, http.MethodPost, "/collections/"+name+"/points", qdrantUpsertRequest{Points: points})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant: upsert into %q: HTTP %d: %s", name, status, truncate(body))
	}
	return nil
}

// Search runs a similarity query. The filter maps Query.Filter onto must
// conditions: a strict timestamp upper bound and an exact entity match.
func (q *Qdrant) Search(ctx context.Context, name string, query Query) ([]Scored, error) {
	req := qdrantSearchRequest{
		Vector:         query.Vector,
		Limit:          query.Limit,
		ScoreThreshold: query.ScoreThreshold,
		WithPayload:    true,
	}
	if f := query.Filter; f != nil {
		var must []qdrantCondition
		if f.TimestampBelow > 0 {
			must = append(must, qdrantCondition{Key: "timestamp", Range: &qdrantRange{LT: f.TimestampBelow}})
		}
		if f.Entity != "" {
			must = append(must, qdrantCondition{Key: "entity", Match: &qdrantMatch{Value: f.Entity}})
		}
		if len(must) > 0 {
			req.Filter = &qdrantFilter{Must: must}
		}
	}

	status, body, err := q.do(ctx, http.MethodPost, "/collections/"+name+"/points/search", req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("qdrant: search %q: HTTP %d: %s", name, status, truncate(body))
	}

	var resp qdrantSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("qdrant: decode search response: %w", err)
	}

	results := make([]Scored, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, Scored{Score: r.Score, Payload: r.Payload})
	}
	return results, nil
}

// ContainsAny probes for any point whose member_ids array contains one of
// the given IDs, using a scroll with a should-filter (one match condition
// per candidate ID).
func (q *Qdrant) ContainsAny(ctx context.Context, name string, memberIDs []string) (bool, error) {
	if len(memberIDs) == 0 {
		return false, nil
	}

	should := make([]qdrantCondition, 0, len(memberIDs))
	for _, id := range memberIDs {
		should = append(should, qdrantCondition{Key: "member_ids", Match: &qdrantMatch{Value: id}})
	}

	req := qdrantScrollRequest{
		Filter:      &qdrantFilter{Should: should},
		Limit:       1,
		WithPayload: false,
	}
	status, body, err := q.do(ctx, http.MethodPost, "/collections/"+name+"/points/scroll", req)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("qdrant: scroll %q: HTTP %d: %s", name, status, truncate(body))
	}

	var resp qdrantScrollResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("qdrant: decode scroll response: %w", err)
	}
	return len(resp.Result.Points) > 0, nil
}

// do issues a request and returns the status code and raw body. Transport
// failures are wrapped; non-2xx statuses are left to the caller since some
// (404 on probe, 409 on create) are expected.
func (q *Qdrant) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("qdrant: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.cfg.URL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("qdrant: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.cfg.APIKey != "" {
		req.Header.Set("api-key", q.cfg.APIKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("qdrant: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("qdrant: read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// truncate keeps error messages readable when Qdrant returns a long body.
func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "…"
	}
	return string(body)
}

// Compile-time interface satisfaction check.
var _ Store = (*Qdrant)(nil)
