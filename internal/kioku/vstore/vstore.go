// Package vstore provides vector storage for memory chunks: a common
// interface with a Qdrant HTTP backend for shared deployments and an
// embedded chromem-go backend for single-binary ones.
package vstore

import "context"

// Payload is the stored form of a memory unit. Multi-turn chunks set
// IsChunk along with the aggregate fields; legacy single-turn points carry
// IsUser/Speaker instead.
type Payload struct {
	Text         string   `json:"text"`
	Entity       string   `json:"entity"`
	IsChunk      bool     `json:"is_chunk"`
	Speakers     []string `json:"speakers,omitempty"`
	MemberIDs    []string `json:"member_ids,omitempty"`
	MessageCount int      `json:"message_count,omitempty"`
	Timestamp    int64    `json:"timestamp,omitempty"`
	IsUser       bool     `json:"is_user,omitempty"`
	Speaker      string   `json:"speaker,omitempty"`
}

// Point is a persisted vector with its payload.
type Point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// Filter narrows a similarity search. Zero values disable a condition.
type Filter struct {
	// TimestampBelow requires stored timestamps strictly below the value.
	TimestampBelow int64
	// Entity requires an exact match on the owning entity name. Used only
	// when entities share a single collection.
	Entity string
}

// Query describes a similarity search.
type Query struct {
	Vector         []float32
	Limit          int
	ScoreThreshold float64
	Filter         *Filter
}

// Scored is a single ranked search result.
type Scored struct {
	Score   float64
	Payload Payload
}

// Store is the vector storage contract. All methods normalize transport
// errors into returned errors; none panic across the boundary.
type Store interface {
	// EnsureCollection creates the named collection with the given vector
	// dimensionality if it does not exist. A concurrent creator winning the
	// race is not an error.
	EnsureCollection(ctx context.Context, name string, dims int) error

	// DeleteCollection removes the named collection.
	DeleteCollection(ctx context.Context, name string) error

	// ListCollections returns the existing collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// Upsert writes points into the named collection.
	Upsert(ctx context.Context, name string, points []Point) error

	// Search returns ranked results for the query. Ordering is the
	// backend's; callers impose no additional sort.
	Search(ctx context.Context, name string, q Query) ([]Scored, error)

	// ContainsAny reports whether any stored point's member-ID list
	// contains any of the given IDs. This is the reindex existence probe.
	ContainsAny(ctx context.Context, name string, memberIDs []string) (bool, error)
}
