package vstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Chromem implements Store on top of chromem-go, an embedded pure-Go vector
// database. It serves single-binary deployments and tests where running a
// Qdrant instance is not worth the operational cost.
//
// Payloads are stored as JSON in the document content. The member-ID
// existence probe uses an in-process index maintained on Upsert: with an
// in-memory database that matches the database lifetime exactly; with a
// persistent one the index starts empty after a restart, so reindex
// idempotence across restarts is only guaranteed on the Qdrant backend.
type Chromem struct {
	db *chromem.DB

	mu      sync.Mutex
	members map[string]map[string]struct{} // collection -> member ID set
}

// NewChromem creates an in-memory embedded store.
func NewChromem() *Chromem {
	return &Chromem{
		db:      chromem.NewDB(),
		members: make(map[string]map[string]struct{}),
	}
}

// NewChromemPersistent creates an embedded store persisted under path.
func NewChromemPersistent(path string) (*Chromem, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("chromem: open persistent db: %w", err)
	}
	return &Chromem{
		db:      db,
		members: make(map[string]map[string]struct{}),
	}, nil
}

// EnsureCollection creates the collection when absent. Dimensionality is
// not enforced by chromem at creation time; it is recorded as collection
// metadata for parity with the Qdrant backend.
func (c *Chromem) EnsureCollection(_ context.Context, name string, dims int) error {
	meta := map[string]string{"dims": fmt.Sprint(dims)}
	if _, err := c.db.GetOrCreateCollection(name, meta, nil); err != nil {
		return fmt.Errorf("chromem: ensure collection %q: %w", name, err)
	}
	return nil
}

// DeleteCollection removes the collection and its member index.
func (c *Chromem) DeleteCollection(_ context.Context, name string) error {
	if err := c.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("chromem: delete collection %q: %w", name, err)
	}
	c.mu.Lock()
	delete(c.members, name)
	c.mu.Unlock()
	return nil
}

// ListCollections returns the collection names in sorted order.
func (c *Chromem) ListCollections(_ context.Context) ([]string, error) {
	cols := c.db.ListCollections()
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Upsert writes points and records their member IDs in the probe index.
func (c *Chromem) Upsert(ctx context.Context, name string, points []Point) error {
	col, err := c.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return fmt.Errorf("chromem: get collection %q: %w", name, err)
	}

	for _, p := range points {
		content, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("chromem: marshal payload: %w", err)
		}
		doc := chromem.Document{
			ID:        p.ID,
			Content:   string(content),
			Embedding: p.Vector,
			Metadata:  map[string]string{"entity": p.Payload.Entity},
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("chromem: add document %q: %w", p.ID, err)
		}
	}

	c.mu.Lock()
	idx := c.members[name]
	if idx == nil {
		idx = make(map[string]struct{})
		c.members[name] = idx
	}
	for _, p := range points {
		for _, id := range p.Payload.MemberIDs {
			idx[id] = struct{}{}
		}
	}
	c.mu.Unlock()

	return nil
}

// Search runs a similarity query. The entity condition maps onto chromem's
// metadata filter; the timestamp bound is applied in Go after the query.
func (c *Chromem) Search(ctx context.Context, name string, q Query) ([]Scored, error) {
	col := c.db.GetCollection(name, nil)
	if col == nil {
		return nil, fmt.Errorf("chromem: collection %q does not exist", name)
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	// Post-filtering can discard results, so query the whole collection
	// when a timestamp bound is present. Embedded deployments are small
	// enough for this to stay cheap.
	n := q.Limit
	if q.Filter != nil && q.Filter.TimestampBelow > 0 {
		n = count
	}
	if n > count {
		n = count
	}

	var where map[string]string
	if q.Filter != nil && q.Filter.Entity != "" {
		where = map[string]string{"entity": q.Filter.Entity}
	}

	hits, err := col.QueryEmbedding(ctx, q.Vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query %q: %w", name, err)
	}

	results := make([]Scored, 0, len(hits))
	for _, hit := range hits {
		if float64(hit.Similarity) < q.ScoreThreshold {
			continue
		}
		var payload Payload
		if err := json.Unmarshal([]byte(hit.Content), &payload); err != nil {
			continue
		}
		if q.Filter != nil && q.Filter.TimestampBelow > 0 && payload.Timestamp >= q.Filter.TimestampBelow {
			continue
		}
		results = append(results, Scored{Score: float64(hit.Similarity), Payload: payload})
		if len(results) >= q.Limit {
			break
		}
	}
	return results, nil
}

// ContainsAny checks the in-process member-ID index.
func (c *Chromem) ContainsAny(_ context.Context, name string, memberIDs []string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.members[name]
	if idx == nil {
		return false, nil
	}
	for _, id := range memberIDs {
		if _, ok := idx[id]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Compile-time interface satisfaction check.
var _ Store = (*Chromem)(nil)
