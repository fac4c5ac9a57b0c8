// Package recall retrieves stored memory chunks relevant to the live
// conversation and splices them into the message sequence ahead of
// generation.
package recall

import (
	"context"
	"log/slog"

	"github.com/bdobrica/kioku/internal/kioku/embed"
	"github.com/bdobrica/kioku/internal/kioku/memory"
	"github.com/bdobrica/kioku/internal/kioku/observability"
	"github.com/bdobrica/kioku/internal/kioku/settings"
	"github.com/bdobrica/kioku/internal/kioku/vstore"
)

// Engine runs similarity retrieval for a query turn against an entity's
// collection. Every failure path degrades to an empty result: memory is a
// best-effort augmentation and must never block generation.
type Engine struct {
	store    vstore.Store
	embedder embed.Embedder
	settings settings.Source
	logger   *slog.Logger
}

// NewEngine creates an Engine. If logger is nil, the default slog logger
// is used.
func NewEngine(store vstore.Store, embedder embed.Embedder, src settings.Source, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, embedder: embedder, settings: src, logger: logger}
}

// Retrieve returns ranked results for queryText scoped to entity. The live
// conversation provides the recency cutoff: the most recent retention-many
// turns are excluded from retrieval so immediate context is never injected
// back into itself. Ordering is the backend's; no additional sort is
// imposed here.
func (e *Engine) Retrieve(ctx context.Context, queryText, entity string, live []memory.Turn) []vstore.Scored {
	cfg := e.settings.Current()
	logger := observability.WithTrace(ctx, e.logger)

	name := vstore.CollectionFor(cfg.BaseCollection, entity, cfg.PerEntity)
	if err := e.store.EnsureCollection(ctx, name, e.embedder.Dims()); err != nil {
		logger.Warn("recall: ensure collection failed", "collection", name, "err", err)
		return nil
	}

	vector, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		logger.Warn("recall: query embedding failed", "entity", entity, "err", err)
		return nil
	}
	if vector == nil {
		return nil
	}

	query := vstore.Query{
		Vector:         vector,
		Limit:          cfg.RecallLimit,
		ScoreThreshold: cfg.ScoreThreshold,
	}

	filter := &vstore.Filter{}
	if cutoff := recencyCutoff(live, cfg.Retention); cutoff > 0 {
		filter.TimestampBelow = cutoff
	}
	if !cfg.PerEntity {
		filter.Entity = entity
	}
	if filter.TimestampBelow > 0 || filter.Entity != "" {
		query.Filter = filter
	}

	results, err := e.store.Search(ctx, name, query)
	if err != nil {
		logger.Warn("recall: search failed", "collection", name, "err", err)
		return nil
	}
	return results
}

// recencyCutoff computes the timestamp boundary excluding the most recent
// retention-many live turns. Synthetic memory turns are stripped first so
// they never skew the count; turns without a resolvable timestamp are
// ignored. Returns 0 when the conversation is shorter than the retention
// window.
func recencyCutoff(live []memory.Turn, retention int) int64 {
	if retention <= 0 {
		return 0
	}

	var stamps []int64
	for _, t := range memory.StripMemoryTurns(live) {
		if ts, ok := t.Epoch(); ok {
			stamps = append(stamps, ts)
		}
	}
	if len(stamps) <= retention {
		return 0
	}
	return stamps[len(stamps)-retention]
}
