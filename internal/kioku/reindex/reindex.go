// Package reindex replays an entity's archived transcripts through the
// chunking pipeline, skipping chunks that are already stored. Identity is
// member-ID overlap, not content hashing, which is what makes re-running
// the reindex idempotent.
package reindex

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bdobrica/kioku/internal/kioku/embed"
	"github.com/bdobrica/kioku/internal/kioku/memory"
	"github.com/bdobrica/kioku/internal/kioku/settings"
	"github.com/bdobrica/kioku/internal/kioku/vstore"
)

// TranscriptStore enumerates and loads an entity's archived transcripts.
// LoadTranscript may return a nil slice for an unreadable transcript; the
// reindexer skips it and moves on.
type TranscriptStore interface {
	ListTranscripts(ctx context.Context, entity string) ([]string, error)
	LoadTranscript(ctx context.Context, entity, ref string) ([]memory.Turn, error)
}

// State is the terminal state of a reindex run.
type State string

const (
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateErrored   State = "errored"
)

// Report carries the outcome of a reindex run. Partial counts are
// preserved on cancellation and error.
type Report struct {
	State       State `json:"state"`
	Transcripts int   `json:"transcripts"`
	Saved       int   `json:"saved"`
	Skipped     int   `json:"skipped"`
	Failed      int   `json:"failed"`
}

// Reindexer drives the bulk re-indexing of one entity at a time.
// Transcripts and chunks are processed sequentially; cancellation is
// cooperative, checked between transcripts and between chunks, and does
// not abort in-flight network calls.
type Reindexer struct {
	store       vstore.Store
	embedder    embed.Embedder
	transcripts TranscriptStore
	settings    settings.Source
	logger      *slog.Logger
}

// New creates a Reindexer. If logger is nil, the default slog logger is
// used.
func New(store vstore.Store, embedder embed.Embedder, transcripts TranscriptStore, src settings.Source, logger *slog.Logger) *Reindexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reindexer{
		store:       store,
		embedder:    embedder,
		transcripts: transcripts,
		settings:    src,
		logger:      logger,
	}
}

// Reindex replays every archived transcript of entity through the packer
// and writes the chunks not already present in storage. Replay chunks are
// written for the entity alone; the multi-party participant expansion of
// the live path does not apply here.
func (r *Reindexer) Reindex(ctx context.Context, entity string) (Report, error) {
	cfg := r.settings.Current()
	report := Report{State: StateCompleted}

	name := vstore.CollectionFor(cfg.BaseCollection, entity, cfg.PerEntity)
	if err := r.store.EnsureCollection(ctx, name, r.embedder.Dims()); err != nil {
		report.State = StateErrored
		return report, fmt.Errorf("reindex: ensure collection %q: %w", name, err)
	}

	refs, err := r.transcripts.ListTranscripts(ctx, entity)
	if err != nil {
		report.State = StateErrored
		return report, fmt.Errorf("reindex: list transcripts for %q: %w", entity, err)
	}

	for _, ref := range refs {
		if ctx.Err() != nil {
			report.State = StateCancelled
			return report, nil
		}

		turns, err := r.transcripts.LoadTranscript(ctx, entity, ref)
		if err != nil || turns == nil {
			r.logger.Warn("reindex: transcript unreadable, skipping", "entity", entity, "ref", ref, "err", err)
			continue
		}
		report.Transcripts++

		filtered := filterTurns(turns, entity, cfg)
		for _, group := range memory.Pack(filtered, cfg.ChunkMinChars, cfg.ChunkMaxChars) {
			if ctx.Err() != nil {
				report.State = StateCancelled
				return report, nil
			}
			r.processChunk(ctx, name, entity, group, &report)
		}
	}

	r.logger.Info("reindex: finished",
		"entity", entity,
		"transcripts", report.Transcripts,
		"saved", report.Saved,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

// processChunk probes for an already-stored chunk by member-ID overlap and
// writes the chunk when absent.
func (r *Reindexer) processChunk(ctx context.Context, name, entity string, group []memory.Turn, report *Report) {
	chunk := memory.BuildReplayChunk(group)

	exists, err := r.store.ContainsAny(ctx, name, chunk.MemberIDs)
	if err != nil {
		r.logger.Warn("reindex: existence probe failed", "entity", entity, "err", err)
		report.Failed++
		return
	}
	if exists {
		report.Skipped++
		return
	}

	vector, err := r.embedder.Embed(ctx, chunk.Text)
	if err != nil || vector == nil {
		r.logger.Warn("reindex: embedding failed", "entity", entity, "err", err)
		report.Failed++
		return
	}

	point := vstore.Point{
		ID:     uuid.New().String(),
		Vector: vector,
		Payload: vstore.Payload{
			Text:         chunk.Text,
			Entity:       entity,
			IsChunk:      true,
			Speakers:     chunk.Speakers,
			MemberIDs:    chunk.MemberIDs,
			MessageCount: chunk.MessageCount,
			Timestamp:    chunk.Timestamp,
		},
	}
	if err := r.store.Upsert(ctx, name, []vstore.Point{point}); err != nil {
		r.logger.Warn("reindex: chunk write failed", "entity", entity, "err", err)
		report.Failed++
		return
	}
	report.Saved++
}

// filterTurns drops system and synthetic turns plus anything excluded by
// the length/type filters, assigning each survivor its replay member ID.
// The index in the member ID is the turn's position in the ORIGINAL
// unfiltered transcript: duplicate timestamps at different positions must
// still produce distinct IDs, so the position is taken before filtering.
func filterTurns(turns []memory.Turn, entity string, cfg settings.Settings) []memory.Turn {
	out := make([]memory.Turn, 0, len(turns))
	for i, t := range turns {
		switch {
		case t.IsSystem || t.IsMemory:
			continue
		case len(t.Text) < cfg.MinTurnLength:
			continue
		case t.IsUser && !cfg.SaveUser:
			continue
		case !t.IsUser && !cfg.SaveCharacter:
			continue
		}

		ts, _ := t.Epoch()
		t.ID = fmt.Sprintf("%s_%d_%d", entity, ts, i)
		out = append(out, t)
	}
	return out
}
