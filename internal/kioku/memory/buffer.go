package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/kioku/common/trace"
	"github.com/bdobrica/kioku/internal/kioku/embed"
	"github.com/bdobrica/kioku/internal/kioku/settings"
	"github.com/bdobrica/kioku/internal/kioku/vstore"
)

// shortFlushDelay is the fixed timer armed once the buffer reaches the
// minimum chunk size: a brief grace period for the conversation to finish
// its thought before the chunk is cut.
const shortFlushDelay = 5 * time.Second

// participantWindow is how many recent live turns are scanned for
// additional participants in multi-party conversations.
const participantWindow = 50

// FlushReport summarizes one flush attempt. Partial failure across
// participants is reported only via the counts.
type FlushReport struct {
	FlushID      string
	Reason       string
	Turns        int
	Participants int
	Written      int
}

// Succeeded reports whether at least one participant write landed.
func (r FlushReport) Succeeded() bool { return r.Written > 0 }

// SessionConfig wires a Session to its collaborators.
type SessionConfig struct {
	// Entity is the primary conversational entity for this session.
	Entity string

	// Settings provides the current runtime settings snapshot.
	Settings settings.Source

	// Embedder embeds chunk text. Store persists the resulting points.
	Embedder embed.Embedder
	Store    vstore.Store

	// RequiresKey / HasKey form the credentials pre-flight: when the
	// configured provider needs a key and none is set, turns are rejected
	// before any buffering happens.
	RequiresKey bool
	HasKey      bool

	// Live returns a snapshot of the live conversation, used to discover
	// additional participants in multi-party chats. May be nil.
	Live func() []Turn

	// OnFlush, when set, receives the report of every flush attempt.
	OnFlush func(FlushReport)

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// ShortDelay overrides the min-size timer delay (tests only).
	ShortDelay time.Duration
}

// Session is the buffering state machine for one active conversation. It
// accumulates incoming turns and decides when they become a chunk: the
// buffer flushes immediately at the max-size threshold, after a short
// fixed delay at the min-size threshold, and after the configured
// inactivity timeout otherwise.
//
// A flush always clears the buffer, even when the subsequent write fails:
// at-most-once by design, favoring forward progress over durability. The
// flush operates on a snapshot taken while the lock is held, so turns
// arriving during the write land in a fresh buffer and are never lost or
// duplicated.
type Session struct {
	cfg SessionConfig

	mu    sync.Mutex
	turns []Turn
	size  int
	timer *time.Timer
}

// NewSession creates a Session owned by the caller. Nothing is global:
// each active conversation gets its own Session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShortDelay <= 0 {
		cfg.ShortDelay = shortFlushDelay
	}
	return &Session{cfg: cfg}
}

// AddTurn offers a turn to the buffer. It returns false when the turn is
// rejected by the save filters (auto-save off, missing credentials, text
// too short, speaker type excluded, system or synthetic turn).
func (s *Session) AddTurn(t Turn) bool {
	cfg := s.cfg.Settings.Current()

	switch {
	case !cfg.AutoSave:
		return false
	case s.cfg.RequiresKey && !s.cfg.HasKey:
		return false
	case t.IsSystem || t.IsMemory:
		return false
	case len(t.Text) < cfg.MinTurnLength:
		return false
	case t.IsUser && !cfg.SaveUser:
		return false
	case !t.IsUser && !cfg.SaveCharacter:
		return false
	}

	s.mu.Lock()
	s.turns = append(s.turns, t)
	s.size += turnSize(t)
	s.cancelTimerLocked()

	switch {
	case s.size >= cfg.ChunkMaxChars:
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		go s.write(context.Background(), snapshot, cfg, "max-size")
	case s.size >= cfg.ChunkMinChars:
		s.armTimerLocked(s.cfg.ShortDelay, cfg, "short-timer")
		s.mu.Unlock()
	default:
		s.armTimerLocked(cfg.FlushTimeout, cfg, "long-timer")
		s.mu.Unlock()
	}
	return true
}

// Flush synchronously flushes whatever is buffered. Used on shutdown.
func (s *Session) Flush(ctx context.Context) {
	cfg := s.cfg.Settings.Current()

	s.mu.Lock()
	s.cancelTimerLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.write(ctx, snapshot, cfg, "manual")
}

// Buffered returns the current buffered turn count (diagnostics).
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// cancelTimerLocked stops any pending flush timer. Must hold mu. Stopping
// here, synchronously and before any snapshot, is what keeps a timer-fired
// flush from racing the snapshot of a size-triggered one.
func (s *Session) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// armTimerLocked schedules a flush after d. Must hold mu.
func (s *Session) armTimerLocked(d time.Duration, cfg settings.Settings, reason string) {
	s.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		s.timer = nil
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		s.write(context.Background(), snapshot, cfg, reason)
	})
}

// snapshotLocked takes ownership of the buffered turns and resets the
// buffer. Must hold mu.
func (s *Session) snapshotLocked() []Turn {
	snapshot := s.turns
	s.turns = nil
	s.size = 0
	return snapshot
}

// write runs the flush pipeline on a buffer snapshot: build one chunk,
// embed it once, then write it to every participant's collection
// concurrently. The buffer was already cleared at snapshot time, so a
// failure here loses the chunk's data rather than retrying.
func (s *Session) write(ctx context.Context, snapshot []Turn, cfg settings.Settings, reason string) {
	if len(snapshot) == 0 {
		return
	}

	flushID := trace.GenerateID()
	ctx = trace.WithTraceID(ctx, flushID)
	logger := s.cfg.Logger.With("flush_id", flushID, "entity", s.cfg.Entity, "reason", reason)

	chunk := BuildChunk(snapshot, time.Now().UnixMilli())
	participants := s.participants()

	report := FlushReport{
		FlushID:      flushID,
		Reason:       reason,
		Turns:        len(snapshot),
		Participants: len(participants),
	}
	defer func() {
		if s.cfg.OnFlush != nil {
			s.cfg.OnFlush(report)
		}
	}()

	vector, err := s.cfg.Embedder.Embed(ctx, chunk.Text)
	if err != nil {
		logger.Warn("buffer: embedding failed, chunk discarded", "err", err, "turns", len(snapshot))
		return
	}
	if vector == nil {
		logger.Debug("buffer: embedder unavailable, chunk discarded", "turns", len(snapshot))
		return
	}

	var (
		wg      sync.WaitGroup
		written sync.Mutex
	)
	for _, participant := range participants {
		wg.Add(1)
		go func(participant string) {
			defer wg.Done()
			if err := s.writeParticipant(ctx, chunk, vector, participant, cfg); err != nil {
				logger.Warn("buffer: participant write failed", "participant", participant, "err", err)
				return
			}
			written.Lock()
			report.Written++
			written.Unlock()
		}(participant)
	}
	wg.Wait()

	if report.Succeeded() {
		logger.Info("buffer: chunk stored",
			"turns", report.Turns,
			"participants", report.Participants,
			"written", report.Written,
			"chars", len(chunk.Text),
		)
	} else {
		logger.Warn("buffer: all participant writes failed, chunk lost",
			"turns", report.Turns,
			"participants", report.Participants,
		)
	}
}

// writeParticipant ensures the participant's collection and upserts the
// chunk tagged with that participant's name.
func (s *Session) writeParticipant(ctx context.Context, chunk Chunk, vector []float32, participant string, cfg settings.Settings) error {
	name := vstore.CollectionFor(cfg.BaseCollection, participant, cfg.PerEntity)
	if err := s.cfg.Store.EnsureCollection(ctx, name, s.cfg.Embedder.Dims()); err != nil {
		return err
	}
	point := vstore.Point{
		ID:     uuid.New().String(),
		Vector: vector,
		Payload: vstore.Payload{
			Text:         chunk.Text,
			Entity:       participant,
			IsChunk:      true,
			Speakers:     chunk.Speakers,
			MemberIDs:    chunk.MemberIDs,
			MessageCount: chunk.MessageCount,
			Timestamp:    chunk.Timestamp,
		},
	}
	return s.cfg.Store.Upsert(ctx, name, []vstore.Point{point})
}

// participants returns the entities the next chunk is written for: the
// primary entity plus, in multi-party conversations, every distinct
// non-system character speaker seen in the most recent live turns.
func (s *Session) participants() []string {
	out := []string{s.cfg.Entity}
	if s.cfg.Live == nil {
		return out
	}

	live := s.cfg.Live()
	if len(live) > participantWindow {
		live = live[len(live)-participantWindow:]
	}

	seen := map[string]struct{}{s.cfg.Entity: {}}
	for _, t := range live {
		if t.IsUser || t.IsSystem || t.IsMemory || t.Speaker == "" {
			continue
		}
		if _, ok := seen[t.Speaker]; ok {
			continue
		}
		seen[t.Speaker] = struct{}{}
		out = append(out, t.Speaker)
	}
	return out
}
