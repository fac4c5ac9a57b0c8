package recall

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/kioku/internal/kioku/memory"
	"github.com/bdobrica/kioku/internal/kioku/settings"
	"github.com/bdobrica/kioku/internal/kioku/vstore"
)

// blockHeader opens the synthetic memory turn injected into the live
// sequence.
const blockHeader = "Memories of past conversations that may be relevant:"

// Interceptor runs immediately before each generation request: it strips
// any previously injected memory turn, retrieves memories for the most
// recent user turn, and splices one synthetic turn back into the sequence.
type Interceptor struct {
	engine   *Engine
	settings settings.Source
	logger   *slog.Logger
}

// NewInterceptor creates an Interceptor over the given engine.
func NewInterceptor(engine *Engine, src settings.Source, logger *slog.Logger) *Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interceptor{engine: engine, settings: src, logger: logger}
}

// Intercept returns the live sequence with at most one synthetic memory
// turn spliced in. Stripping previous memory turns first makes re-entry
// idempotent: running the interceptor twice yields the same sequence
// shape. With no user turn, or no results, the stripped sequence is
// returned unchanged.
func (ic *Interceptor) Intercept(ctx context.Context, entity string, live []memory.Turn) []memory.Turn {
	stripped := memory.StripMemoryTurns(live)

	query, ok := latestUserTurn(stripped)
	if !ok {
		return stripped
	}

	results := ic.engine.Retrieve(ctx, query.Text, entity, stripped)
	if len(results) == 0 {
		return stripped
	}

	block := FormatBlock(results)
	position := splicePosition(len(stripped), ic.settings.Current().InjectPosition)

	ic.logger.Debug("recall: injecting memories",
		"entity", entity,
		"results", len(results),
		"position", position,
	)

	synthetic := memory.Turn{
		ID:       "memory_" + uuid.New().String(),
		Text:     block,
		IsSystem: true,
		IsMemory: true,
		SentAt:   time.Now().UnixMilli(),
	}

	out := make([]memory.Turn, 0, len(stripped)+1)
	out = append(out, stripped[:position]...)
	out = append(out, synthetic)
	out = append(out, stripped[position:]...)
	return out
}

// FormatBlock renders ranked results as a bulleted block. Multi-turn
// chunks are labeled by their aggregated speaker set; legacy single-turn
// entries by their original speaker. Scores render as percentages and
// embedded newlines flatten to spaces.
func FormatBlock(results []vstore.Scored) string {
	var b strings.Builder
	b.WriteString(blockHeader)
	for _, r := range results {
		b.WriteByte('\n')
		b.WriteString(fmt.Sprintf("- %s (%d%%): %s",
			resultLabel(r.Payload),
			int(r.Score*100),
			flatten(r.Payload.Text),
		))
	}
	return b.String()
}

func resultLabel(p vstore.Payload) string {
	if p.IsChunk {
		return strings.Join(p.Speakers, ", ")
	}
	if p.IsUser {
		return "You"
	}
	if p.Speaker != "" {
		return p.Speaker
	}
	return p.Entity
}

func flatten(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// latestUserTurn finds the most recent user-authored turn.
func latestUserTurn(turns []memory.Turn) (memory.Turn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].IsUser && !turns[i].IsSystem {
			return turns[i], true
		}
	}
	return memory.Turn{}, false
}

// splicePosition counts back from the end by the configured offset,
// clamped to the start of the sequence.
func splicePosition(length, offset int) int {
	pos := length - offset
	if pos < 0 {
		return 0
	}
	return pos
}
