// Package memory implements the core of the long-term conversation memory
// pipeline: the turn and chunk data model, the chunk builder, the live
// buffering state machine, and the greedy packer used by bulk reindexing.
package memory

import "github.com/bdobrica/kioku/common/epoch"

// Turn is one message exchanged in a conversation. Turns are produced by
// the host application and read-only to this package, except for the
// IsMemory marker set on synthetic turns the interceptor injects.
type Turn struct {
	// ID is the host's stable identifier for the turn.
	ID string

	// Text is the message body.
	Text string

	// IsUser marks turns authored by the human participant.
	IsUser bool

	// Speaker is the character name for non-user turns.
	Speaker string

	// SentAt is the origin timestamp in whatever representation the host
	// produced (time.Time, epoch number, or string). Normalize via Epoch.
	SentAt any

	// IsSystem marks host-internal turns that never enter memory.
	IsSystem bool

	// IsMemory marks synthetic memory turns injected by the interceptor,
	// so they can be recognized and stripped before re-processing.
	IsMemory bool
}

// Label returns the speaker label used in rendered chunk text: "You" for
// user turns, otherwise the character name.
func (t Turn) Label() string {
	if t.IsUser {
		return "You"
	}
	return t.Speaker
}

// Epoch normalizes the turn's origin timestamp to epoch-milliseconds.
func (t Turn) Epoch() (int64, bool) {
	return epoch.Normalize(t.SentAt)
}

// turnSize is the buffered-size contribution of one turn: text plus
// speaker label plus framing overhead.
func turnSize(t Turn) int {
	return len(t.Text) + len(t.Label()) + 4
}

// StripMemoryTurns returns turns with synthetic memory turns removed. The
// input slice is not modified.
func StripMemoryTurns(turns []Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.IsMemory {
			continue
		}
		out = append(out, t)
	}
	return out
}
