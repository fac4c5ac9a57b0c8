package memory

import (
	"strings"

	"github.com/bdobrica/kioku/common/epoch"
)

// Chunk is a finalized memory unit built from a group of turns. Immutable
// once built; its lifecycle ends on a successful storage write, or it is
// discarded on failure and never retried.
type Chunk struct {
	// Text is the rendered transcript: a [YYYY-MM-DD] marker line (when
	// the representative timestamp is valid) followed by one
	// "label: text" line per member turn.
	Text string

	// Speakers is the set of distinct speaker labels, in first-seen order.
	Speakers []string

	// MemberIDs are the member turn identifiers, in order. Never empty.
	MemberIDs []string

	// MessageCount is the number of member turns.
	MessageCount int

	// Timestamp is the representative epoch-milliseconds: assembly time
	// for live-buffer chunks, earliest member timestamp for replay chunks.
	Timestamp int64
}

// BuildChunk merges an ordered, non-empty group of turns into a Chunk with
// the given representative timestamp. A timestamp that cannot be formatted
// as a date drops the marker line but never fails the build.
func BuildChunk(turns []Turn, timestamp int64) Chunk {
	var (
		text     strings.Builder
		speakers []string
		seen     = make(map[string]struct{})
		members  = make([]string, 0, len(turns))
	)

	for _, t := range turns {
		label := t.Label()
		text.WriteString(label)
		text.WriteString(": ")
		text.WriteString(t.Text)
		text.WriteByte('\n')

		if _, ok := seen[label]; !ok {
			seen[label] = struct{}{}
			speakers = append(speakers, label)
		}
		members = append(members, t.ID)
	}

	body := strings.TrimRight(text.String(), " \t\n")
	if date, ok := epoch.Date(timestamp); ok {
		body = "[" + date + "]\n" + body
	}

	return Chunk{
		Text:         body,
		Speakers:     speakers,
		MemberIDs:    members,
		MessageCount: len(turns),
		Timestamp:    timestamp,
	}
}

// BuildReplayChunk builds a Chunk for the reindex path, using the earliest
// resolvable member timestamp as the representative one. Groups where no
// member timestamp resolves produce a chunk without a date marker.
func BuildReplayChunk(turns []Turn) Chunk {
	var earliest int64
	for _, t := range turns {
		ts, ok := t.Epoch()
		if !ok {
			continue
		}
		if earliest == 0 || ts < earliest {
			earliest = ts
		}
	}
	return BuildChunk(turns, earliest)
}
