package transcripts

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/bdobrica/kioku/common/epoch"
	"github.com/bdobrica/kioku/internal/kioku/memory"
)

// importedTurn is the JSONL line shape accepted by ImportJSONL. The
// sent_at field takes anything the epoch package can normalize.
type importedTurn struct {
	ID       string `json:"id"`
	Speaker  string `json:"speaker"`
	IsUser   bool   `json:"is_user"`
	IsSystem bool   `json:"is_system"`
	Text     string `json:"text"`
	SentAt   any    `json:"sent_at"`
}

// ImportJSONL reads a JSON-lines transcript and appends it to the archive
// as one session for the entity. Blank lines are skipped; a malformed line
// aborts the import with its line number. Returns the number of imported
// turns.
func (a *Archive) ImportJSONL(ctx context.Context, entity, session string, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	count := 0
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var in importedTurn
		if err := json.Unmarshal(raw, &in); err != nil {
			return count, fmt.Errorf("transcripts: import line %d: %w", line, err)
		}

		ts, _ := epoch.Normalize(in.SentAt)
		id := in.ID
		if id == "" {
			id = fmt.Sprintf("%s_%s_%d", entity, session, line)
		}

		t := memory.Turn{
			ID:       id,
			Text:     in.Text,
			IsUser:   in.IsUser,
			IsSystem: in.IsSystem,
			Speaker:  in.Speaker,
			SentAt:   ts,
		}
		if err := a.Record(ctx, entity, session, t); err != nil {
			return count, err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("transcripts: read import stream: %w", err)
	}
	return count, nil
}
