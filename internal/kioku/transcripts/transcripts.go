// Package transcripts is the local transcript archive: every turn the
// daemon observes is appended here per entity and session, and the bulk
// reindexer replays the archive through the chunking pipeline.
package transcripts

import (
	"context"
	"fmt"

	"github.com/bdobrica/kioku/internal/kioku/memory"
	"github.com/bdobrica/kioku/internal/kioku/storage"
)

// Archive is the SQLite-backed transcript store. It implements
// reindex.TranscriptStore; a session ID doubles as the transcript ref.
type Archive struct {
	db *storage.DB
}

// New creates an Archive backed by the application database.
func New(db *storage.DB) *Archive {
	return &Archive{db: db}
}

// Record appends a turn to the entity's session transcript. Positions are
// assigned monotonically per (entity, session).
func (a *Archive) Record(ctx context.Context, entity, session string, t memory.Turn) error {
	ts, _ := t.Epoch()
	_, err := a.db.SQL().ExecContext(ctx, `
		INSERT INTO transcript_turns
			(entity, session, position, turn_id, speaker, is_user, is_system, text, sent_at)
		VALUES (?, ?,
			COALESCE((SELECT MAX(position) + 1 FROM transcript_turns WHERE entity = ? AND session = ?), 0),
			?, ?, ?, ?, ?, ?)`,
		entity, session,
		entity, session,
		t.ID, t.Speaker, boolToInt(t.IsUser), boolToInt(t.IsSystem), t.Text, ts,
	)
	if err != nil {
		return fmt.Errorf("transcripts: record turn: %w", err)
	}
	return nil
}

// ListTranscripts returns the entity's session IDs, oldest first.
func (a *Archive) ListTranscripts(ctx context.Context, entity string) ([]string, error) {
	rows, err := a.db.SQL().QueryContext(ctx, `
		SELECT session FROM transcript_turns
		WHERE entity = ?
		GROUP BY session
		ORDER BY MIN(sent_at), session`,
		entity,
	)
	if err != nil {
		return nil, fmt.Errorf("transcripts: list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("transcripts: scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcripts: iterate sessions: %w", err)
	}
	return sessions, nil
}

// LoadTranscript returns the ordered turns of one session. A session with
// no rows returns nil (unreadable transcript, skipped by the reindexer).
func (a *Archive) LoadTranscript(ctx context.Context, entity, session string) ([]memory.Turn, error) {
	rows, err := a.db.SQL().QueryContext(ctx, `
		SELECT turn_id, speaker, is_user, is_system, text, sent_at
		FROM transcript_turns
		WHERE entity = ? AND session = ?
		ORDER BY position`,
		entity, session,
	)
	if err != nil {
		return nil, fmt.Errorf("transcripts: load session %q: %w", session, err)
	}
	defer rows.Close()

	var turns []memory.Turn
	for rows.Next() {
		var (
			t                memory.Turn
			isUser, isSystem int
			sentAt           int64
		)
		if err := rows.Scan(&t.ID, &t.Speaker, &isUser, &isSystem, &t.Text, &sentAt); err != nil {
			return nil, fmt.Errorf("transcripts: scan turn: %w", err)
		}
		t.IsUser = isUser != 0
		t.IsSystem = isSystem != 0
		t.SentAt = sentAt
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcripts: iterate turns: %w", err)
	}
	return turns, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
