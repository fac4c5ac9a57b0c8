package app

import (
	"context"
	"time"

	"github.com/bdobrica/kioku/internal/kioku/host"
	"github.com/bdobrica/kioku/internal/kioku/memory"
)

// Run attaches the Matrix connector and blocks until ctx is cancelled.
// Buffered turns are flushed on the way out.
func (a *App) Run(ctx context.Context) error {
	rooms := make([]host.Room, 0, len(a.cfg.Matrix.Rooms))
	for _, r := range a.cfg.Matrix.Rooms {
		rooms = append(rooms, host.Room{ID: r.ID, Entity: r.Entity})
	}
	characters := make(map[string]string, len(a.cfg.Matrix.Characters))
	for _, c := range a.cfg.Matrix.Characters {
		characters[c.UserID] = c.Name
	}

	connector, err := host.NewConnector(&host.Config{
		Homeserver:  a.cfg.Matrix.Homeserver,
		UserID:      a.cfg.Matrix.UserID,
		AccessToken: a.cfg.Matrix.AccessToken,
		NoticeRoom:  a.cfg.Matrix.NoticeRoom,
		Rooms:       rooms,
		Characters:  characters,
		DB:          a.db.SQL(),
	})
	if err != nil {
		return err
	}
	a.connector = connector

	if err := connector.Start(ctx, a.handleHostTurn); err != nil {
		return err
	}
	a.logger.Info("kioku daemon started", "rooms", len(rooms))

	<-ctx.Done()

	connector.Stop()
	a.mu.Lock()
	sessions := make([]*entitySession, 0, len(a.sessions))
	for _, es := range a.sessions {
		sessions = append(sessions, es)
	}
	a.mu.Unlock()
	for _, es := range sessions {
		es.session.Flush(context.Background())
	}
	a.logger.Info("kioku daemon stopped")
	return nil
}

// handleHostTurn routes a connector turn into capture, keyed by a daily
// transcript session so long-running rooms reindex in manageable pieces.
// After a user turn the live window is re-spliced with relevant memories,
// so the sequence is ready before the character's reply is generated.
func (a *App) handleHostTurn(ctx context.Context, entity string, t memory.Turn) {
	session := entity + "_" + time.Now().UTC().Format("2006-01-02")
	a.HandleTurn(ctx, entity, session, t)
	if t.IsUser {
		a.PrepareGeneration(ctx, entity)
	}
}
