package host

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/kioku/internal/kioku/memory"
)

// Room maps a Matrix room to the entity whose memories it feeds.
type Room struct {
	ID     string
	Entity string
}

// Config holds Matrix connector configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// NoticeRoom receives operator notifications (flush failures, reindex
	// summaries). Empty disables notices.
	NoticeRoom string
	Rooms      []Room
	// Characters maps additional Matrix user IDs to character names, for
	// rooms where more than one character account speaks. A sender listed
	// here produces character turns under the mapped name instead of user
	// turns, so each participant's words land in their own collection.
	Characters map[string]string
	// DB is an optional SQLite connection used to persist the Matrix sync
	// token (next_batch) across restarts. When nil, an in-memory store is
	// used and room history will be replayed on every restart.
	DB *sql.DB
}

// TurnHandler receives each incoming conversation turn together with the
// entity the room is bound to.
type TurnHandler func(ctx context.Context, entity string, turn memory.Turn)

// Connector wraps the Matrix client and translates room events into turns.
type Connector struct {
	client  *mautrix.Client
	config  *Config
	stopCh  chan struct{}
	handler TurnHandler
	rooms   map[string]string // room ID -> entity
}

// NewConnector creates a Matrix connector.
func NewConnector(config *Config) (*Connector, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("host: create Matrix client: %w", err)
	}

	c := &Connector{
		client: client,
		config: config,
		stopCh: make(chan struct{}),
		rooms:  make(map[string]string, len(config.Rooms)),
	}
	for _, r := range config.Rooms {
		c.rooms[r.ID] = r.Entity
	}

	// Attach a persistent sync store so the connector resumes from the last
	// known position after a restart instead of replaying old room history
	// and re-capturing turns that were already saved.
	if config.DB != nil {
		client.Store = newDBSyncStore(config.DB)
		slog.Info("Matrix sync store: using persistent SQLite store")
	} else {
		slog.Warn("Matrix sync store: no DB configured, using in-memory store (history will replay on restart)")
	}

	return c, nil
}

// Start begins syncing with the Matrix homeserver.
func (c *Connector) Start(ctx context.Context, handler TurnHandler) error {
	c.handler = handler

	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)

	for roomID := range c.rooms {
		if err := c.joinRoom(id.RoomID(roomID)); err != nil {
			return fmt.Errorf("host: join room %s: %w", roomID, err)
		}
	}
	if c.config.NoticeRoom != "" {
		if err := c.joinRoom(id.RoomID(c.config.NoticeRoom)); err != nil {
			return fmt.Errorf("host: join notice room %s: %w", c.config.NoticeRoom, err)
		}
	}

	// Start syncing in background with exponential back-off reconnection.
	// Without retries a transient homeserver error would silently kill the
	// sync goroutine and stop all turn capture.
	go func() {
		const (
			backoffMin = 2 * time.Second
			backoffMax = 5 * time.Minute
		)
		backoff := backoffMin
		for {
			started := time.Now()
			if err := c.client.Sync(); err != nil {
				if time.Since(started) > time.Minute {
					backoff = backoffMin
				}
				select {
				case <-c.stopCh:
					return
				default:
				}
				slog.Error("Matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
				select {
				case <-c.stopCh:
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > backoffMax {
					backoff = backoffMax
				}
				continue
			}
			// Sync returned nil, which only happens on a clean StopSync().
			return
		}
	}()

	return nil
}

// Stop stops the Matrix connector.
func (c *Connector) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// SendMessage sends a text message to a room.
func (c *Connector) SendMessage(roomID, message string) error {
	_, err := c.client.SendText(context.Background(), id.RoomID(roomID), message)
	if err != nil {
		return fmt.Errorf("host: send message: %w", err)
	}
	return nil
}

// Notify sends a notice to the configured notice room. Notices are less
// intrusive than normal messages and most clients render them dimmed.
func (c *Connector) Notify(message string) error {
	if c.config.NoticeRoom == "" {
		return nil
	}
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    message,
	}
	_, err := c.client.SendMessageEvent(context.Background(), id.RoomID(c.config.NoticeRoom), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("host: send notice: %w", err)
	}
	return nil
}

// EntityFor returns the entity bound to a room, if any.
func (c *Connector) EntityFor(roomID string) (string, bool) {
	entity, ok := c.rooms[roomID]
	return entity, ok
}

// handleMessage translates an incoming room message into a conversation turn.
func (c *Connector) handleMessage(ctx context.Context, evt *event.Event) {
	msgContent := evt.Content.AsMessage()
	if msgContent == nil || msgContent.MsgType != event.MsgText {
		return
	}

	entity, ok := c.rooms[evt.RoomID.String()]
	if !ok {
		return
	}

	isUser := false
	speaker := entity
	switch {
	case evt.Sender == id.UserID(c.config.UserID):
		// The bot's own messages speak as the room's entity.
	case c.config.Characters[evt.Sender.String()] != "":
		speaker = c.config.Characters[evt.Sender.String()]
	default:
		isUser = true
		speaker = displayName(evt.Sender)
	}

	turn := memory.Turn{
		ID:      evt.ID.String(),
		Text:    msgContent.Body,
		IsUser:  isUser,
		Speaker: speaker,
		SentAt:  evt.Timestamp,
	}

	if c.handler != nil {
		c.handler(ctx, entity, turn)
	}
}

// displayName derives a human-readable speaker name from a Matrix user ID,
// e.g. "@alice:example.org" becomes "alice".
func displayName(userID id.UserID) string {
	local := userID.Localpart()
	if local == "" {
		return userID.String()
	}
	return local
}

// joinRoom attempts to join a room.
func (c *Connector) joinRoom(roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(context.Background(), roomID)
	if err != nil {
		// M_FORBIDDEN is returned by homeservers when the bot is already a
		// member of the room. Use mautrix's typed error check instead of
		// string matching.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("joinRoom: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
