// Package app wires the kioku subsystems together: storage, settings,
// embedding, the vector store, capture sessions, recall, and the optional
// Matrix host connector.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bdobrica/kioku/common/trace"
	"github.com/bdobrica/kioku/internal/kioku/config"
	"github.com/bdobrica/kioku/internal/kioku/embed"
	"github.com/bdobrica/kioku/internal/kioku/host"
	"github.com/bdobrica/kioku/internal/kioku/memory"
	"github.com/bdobrica/kioku/internal/kioku/recall"
	"github.com/bdobrica/kioku/internal/kioku/reindex"
	"github.com/bdobrica/kioku/internal/kioku/settings"
	"github.com/bdobrica/kioku/internal/kioku/storage"
	"github.com/bdobrica/kioku/internal/kioku/transcripts"
	"github.com/bdobrica/kioku/internal/kioku/vstore"
)

// App owns the assembled subsystems for one running instance.
type App struct {
	cfg config.Config

	db       *storage.DB
	Settings *settings.Manager
	Embedder embed.Embedder
	Store    vstore.Store
	Archive  *transcripts.Archive

	engine      *recall.Engine
	interceptor *recall.Interceptor
	reindexer   *reindex.Reindexer

	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entitySession

	connector *host.Connector
}

// entitySession bundles the capture session with the live window it reads.
type entitySession struct {
	window  *host.Window
	session *memory.Session
}

// New assembles an App from the service configuration. The caller owns
// Close.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	manager, err := settings.NewManager(ctx, settings.NewStore(db))
	if err != nil {
		db.Close()
		return nil, err
	}

	embedder, err := embed.New(embed.Config{
		Provider: cfg.Embed.Provider,
		APIKey:   cfg.Embed.APIKey,
		BaseURL:  cfg.Embed.BaseURL,
		Model:    cfg.Embed.Model,
		Dims:     cfg.Embed.Dims,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	store, err := newVectorStore(cfg.Vector)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger := slog.Default()
	archive := transcripts.New(db)
	engine := recall.NewEngine(store, embedder, manager, logger)

	a := &App{
		cfg:         cfg,
		db:          db,
		Settings:    manager,
		Embedder:    embedder,
		Store:       store,
		Archive:     archive,
		engine:      engine,
		interceptor: recall.NewInterceptor(engine, manager, logger),
		reindexer:   reindex.New(store, embedder, archive, manager, logger),
		logger:      logger,
		sessions:    make(map[string]*entitySession),
	}
	return a, nil
}

// newVectorStore builds the configured vector store backend.
func newVectorStore(cfg config.VectorConfig) (vstore.Store, error) {
	switch cfg.Backend {
	case "qdrant":
		return vstore.NewQdrant(vstore.QdrantConfig{
			URL:    cfg.URL,
			APIKey: cfg.APIKey,
		}, nil), nil
	case "chromem", "":
		if cfg.Path != "" {
			return vstore.NewChromemPersistent(cfg.Path)
		}
		return vstore.NewChromem(), nil
	default:
		return nil, fmt.Errorf("app: unknown vector backend %q", cfg.Backend)
	}
}

// Close flushes every active session and releases resources.
func (a *App) Close() {
	a.mu.Lock()
	sessions := make([]*entitySession, 0, len(a.sessions))
	for _, es := range a.sessions {
		sessions = append(sessions, es)
	}
	a.mu.Unlock()

	for _, es := range sessions {
		es.session.Flush(context.Background())
	}
	a.db.Close()
}

// sessionFor returns the capture session for an entity, creating it on
// first use.
func (a *App) sessionFor(entity string) *entitySession {
	a.mu.Lock()
	defer a.mu.Unlock()

	if es, ok := a.sessions[entity]; ok {
		return es
	}

	window := host.NewWindow()
	es := &entitySession{window: window}
	es.session = memory.NewSession(memory.SessionConfig{
		Entity:      entity,
		Settings:    a.Settings,
		Embedder:    a.Embedder,
		Store:       a.Store,
		RequiresKey: embed.RequiresKey(a.cfg.Embed.Provider),
		HasKey:      a.cfg.Embed.APIKey != "",
		Live:        window.Turns,
		OnFlush:     a.onFlush(entity),
		Logger:      a.logger,
	})
	a.sessions[entity] = es
	return es
}

// onFlush forwards failed flushes to the operator notice room, when a
// connector is attached.
func (a *App) onFlush(entity string) func(memory.FlushReport) {
	return func(r memory.FlushReport) {
		if r.Succeeded() || a.connector == nil {
			return
		}
		msg := fmt.Sprintf("kioku: memory flush %s for %s failed (%d turns lost)", r.FlushID, entity, r.Turns)
		if err := a.connector.Notify(msg); err != nil {
			a.logger.Warn("app: notice delivery failed", "err", err)
		}
	}
}

// HandleTurn records an incoming conversation turn: it is archived, added
// to the live window, and offered to the capture buffer.
func (a *App) HandleTurn(ctx context.Context, entity, session string, t memory.Turn) {
	es := a.sessionFor(entity)

	if err := a.Archive.Record(ctx, entity, session, t); err != nil {
		a.logger.Warn("app: transcript record failed", "entity", entity, "err", err)
	}
	es.window.Append(t)
	es.session.AddTurn(t)
}

// PrepareGeneration returns the message sequence to send to the language
// model: the live window with at most one memory block spliced in. Any
// panic inside recall degrades to the unmodified window, so a memory
// failure can never break the conversation itself.
func (a *App) PrepareGeneration(ctx context.Context, entity string) (out []memory.Turn) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	es := a.sessionFor(entity)
	live := es.window.Turns()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("app: recall panicked, continuing without memories", "entity", entity, "panic", r)
			out = live
		}
	}()

	out = a.interceptor.Intercept(ctx, entity, live)
	es.window.Replace(out)
	return out
}

// Search retrieves memories for an ad-hoc query, outside any live
// conversation. No recency filtering applies.
func (a *App) Search(ctx context.Context, entity, query string) []vstore.Scored {
	return a.engine.Retrieve(ctx, query, entity, nil)
}

// Reindex rebuilds an entity's memory collection from the transcript
// archive.
func (a *App) Reindex(ctx context.Context, entity string) (reindex.Report, error) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	return a.reindexer.Reindex(ctx, entity)
}

// Flush synchronously flushes the capture buffer for an entity.
func (a *App) Flush(ctx context.Context, entity string) {
	a.sessionFor(entity).session.Flush(ctx)
}
