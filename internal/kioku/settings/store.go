package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bdobrica/kioku/internal/kioku/storage"
)

// ErrNotFound is returned by Store.Get when the key has never been set.
var ErrNotFound = errors.New("settings: key not found")

// Store persists the flat key/value settings record in SQLite.
type Store struct {
	db *storage.DB
}

// NewStore creates a Store backed by the application database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Get returns the persisted value for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.SQL().QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("settings: get %q: %w", key, err)
	}
	return value, nil
}

// Set upserts the key/value pair with the current UTC timestamp.
func (s *Store) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.SQL().ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("settings: set %q: %w", key, err)
	}
	return nil
}

// List returns all persisted key/value pairs. An empty map (not nil) is
// returned when nothing has been set.
func (s *Store) List(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.SQL().QueryContext(ctx,
		`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("settings: list: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("settings: scan row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settings: iterate rows: %w", err)
	}
	return values, nil
}

// Manager caches the merged settings snapshot and keeps it in sync with the
// persisted store. It implements Source for the pipeline components.
type Manager struct {
	store *Store

	mu      sync.RWMutex
	current Settings
}

// NewManager loads the persisted record, merges it over the defaults, and
// returns a Manager serving that snapshot.
func NewManager(ctx context.Context, store *Store) (*Manager, error) {
	values, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	return &Manager{store: store, current: FromMap(values)}, nil
}

// Current returns the active settings snapshot.
func (m *Manager) Current() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Update validates, persists, and applies a single key/value change. The
// new value is visible to the next Current call.
func (m *Manager) Update(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current
	if err := next.Apply(key, value); err != nil {
		return err
	}
	if err := m.store.Set(ctx, key, value); err != nil {
		return err
	}
	m.current = next
	return nil
}
