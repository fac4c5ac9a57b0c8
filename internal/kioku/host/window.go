// Package host connects kioku to a live chat surface. It tracks the
// visible conversation window per entity and feeds incoming turns to the
// memory pipeline.
package host

import (
	"sync"

	"github.com/bdobrica/kioku/internal/kioku/memory"
)

// defaultWindowCap bounds how many turns a window retains. Older turns fall
// off the front; they live on in the transcript archive and the vector store.
const defaultWindowCap = 200

// Window holds the live conversation for one entity. All methods are safe
// for concurrent use.
type Window struct {
	mu    sync.Mutex
	turns []memory.Turn
	cap   int
}

// NewWindow creates a window with the default capacity.
func NewWindow() *Window {
	return &Window{cap: defaultWindowCap}
}

// Append adds a turn to the end of the window, evicting the oldest turn
// when the window is full.
func (w *Window) Append(t memory.Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = append(w.turns, t)
	if len(w.turns) > w.cap {
		w.turns = w.turns[len(w.turns)-w.cap:]
	}
}

// Turns returns a copy of the current window contents.
func (w *Window) Turns() []memory.Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]memory.Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Replace swaps the window contents, used after memory injection rewrites
// the message sequence.
func (w *Window) Replace(turns []memory.Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = make([]memory.Turn, len(turns))
	copy(w.turns, turns)
}

// Len reports the number of turns currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}
