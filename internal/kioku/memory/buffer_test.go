package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/kioku/internal/kioku/settings"
	"github.com/bdobrica/kioku/internal/kioku/vstore"
)

// fakeStore records upserts and optionally fails them.
type fakeStore struct {
	mu      sync.Mutex
	points  map[string][]vstore.Point // collection -> points
	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{points: make(map[string][]vstore.Point)}
}

func (f *fakeStore) EnsureCollection(context.Context, string, int) error { return nil }
func (f *fakeStore) DeleteCollection(context.Context, string) error      { return nil }
func (f *fakeStore) ListCollections(context.Context) ([]string, error)   { return nil, nil }

func (f *fakeStore) Upsert(_ context.Context, name string, points []vstore.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("store down")
	}
	f.points[name] = append(f.points[name], points...)
	return nil
}

func (f *fakeStore) Search(context.Context, string, vstore.Query) ([]vstore.Scored, error) {
	return nil, nil
}

func (f *fakeStore) ContainsAny(context.Context, string, []string) (bool, error) {
	return false, nil
}

func (f *fakeStore) collections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.points {
		names = append(names, name)
	}
	return names
}

func (f *fakeStore) pointsIn(name string) []vstore.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]vstore.Point(nil), f.points[name]...)
}

// fakeEmbedder returns a fixed vector.
type fakeEmbedder struct {
	dims int
	err  error
}

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	v := make([]float32, f.dims)
	for i := range v {
		v[i] = 0.5
	}
	return v, nil
}

func (f fakeEmbedder) Dims() int { return f.dims }

func bufferSettings() settings.Settings {
	s := settings.Defaults()
	s.MinTurnLength = 3
	s.ChunkMinChars = 50
	s.ChunkMaxChars = 100
	s.FlushTimeout = time.Hour
	return s
}

func newTestSession(t *testing.T, cfg settings.Settings, store *fakeStore, reports chan FlushReport) *Session {
	t.Helper()
	return NewSession(SessionConfig{
		Entity:     "Ami",
		Settings:   settings.Static(cfg),
		Embedder:   fakeEmbedder{dims: 4},
		Store:      store,
		HasKey:     true,
		ShortDelay: 10 * time.Millisecond,
		OnFlush: func(r FlushReport) {
			if reports != nil {
				reports <- r
			}
		},
	})
}

func waitReport(t *testing.T, reports chan FlushReport) FlushReport {
	t.Helper()
	select {
	case r := <-reports:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
		return FlushReport{}
	}
}

func TestSession_RejectsFilteredTurns(t *testing.T) {
	base := bufferSettings()

	noAutoSave := base
	noAutoSave.AutoSave = false

	noUser := base
	noUser.SaveUser = false

	noCharacter := base
	noCharacter.SaveCharacter = false

	tests := []struct {
		name string
		cfg  settings.Settings
		turn Turn
	}{
		{"auto-save off", noAutoSave, Turn{Text: "hello there", IsUser: true}},
		{"system turn", base, Turn{Text: "hello there", IsSystem: true}},
		{"synthetic memory turn", base, Turn{Text: "hello there", IsMemory: true}},
		{"text below minimum", base, Turn{Text: "hi", IsUser: true}},
		{"user turns excluded", noUser, Turn{Text: "hello there", IsUser: true}},
		{"character turns excluded", noCharacter, Turn{Text: "hello there", Speaker: "Ami"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, tt.cfg, newFakeStore(), nil)
			if s.AddTurn(tt.turn) {
				t.Error("AddTurn accepted a turn the filters should reject")
			}
			if s.Buffered() != 0 {
				t.Errorf("Buffered() = %d, want 0", s.Buffered())
			}
		})
	}
}

func TestSession_RejectsWithoutCredentials(t *testing.T) {
	s := NewSession(SessionConfig{
		Entity:      "Ami",
		Settings:    settings.Static(bufferSettings()),
		Embedder:    fakeEmbedder{dims: 4},
		Store:       newFakeStore(),
		RequiresKey: true,
		HasKey:      false,
	})
	if s.AddTurn(Turn{Text: "hello there", IsUser: true}) {
		t.Error("AddTurn accepted a turn without provider credentials")
	}
}

func TestSession_MaxSizeFlushesImmediately(t *testing.T) {
	store := newFakeStore()
	reports := make(chan FlushReport, 1)
	s := newTestSession(t, bufferSettings(), store, reports)

	if !s.AddTurn(Turn{ID: "t1", Text: strings.Repeat("a", 120), IsUser: true}) {
		t.Fatal("AddTurn rejected an eligible turn")
	}

	r := waitReport(t, reports)
	if r.Reason != "max-size" {
		t.Errorf("Reason = %q, want max-size", r.Reason)
	}
	if !r.Succeeded() {
		t.Error("flush did not write any participant")
	}
	if s.Buffered() != 0 {
		t.Errorf("Buffered() = %d after flush, want 0", s.Buffered())
	}

	points := store.pointsIn("kioku_ami")
	if len(points) != 1 {
		t.Fatalf("got %d points in kioku_ami, want 1", len(points))
	}
	p := points[0].Payload
	if !p.IsChunk || p.Entity != "Ami" || p.MessageCount != 1 {
		t.Errorf("unexpected payload: %+v", p)
	}
	if len(p.MemberIDs) != 1 || p.MemberIDs[0] != "t1" {
		t.Errorf("MemberIDs = %v, want [t1]", p.MemberIDs)
	}
	if p.Timestamp == 0 {
		t.Error("chunk timestamp not set")
	}
}

func TestSession_MinSizeFlushesAfterShortDelay(t *testing.T) {
	store := newFakeStore()
	reports := make(chan FlushReport, 1)
	s := newTestSession(t, bufferSettings(), store, reports)

	// Above min (50) but below max (100): size = 60 + 3 + 4.
	s.AddTurn(Turn{ID: "t1", Text: strings.Repeat("a", 60), IsUser: true})
	if s.Buffered() != 1 {
		t.Fatalf("Buffered() = %d, want 1 before the timer fires", s.Buffered())
	}

	r := waitReport(t, reports)
	if r.Reason != "short-timer" {
		t.Errorf("Reason = %q, want short-timer", r.Reason)
	}
	if s.Buffered() != 0 {
		t.Errorf("Buffered() = %d after flush, want 0", s.Buffered())
	}
}

func TestSession_NewTurnSupersedesPendingTimer(t *testing.T) {
	store := newFakeStore()
	reports := make(chan FlushReport, 2)
	s := NewSession(SessionConfig{
		Entity:     "Ami",
		Settings:   settings.Static(bufferSettings()),
		Embedder:   fakeEmbedder{dims: 4},
		Store:      store,
		HasKey:     true,
		ShortDelay: 50 * time.Millisecond,
		OnFlush:    func(r FlushReport) { reports <- r },
	})

	// Two quick turns: the first arms the short timer, the second pushes
	// the buffer past max before it fires. Exactly one flush must happen,
	// carrying both turns.
	s.AddTurn(Turn{ID: "t1", Text: strings.Repeat("a", 60), IsUser: true})
	s.AddTurn(Turn{ID: "t2", Text: strings.Repeat("b", 60), IsUser: true})

	r := waitReport(t, reports)
	if r.Reason != "max-size" {
		t.Errorf("Reason = %q, want max-size", r.Reason)
	}
	if r.Turns != 2 {
		t.Errorf("Turns = %d, want 2", r.Turns)
	}

	select {
	case extra := <-reports:
		t.Errorf("unexpected second flush: %+v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSession_FailedWriteStillClearsBuffer(t *testing.T) {
	store := newFakeStore()
	store.failAll = true
	reports := make(chan FlushReport, 1)
	s := newTestSession(t, bufferSettings(), store, reports)

	s.AddTurn(Turn{ID: "t1", Text: strings.Repeat("a", 120), IsUser: true})

	r := waitReport(t, reports)
	if r.Succeeded() {
		t.Error("flush reported success against a failing store")
	}
	if s.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0 (at-most-once, no retry)", s.Buffered())
	}
}

func TestSession_MultiPartyWritesEveryParticipant(t *testing.T) {
	store := newFakeStore()
	reports := make(chan FlushReport, 1)

	live := []Turn{
		{Text: "morning", IsUser: true},
		{Text: "hello", Speaker: "Ami"},
		{Text: "hey there", Speaker: "Rei"},
	}

	s := NewSession(SessionConfig{
		Entity:     "Ami",
		Settings:   settings.Static(bufferSettings()),
		Embedder:   fakeEmbedder{dims: 4},
		Store:      store,
		HasKey:     true,
		Live:       func() []Turn { return live },
		OnFlush:    func(r FlushReport) { reports <- r },
		ShortDelay: 10 * time.Millisecond,
	})

	s.AddTurn(Turn{ID: "t1", Text: strings.Repeat("a", 120), IsUser: true})

	r := waitReport(t, reports)
	if r.Participants != 2 || r.Written != 2 {
		t.Errorf("Participants = %d, Written = %d, want 2 and 2", r.Participants, r.Written)
	}

	names := store.collections()
	if len(names) != 2 {
		t.Fatalf("got collections %v, want kioku_ami and kioku_rei", names)
	}
	for _, want := range []string{"kioku_ami", "kioku_rei"} {
		if len(store.pointsIn(want)) != 1 {
			t.Errorf("collection %s has %d points, want 1", want, len(store.pointsIn(want)))
		}
	}
}

func TestSession_ManualFlush(t *testing.T) {
	store := newFakeStore()
	reports := make(chan FlushReport, 1)
	s := newTestSession(t, bufferSettings(), store, reports)

	// Below min: only the long timeout (1h here) would flush this.
	s.AddTurn(Turn{ID: "t1", Text: "short but eligible", IsUser: true})
	s.Flush(context.Background())

	r := waitReport(t, reports)
	if r.Reason != "manual" {
		t.Errorf("Reason = %q, want manual", r.Reason)
	}
	if len(store.pointsIn("kioku_ami")) != 1 {
		t.Error("manual flush did not write the buffered chunk")
	}
}

func TestSession_EmbedderFailureDiscardsChunk(t *testing.T) {
	store := newFakeStore()
	reports := make(chan FlushReport, 1)
	s := NewSession(SessionConfig{
		Entity:     "Ami",
		Settings:   settings.Static(bufferSettings()),
		Embedder:   fakeEmbedder{dims: 4, err: errors.New("provider down")},
		Store:      store,
		HasKey:     true,
		OnFlush:    func(r FlushReport) { reports <- r },
		ShortDelay: 10 * time.Millisecond,
	})

	s.AddTurn(Turn{ID: "t1", Text: strings.Repeat("a", 120), IsUser: true})

	r := waitReport(t, reports)
	if r.Succeeded() {
		t.Error("flush reported success despite embedding failure")
	}
	if len(store.collections()) != 0 {
		t.Errorf("store received writes: %v", store.collections())
	}
}
