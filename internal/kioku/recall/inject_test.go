package recall

import (
	"context"
	"strings"
	"testing"

	"github.com/bdobrica/kioku/internal/kioku/memory"
	"github.com/bdobrica/kioku/internal/kioku/settings"
	"github.com/bdobrica/kioku/internal/kioku/vstore"
)

func TestFormatBlock(t *testing.T) {
	results := []vstore.Scored{
		{
			Score: 0.91,
			Payload: vstore.Payload{
				IsChunk:  true,
				Speakers: []string{"You", "Ami"},
				Text:     "You: we talked\nAmi: about gardens",
			},
		},
		{
			Score:   0.42,
			Payload: vstore.Payload{IsUser: true, Text: "I like trains"},
		},
		{
			Score:   0.40,
			Payload: vstore.Payload{Speaker: "Rei", Text: "old remark"},
		},
	}

	got := FormatBlock(results)
	want := "Memories of past conversations that may be relevant:\n" +
		"- You, Ami (91%): You: we talked Ami: about gardens\n" +
		"- You (42%): I like trains\n" +
		"- Rei (40%): old remark"
	if got != want {
		t.Errorf("FormatBlock() =\n%q\nwant\n%q", got, want)
	}
}

func TestFormatBlock_FallsBackToEntityLabel(t *testing.T) {
	got := FormatBlock([]vstore.Scored{
		{Score: 0.5, Payload: vstore.Payload{Entity: "Ami", Text: "legacy point"}},
	})
	if !strings.Contains(got, "- Ami (50%): legacy point") {
		t.Errorf("FormatBlock() = %q", got)
	}
}

func interceptorSettings() settings.Settings {
	s := settings.Defaults()
	s.InjectPosition = 2
	s.Retention = 5
	return s
}

func newTestInterceptor(store *recordingStore) *Interceptor {
	src := settings.Static(interceptorSettings())
	engine := NewEngine(store, vectorEmbedder{vec: []float32{1, 0}}, src, nil)
	return NewInterceptor(engine, src, nil)
}

func conversation(n int) []memory.Turn {
	turns := make([]memory.Turn, n)
	for i := range turns {
		turns[i] = memory.Turn{
			ID:     string(rune('a' + i)),
			Text:   "turn",
			SentAt: int64(1000 * (i + 1)),
			IsUser: i%2 == 0,
		}
	}
	return turns
}

func TestInterceptor_InjectsOneSyntheticTurn(t *testing.T) {
	store := &recordingStore{
		results: []vstore.Scored{{Score: 0.8, Payload: vstore.Payload{IsChunk: true, Speakers: []string{"You"}, Text: "old chat"}}},
	}
	ic := newTestInterceptor(store)

	live := conversation(6)
	out := ic.Intercept(context.Background(), "Ami", live)

	if len(out) != 7 {
		t.Fatalf("got %d turns, want 7", len(out))
	}

	// Position counts back from the end: 6 - 2 = index 4.
	injected := out[4]
	if !injected.IsMemory || !injected.IsSystem {
		t.Errorf("injected turn flags: %+v", injected)
	}
	if !strings.HasPrefix(injected.ID, "memory_") {
		t.Errorf("injected ID = %q", injected.ID)
	}
	if !strings.HasPrefix(injected.Text, "Memories of past conversations") {
		t.Errorf("injected text = %q", injected.Text)
	}

	// Surrounding turns keep their order.
	for i, want := range []string{"a", "b", "c", "d"} {
		if out[i].ID != want {
			t.Errorf("out[%d] = %q, want %q", i, out[i].ID, want)
		}
	}
	if out[5].ID != "e" || out[6].ID != "f" {
		t.Errorf("tail = %q, %q, want e, f", out[5].ID, out[6].ID)
	}
}

func TestInterceptor_Idempotent(t *testing.T) {
	store := &recordingStore{
		results: []vstore.Scored{{Score: 0.8, Payload: vstore.Payload{IsChunk: true, Text: "old chat"}}},
	}
	ic := newTestInterceptor(store)

	live := conversation(6)
	once := ic.Intercept(context.Background(), "Ami", live)
	twice := ic.Intercept(context.Background(), "Ami", once)

	if len(twice) != len(once) {
		t.Fatalf("second pass changed length: %d vs %d", len(twice), len(once))
	}
	memoryCount := 0
	for _, turn := range twice {
		if turn.IsMemory {
			memoryCount++
		}
	}
	if memoryCount != 1 {
		t.Errorf("found %d memory turns after two passes, want 1", memoryCount)
	}
}

func TestInterceptor_NoUserTurn(t *testing.T) {
	store := &recordingStore{
		results: []vstore.Scored{{Score: 0.8, Payload: vstore.Payload{Text: "hit"}}},
	}
	ic := newTestInterceptor(store)

	live := []memory.Turn{
		{ID: "s1", Text: "system prelude", IsSystem: true},
		{ID: "c1", Text: "hello", Speaker: "Ami"},
	}
	out := ic.Intercept(context.Background(), "Ami", live)

	if len(out) != 2 {
		t.Errorf("got %d turns, want unmodified 2", len(out))
	}
}

func TestInterceptor_NoResults(t *testing.T) {
	ic := newTestInterceptor(&recordingStore{})

	live := conversation(4)
	out := ic.Intercept(context.Background(), "Ami", live)
	if len(out) != 4 {
		t.Errorf("got %d turns, want unmodified 4", len(out))
	}
}

func TestInterceptor_PositionClampedToStart(t *testing.T) {
	store := &recordingStore{
		results: []vstore.Scored{{Score: 0.8, Payload: vstore.Payload{Text: "hit"}}},
	}
	ic := newTestInterceptor(store)

	live := conversation(1) // single user turn, position 1-2 clamps to 0
	out := ic.Intercept(context.Background(), "Ami", live)

	if len(out) != 2 {
		t.Fatalf("got %d turns, want 2", len(out))
	}
	if !out[0].IsMemory {
		t.Errorf("expected memory turn at start, got %+v", out[0])
	}
}
