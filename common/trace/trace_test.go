package trace

import (
	"context"
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()

	if !strings.HasPrefix(a, "t_") {
		t.Errorf("ID %q lacks the t_ prefix", a)
	}
	if a == b {
		t.Errorf("two generated IDs collided: %q", a)
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := FromContext(ctx); got != "" {
		t.Errorf("FromContext(empty) = %q, want empty", got)
	}

	ctx = WithTraceID(ctx, "t_abc123")
	if got := FromContext(ctx); got != "t_abc123" {
		t.Errorf("FromContext() = %q, want t_abc123", got)
	}
}
