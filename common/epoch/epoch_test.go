package epoch

import (
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	ref := time.Date(2026, 2, 24, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		input  any
		want   int64
		wantOK bool
	}{
		{
			name:   "time value",
			input:  ref,
			want:   ref.UnixMilli(),
			wantOK: true,
		},
		{
			name:   "zero time",
			input:  time.Time{},
			wantOK: false,
		},
		{
			name:   "int64 epoch",
			input:  int64(1700000000000),
			want:   1700000000000,
			wantOK: true,
		},
		{
			name:   "float epoch",
			input:  float64(1700000000000),
			want:   1700000000000,
			wantOK: true,
		},
		{
			name:   "numeric string stays numeric",
			input:  "1700000000000",
			want:   1700000000000,
			wantOK: true,
		},
		{
			name:   "rfc3339 string",
			input:  "2026-02-24T10:30:00Z",
			want:   ref.UnixMilli(),
			wantOK: true,
		},
		{
			name:   "sql datetime string",
			input:  "2026-02-24 10:30:00",
			want:   ref.UnixMilli(),
			wantOK: true,
		},
		{
			name:   "chat log date string",
			input:  "February 24, 2026 10:30am",
			want:   ref.UnixMilli(),
			wantOK: true,
		},
		{
			name:   "garbage string",
			input:  "not a date",
			wantOK: false,
		},
		{
			name:   "empty string",
			input:  "",
			wantOK: false,
		},
		{
			name:   "nil",
			input:  nil,
			wantOK: false,
		},
		{
			name:   "unsupported type",
			input:  struct{}{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("Normalize(%v) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Normalize(%v) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestDate(t *testing.T) {
	ms := time.Date(2026, 2, 24, 23, 59, 0, 0, time.UTC).UnixMilli()
	got, ok := Date(ms)
	if !ok || got != "2026-02-24" {
		t.Errorf("Date(%d) = %q, %v; want \"2026-02-24\", true", ms, got, ok)
	}

	if _, ok := Date(0); ok {
		t.Error("Date(0) should not produce a marker")
	}
	if _, ok := Date(-5); ok {
		t.Error("Date(-5) should not produce a marker")
	}
}
