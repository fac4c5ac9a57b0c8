// Package epoch normalizes the heterogeneous timestamp representations
// found in chat logs into comparable epoch-milliseconds.
//
// Host applications hand us timestamps as time.Time values, raw numbers,
// numeric strings, or formatted date strings depending on where the turn
// came from (live event, archived transcript, imported file). Everything
// funnels through Normalize so the rest of the code only ever compares
// int64 milliseconds.
package epoch

import (
	"strconv"
	"time"
)

// layouts are the calendar string formats accepted by Normalize, tried in
// order. RFC3339 covers live events; the remaining layouts match the date
// strings written into archived transcripts.
var layouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"January 2, 2006 3:04pm",
	"2006-01-02@15h04m05s",
}

// Normalize converts v into epoch-milliseconds. The second return value is
// false when the input is not a recognizable timestamp.
//
// Numeric strings are parsed as raw epoch values before any calendar
// parsing is attempted, so a string like "1700000000000" is never
// misread as a formatted date.
func Normalize(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case time.Time:
		if t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case float32:
		return int64(t), true
	case string:
		return normalizeString(t)
	default:
		return 0, false
	}
}

func normalizeString(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}

	// Raw epoch values first: "1700000000000" must stay 1700000000000.
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f), true
	}

	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UnixMilli(), true
		}
	}
	return 0, false
}

// Date formats ms as a YYYY-MM-DD marker in UTC. The second return value is
// false when ms is not a usable timestamp (zero or negative).
func Date(ms int64) (string, bool) {
	if ms <= 0 {
		return "", false
	}
	return time.UnixMilli(ms).UTC().Format(time.DateOnly), true
}
