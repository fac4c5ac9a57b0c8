// Package settings holds the runtime-tunable knobs of the memory pipeline
// and persists them as a flat key/value record in SQLite.
//
// Values are operator-tunable at runtime (via `kioku settings set`); the
// service-level configuration that requires a restart (provider endpoints,
// credentials, Matrix rooms) lives in the config package instead.
package settings

import (
	"fmt"
	"strconv"
	"time"
)

// Settings is the snapshot of all runtime-tunable knobs. Components read a
// fresh snapshot per operation via a Source, so a settings change applies
// to the next operation without restart.
type Settings struct {
	// AutoSave enables the live buffering pipeline. When false, incoming
	// turns are not accumulated and nothing is written to storage.
	AutoSave bool

	// MinTurnLength is the minimum text length for a turn to be buffered.
	MinTurnLength int

	// SaveUser / SaveCharacter toggle buffering per speaker type.
	SaveUser      bool
	SaveCharacter bool

	// ChunkMinChars and ChunkMaxChars are the buffer size thresholds that
	// decide when accumulated turns become a chunk. Size is computed as
	// sum(len(text) + len(speaker label) + 4) over buffered turns.
	ChunkMinChars int
	ChunkMaxChars int

	// FlushTimeout is the long inactivity timeout after which a below-min
	// buffer is flushed anyway.
	FlushTimeout time.Duration

	// Retention is the number of most recent live turns excluded from
	// retrieval (the recency cutoff).
	Retention int

	// RecallLimit and ScoreThreshold shape the similarity query.
	RecallLimit    int
	ScoreThreshold float64

	// PerEntity routes each entity to its own collection. When false, all
	// entities share BaseCollection and retrieval filters on entity name.
	PerEntity bool

	// BaseCollection is the collection name (or per-entity prefix).
	BaseCollection string

	// InjectPosition is how many turns back from the end of the live
	// sequence the synthetic memory turn is spliced in.
	InjectPosition int
}

// Defaults returns the settings used when no persisted value exists.
func Defaults() Settings {
	return Settings{
		AutoSave:       true,
		MinTurnLength:  10,
		SaveUser:       true,
		SaveCharacter:  true,
		ChunkMinChars:  600,
		ChunkMaxChars:  1500,
		FlushTimeout:   2 * time.Minute,
		Retention:      10,
		RecallLimit:    5,
		ScoreThreshold: 0.35,
		PerEntity:      true,
		BaseCollection: "kioku",
		InjectPosition: 2,
	}
}

// Source provides the current settings snapshot to pipeline components.
type Source interface {
	Current() Settings
}

// Static is a Source that always returns the same snapshot. Used in tests
// and one-shot CLI commands.
type Static Settings

// Current returns the wrapped snapshot.
func (s Static) Current() Settings { return Settings(s) }

// ToMap flattens s into the persisted key/value form.
func (s Settings) ToMap() map[string]string {
	return map[string]string{
		"auto_save":       strconv.FormatBool(s.AutoSave),
		"min_turn_length": strconv.Itoa(s.MinTurnLength),
		"save_user":       strconv.FormatBool(s.SaveUser),
		"save_character":  strconv.FormatBool(s.SaveCharacter),
		"chunk_min_chars": strconv.Itoa(s.ChunkMinChars),
		"chunk_max_chars": strconv.Itoa(s.ChunkMaxChars),
		"flush_timeout":   s.FlushTimeout.String(),
		"retention":       strconv.Itoa(s.Retention),
		"recall_limit":    strconv.Itoa(s.RecallLimit),
		"score_threshold": strconv.FormatFloat(s.ScoreThreshold, 'f', -1, 64),
		"per_entity":      strconv.FormatBool(s.PerEntity),
		"base_collection": s.BaseCollection,
		"inject_position": strconv.Itoa(s.InjectPosition),
	}
}

// FromMap builds a Settings by overlaying the persisted key/value record on
// the defaults. Unknown keys are ignored; unparsable values keep their
// default. There is no schema versioning beyond this merge.
func FromMap(values map[string]string) Settings {
	s := Defaults()
	for key, value := range values {
		s.apply(key, value)
	}
	return s
}

// Apply validates and applies a single key/value pair in place. It returns
// an error for unknown keys or unparsable values so that `settings set`
// can reject bad input instead of silently keeping the default.
func (s *Settings) Apply(key, value string) error {
	if !s.apply(key, value) {
		return fmt.Errorf("settings: invalid value %q for key %q", value, key)
	}
	return nil
}

func (s *Settings) apply(key, value string) bool {
	switch key {
	case "auto_save":
		return parseBool(value, &s.AutoSave)
	case "min_turn_length":
		return parseInt(value, &s.MinTurnLength)
	case "save_user":
		return parseBool(value, &s.SaveUser)
	case "save_character":
		return parseBool(value, &s.SaveCharacter)
	case "chunk_min_chars":
		return parseInt(value, &s.ChunkMinChars)
	case "chunk_max_chars":
		return parseInt(value, &s.ChunkMaxChars)
	case "flush_timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return false
		}
		s.FlushTimeout = d
		return true
	case "retention":
		return parseInt(value, &s.Retention)
	case "recall_limit":
		return parseInt(value, &s.RecallLimit)
	case "score_threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false
		}
		s.ScoreThreshold = f
		return true
	case "per_entity":
		return parseBool(value, &s.PerEntity)
	case "base_collection":
		if value == "" {
			return false
		}
		s.BaseCollection = value
		return true
	case "inject_position":
		return parseInt(value, &s.InjectPosition)
	default:
		return false
	}
}

func parseBool(value string, dst *bool) bool {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	*dst = b
	return true
}

func parseInt(value string, dst *int) bool {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return false
	}
	*dst = n
	return true
}
