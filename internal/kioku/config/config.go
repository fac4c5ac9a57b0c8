// Package config loads the service-level configuration file. These are the
// settings that require a restart (endpoints, credentials, rooms); the
// runtime-tunable knobs live in the settings package instead.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/bdobrica/kioku/common/environment"
)

// Config is the decoded service configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Matrix   MatrixConfig   `yaml:"matrix"`
	Embed    EmbedConfig    `yaml:"embedding"`
	Vector   VectorConfig   `yaml:"vector"`
}

// LogConfig selects the slog level and handler format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig locates the SQLite database holding settings and the
// transcript archive.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MatrixConfig connects the daemon to the host chat application.
type MatrixConfig struct {
	Homeserver  string            `yaml:"homeserver"`
	UserID      string            `yaml:"user_id"`
	AccessToken string            `yaml:"access_token"`
	NoticeRoom  string            `yaml:"notice_room"`
	Rooms       []RoomConfig      `yaml:"rooms"`
	Characters  []CharacterConfig `yaml:"characters"`
}

// RoomConfig binds a watched room to its conversational entity.
type RoomConfig struct {
	ID     string `yaml:"id"`
	Entity string `yaml:"entity"`
}

// CharacterConfig maps an extra Matrix account to a character name, for
// multi-character rooms where senders besides the bot speak as characters
// rather than as users.
type CharacterConfig struct {
	UserID string `yaml:"user_id"`
	Name   string `yaml:"name"`
}

// EmbedConfig selects and configures the embedding provider.
type EmbedConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Dims     int    `yaml:"dims"`
}

// VectorConfig selects the vector store backend.
type VectorConfig struct {
	// Backend is "qdrant" or "chromem".
	Backend string `yaml:"backend"`
	// URL and APIKey apply to the qdrant backend.
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	// Path is the chromem persistence directory; empty means in-memory.
	Path string `yaml:"path"`
}

// schema validates the decoded YAML document before it is bound to the
// Config struct, so typos in enum-like fields fail loudly at startup.
const schema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"log": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"level":  {"enum": ["debug", "info", "warn", "error"]},
				"format": {"enum": ["text", "json"]}
			}
		},
		"database": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"path": {"type": "string"}
			}
		},
		"matrix": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"homeserver":   {"type": "string"},
				"user_id":      {"type": "string"},
				"access_token": {"type": "string"},
				"notice_room":  {"type": "string"},
				"rooms": {
					"type": "array",
					"items": {
						"type": "object",
						"additionalProperties": false,
						"required": ["id", "entity"],
						"properties": {
							"id":     {"type": "string"},
							"entity": {"type": "string"}
						}
					}
				},
				"characters": {
					"type": "array",
					"items": {
						"type": "object",
						"additionalProperties": false,
						"required": ["user_id", "name"],
						"properties": {
							"user_id": {"type": "string"},
							"name":    {"type": "string"}
						}
					}
				}
			}
		},
		"embedding": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"provider": {"enum": ["openai", "mistral", "together", "ollama", "cohere", "noop"]},
				"api_key":  {"type": "string"},
				"base_url": {"type": "string"},
				"model":    {"type": "string"},
				"dims":     {"type": "integer", "minimum": 0}
			}
		},
		"vector": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"backend": {"enum": ["qdrant", "chromem"]},
				"url":     {"type": "string"},
				"api_key": {"type": "string"},
				"path":    {"type": "string"}
			}
		}
	}
}`

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Path: "./kioku.db"},
		Embed:    EmbedConfig{Provider: "noop"},
		Vector:   VectorConfig{Backend: "chromem"},
	}
}

// Load reads, validates, and decodes the configuration file at path, then
// applies environment overrides. A missing file yields the defaults (with
// env overrides still applied).
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		applyEnv(&cfg)
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := Validate(data); err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Validate checks a raw YAML document against the embedded JSON schema.
func Validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse yaml: %w", err)
	}
	if doc == nil {
		// Empty file: everything falls back to defaults.
		return nil
	}

	// Round-trip through JSON so the schema library sees the value shapes
	// it expects (json.Unmarshal semantics, not yaml ones).
	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config: convert to json: %w", err)
	}
	var v any
	if err := json.NewDecoder(bytes.NewReader(jsonDoc)).Decode(&v); err != nil {
		return fmt.Errorf("config: decode json: %w", err)
	}

	compiled, err := jsonschema.CompileString("config.schema.json", schema)
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	return nil
}

// applyEnv overlays secrets and paths from the environment, so credentials
// can stay out of the config file.
func applyEnv(cfg *Config) {
	cfg.Database.Path = environment.StringOr("KIOKU_DATABASE_PATH", cfg.Database.Path)
	cfg.Matrix.Homeserver = environment.StringOr("KIOKU_MATRIX_HOMESERVER", cfg.Matrix.Homeserver)
	cfg.Matrix.UserID = environment.StringOr("KIOKU_MATRIX_USER_ID", cfg.Matrix.UserID)
	cfg.Matrix.AccessToken = environment.StringOr("KIOKU_MATRIX_ACCESS_TOKEN", cfg.Matrix.AccessToken)
	cfg.Embed.APIKey = environment.StringOr("KIOKU_EMBEDDING_API_KEY", cfg.Embed.APIKey)
	cfg.Vector.URL = environment.StringOr("KIOKU_VECTOR_URL", cfg.Vector.URL)
	cfg.Vector.APIKey = environment.StringOr("KIOKU_VECTOR_API_KEY", cfg.Vector.APIKey)
}
