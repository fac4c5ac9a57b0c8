package config

import (
	"os"
	"path/filepath"
	"testing"
)

const goodYAML = `
log:
  level: debug
  format: json
database:
  path: /var/lib/kioku/kioku.db
matrix:
  homeserver: https://matrix.example.org
  user_id: "@kioku:example.org"
  access_token: tok
  notice_room: "!ops:example.org"
  rooms:
    - id: "!chat:example.org"
      entity: Ami
  characters:
    - user_id: "@rin:example.org"
      name: Rin
embedding:
  provider: openai
  model: text-embedding-3-small
vector:
  backend: qdrant
  url: http://localhost:6333
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kioku.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, goodYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log config = %+v", cfg.Log)
	}
	if cfg.Matrix.Homeserver != "https://matrix.example.org" {
		t.Errorf("homeserver = %q", cfg.Matrix.Homeserver)
	}
	if len(cfg.Matrix.Rooms) != 1 || cfg.Matrix.Rooms[0].Entity != "Ami" {
		t.Errorf("rooms = %+v", cfg.Matrix.Rooms)
	}
	if len(cfg.Matrix.Characters) != 1 || cfg.Matrix.Characters[0].Name != "Rin" {
		t.Errorf("characters = %+v", cfg.Matrix.Characters)
	}
	if cfg.Embed.Provider != "openai" {
		t.Errorf("embed provider = %q", cfg.Embed.Provider)
	}
	if cfg.Vector.Backend != "qdrant" || cfg.Vector.URL != "http://localhost:6333" {
		t.Errorf("vector config = %+v", cfg.Vector)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Defaults()
	if cfg.Database.Path != want.Database.Path || cfg.Vector.Backend != want.Vector.Backend {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KIOKU_EMBEDDING_API_KEY", "sk-from-env")
	t.Setenv("KIOKU_DATABASE_PATH", "/tmp/env.db")

	cfg, err := Load(writeConfig(t, goodYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Embed.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want env value", cfg.Embed.APIKey)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want env value", cfg.Database.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"valid document", goodYAML, false},
		{"empty document", "", false},
		{"bad log level", "log:\n  level: loud\n", true},
		{"bad provider", "embedding:\n  provider: palm\n", true},
		{"bad backend", "vector:\n  backend: pinecone\n", true},
		{"unknown top-level key", "observability:\n  level: info\n", true},
		{"room missing entity", "matrix:\n  rooms:\n    - id: \"!x:y\"\n", true},
		{"character missing name", "matrix:\n  characters:\n    - user_id: \"@x:y\"\n", true},
		{"not yaml at all", "{{{{", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]byte(tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidFileFails(t *testing.T) {
	if _, err := Load(writeConfig(t, "log:\n  level: loud\n")); err == nil {
		t.Fatal("Load accepted an invalid config")
	}
}
