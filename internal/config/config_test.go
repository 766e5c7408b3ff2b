package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != currentVersion {
		t.Errorf("Version = %d, want %d", cfg.Version, currentVersion)
	}
	if cfg.Store.Table != "evaluations" {
		t.Errorf("Store.Table = %q, want %q", cfg.Store.Table, "evaluations")
	}
	if cfg.Query.ResultsPageSize != 50 {
		t.Errorf("ResultsPageSize = %d, want 50", cfg.Query.ResultsPageSize)
	}
	if cfg.Query.ConversationPageSize != 20 {
		t.Errorf("ConversationPageSize = %d, want 20", cfg.Query.ConversationPageSize)
	}
	if cfg.Artifacts.Marker != "pt-pt" {
		t.Errorf("Artifacts.Marker = %q, want %q", cfg.Artifacts.Marker, "pt-pt")
	}
	if len(cfg.Store.Candidates) == 0 {
		t.Error("Store.Candidates should not be empty")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	def := DefaultConfig()
	if cfg.Store.Table != def.Store.Table {
		t.Errorf("Store.Table = %q, want %q", cfg.Store.Table, def.Store.Table)
	}
	if cfg.Server.Port != def.Server.Port {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, def.Server.Port)
	}
	if len(cfg.Artifacts.KeyFields) != 2 {
		t.Errorf("Artifacts.KeyFields = %v, want 2 entries", cfg.Artifacts.KeyFields)
	}
}

func TestSaveAndLoad(t *testing.T) {
	root := t.TempDir()

	cfg := DefaultConfig()
	cfg.Store.Path = "/data/results.db"
	cfg.Query.ResultsPageSize = 25
	cfg.Backup.Compression = "zstd"

	if err := cfg.Save(root); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ConfigDirName, "config.json")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Store.Path != "/data/results.db" {
		t.Errorf("Store.Path = %q", loaded.Store.Path)
	}
	if loaded.Query.ResultsPageSize != 25 {
		t.Errorf("ResultsPageSize = %d, want 25", loaded.Query.ResultsPageSize)
	}
	if loaded.Backup.Compression != "zstd" {
		t.Errorf("Backup.Compression = %q, want zstd", loaded.Backup.Compression)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("EVALVIEW_STORE_TABLE", "results")
	t.Setenv("EVALVIEW_SERVER_PORT", "8088")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Store.Table != "results" {
		t.Errorf("Store.Table = %q, want results", cfg.Store.Table)
	}
	if cfg.Server.Port != 8088 {
		t.Errorf("Server.Port = %d, want 8088", cfg.Server.Port)
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("EVALVIEW_ARTIFACTS_MARKER=en-us\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("EVALVIEW_ARTIFACTS_MARKER") })

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Artifacts.Marker != "en-us" {
		t.Errorf("Artifacts.Marker = %q, want en-us", cfg.Artifacts.Marker)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ConfigDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(root); err == nil {
		t.Error("expected error for malformed config.json")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad version", func(c *Config) { c.Version = 9 }, "version"},
		{"injected table", func(c *Config) { c.Store.Table = "evaluations; DROP TABLE x" }, "store.table"},
		{"zero page size", func(c *Config) { c.Query.ResultsPageSize = 0 }, "query.resultsPageSize"},
		{"bad compression", func(c *Config) { c.Backup.Compression = "gzip" }, "backup.compression"},
		{"no key fields", func(c *Config) { c.Artifacts.KeyFields = nil }, "artifacts"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			cfgErr, ok := err.(*ConfigError)
			if !ok {
				t.Fatalf("Validate() error = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.wantErr {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.wantErr)
			}
		})
	}
}

func TestIsIdentifier(t *testing.T) {
	for _, ok := range []string{"evaluations", "results", "_t1"} {
		if !IsIdentifier(ok) {
			t.Errorf("IsIdentifier(%q) = false", ok)
		}
	}
	for _, bad := range []string{"", "1abc", "a-b", "a b", "x;--"} {
		if IsIdentifier(bad) {
			t.Errorf("IsIdentifier(%q) = true", bad)
		}
	}
}
