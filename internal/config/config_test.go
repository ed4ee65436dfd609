package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: "file:registry.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Mode != "release" {
		t.Errorf("expected default mode 'release', got '%s'", cfg.Server.Mode)
	}
	if cfg.Storage.Type != "local" {
		t.Errorf("expected default storage 'local', got '%s'", cfg.Storage.Type)
	}
	if cfg.Storage.ArchiveExt != "zip" {
		t.Errorf("expected default archive ext 'zip', got '%s'", cfg.Storage.ArchiveExt)
	}
	if cfg.Reconcile.Schedule != "@every 1h" {
		t.Errorf("expected default schedule '@every 1h', got '%s'", cfg.Reconcile.Schedule)
	}
	if cfg.Database.ConnMaxLifetime != time.Hour {
		t.Errorf("expected conn max lifetime 1h, got %v", cfg.Database.ConnMaxLifetime)
	}
	if cfg.Log.OutputPath != "logs/registry.log" {
		t.Errorf("unexpected log path '%s'", cfg.Log.OutputPath)
	}
}

func TestLoad_ArchiveExtTrimmed(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: "file:registry.db"
storage:
  archive_ext: ".zip"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.ArchiveExt != "zip" {
		t.Errorf("expected 'zip', got '%s'", cfg.Storage.ArchiveExt)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: "file:registry.db"
`)
	t.Setenv("REGISTRY_DATABASE_DSN", "file:override.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.DSN != "file:override.db" {
		t.Errorf("expected env override, got '%s'", cfg.Database.DSN)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing dsn",
			content: `
database:
  driver: sqlite
`,
		},
		{
			name: "unknown driver",
			content: `
database:
  driver: oracle
  dsn: "x"
`,
		},
		{
			name: "minio without bucket",
			content: `
database:
  driver: sqlite
  dsn: "x"
storage:
  type: minio
  minio:
    endpoint: 127.0.0.1:9000
`,
		},
		{
			name: "bad log level",
			content: `
database:
  driver: sqlite
  dsn: "x"
log:
  level: verbose
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
