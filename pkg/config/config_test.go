package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Search.DefaultLimit != 40 || cfg.Search.MaxLimit != 200 {
		t.Errorf("Search limits = %+v", cfg.Search)
	}
	if cfg.Search.SelectivityFactor != 4 {
		t.Errorf("SelectivityFactor = %d, want 4", cfg.Search.SelectivityFactor)
	}
	if cfg.Paths.IndexRoot != filepath.Join("data", "index") {
		t.Errorf("IndexRoot = %q", cfg.Paths.IndexRoot)
	}
	if cfg.Paths.ShardsRoot != filepath.Join("data", "index_sharded") {
		t.Errorf("ShardsRoot = %q", cfg.Paths.ShardsRoot)
	}
	if cfg.Paths.DocmetaBin != filepath.Join("data", "docmeta", "docmeta.bin") {
		t.Errorf("DocmetaBin = %q", cfg.Paths.DocmetaBin)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
paths:
  dataRoot: /srv/gazette
search:
  maxLimit: 50
redis:
  cacheTTL: 90s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Search.MaxLimit != 50 {
		t.Errorf("MaxLimit = %d, want 50", cfg.Search.MaxLimit)
	}
	if cfg.Redis.CacheTTL != 90*time.Second {
		t.Errorf("CacheTTL = %v, want 90s", cfg.Redis.CacheTTL)
	}
	// Derived paths follow the overridden data root.
	if cfg.Paths.DocmetaBin != filepath.Join("/srv/gazette", "docmeta", "docmeta.bin") {
		t.Errorf("DocmetaBin = %q", cfg.Paths.DocmetaBin)
	}
	// Untouched fields keep their defaults.
	if cfg.Search.DefaultLimit != 40 {
		t.Errorf("DefaultLimit = %d, want 40", cfg.Search.DefaultLimit)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GS_SERVER_PORT", "7070")
	t.Setenv("GS_DATA_ROOT", "/mnt/data")
	t.Setenv("GS_SEARCH_SELECTIVITY_FACTOR", "9")
	t.Setenv("GS_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Paths.ShardsRoot != filepath.Join("/mnt/data", "index_sharded") {
		t.Errorf("ShardsRoot = %q", cfg.Paths.ShardsRoot)
	}
	if cfg.Search.SelectivityFactor != 9 {
		t.Errorf("SelectivityFactor = %d, want 9", cfg.Search.SelectivityFactor)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}
