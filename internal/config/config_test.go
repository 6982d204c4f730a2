// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadFile_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile(\"\"): %v", err)
	}
	if cfg.Server.Port != 8420 {
		t.Errorf("expected default port 8420, got %d", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("expected default cache TTL 30m, got %s", cfg.Cache.TTL)
	}
}

func TestLoadFile_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  port: 9000
data:
  root: /srv/oceanus
cache:
  ttl: 10m
recovery:
  max_attempts: 5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Data.Root != "/srv/oceanus" {
		t.Errorf("data root = %q, want /srv/oceanus", cfg.Data.Root)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("cache ttl = %s, want 10m", cfg.Cache.TTL)
	}
	if cfg.Recovery.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", cfg.Recovery.MaxAttempts)
	}
	// Untouched values keep their defaults.
	if cfg.Server.RequestsPerMinute != 300 {
		t.Errorf("rate limit = %d, want default 300", cfg.Server.RequestsPerMinute)
	}
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OCEANUS_SERVER_PORT", "9100")
	t.Setenv("OCEANUS_LOGGING_LEVEL", "debug")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadFile_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 0\nlogging:\n  level: verbose\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(err.Error(), "validation") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadFile_MissingFileErrors(t *testing.T) {
	if _, err := LoadFile("/nonexistent/oceanus.yaml"); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate_CrossFieldChecks(t *testing.T) {
	cfg := Default()
	cfg.Cache.JanitorInterval = time.Hour
	cfg.Cache.TTL = time.Minute
	if err := cfg.Validate(); err == nil {
		t.Error("janitor interval above TTL should fail")
	}

	cfg = Default()
	cfg.Integrity.MinGridFileBytes = 1 << 30
	cfg.Integrity.MaxGridFileBytes = 1 << 20
	if err := cfg.Validate(); err == nil {
		t.Error("inverted grid size band should fail")
	}
}

func TestEnvTransform(t *testing.T) {
	cases := map[string]string{
		"OCEANUS_SERVER_PORT":        "server.port",
		"OCEANUS_CACHE_BUDGET_BYTES": "cache.budget_bytes",
		"OCEANUS_DATA_CATALOG_PATH":  "data.catalog_path",
		"OCEANUS_LOGGING_LEVEL":      "logging.level",
	}
	for in, want := range cases {
		if got := envTransform(in); got != want {
			t.Errorf("envTransform(%q) = %q, want %q", in, got, want)
		}
	}
}
