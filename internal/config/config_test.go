package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_WithRequiredVars(t *testing.T) {
	os.Setenv("PROBES_CONFIG", "/etc/probeline/probes.yaml")
	os.Setenv("REDIS_URL", "redis://localhost:6379")
	defer func() {
		os.Unsetenv("PROBES_CONFIG")
		os.Unsetenv("REDIS_URL")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.ProbesConfig != "/etc/probeline/probes.yaml" {
		t.Errorf("expected ProbesConfig to be set, got %s", cfg.ProbesConfig)
	}
	if !cfg.StreamEnabled() {
		t.Error("expected stream to be enabled when REDIS_URL is set")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("PROBES_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required vars, got nil")
	}
}

func TestConfig_Defaults(t *testing.T) {
	os.Setenv("PROBES_CONFIG", "probes.yaml")
	os.Unsetenv("REDIS_URL")
	defer os.Unsetenv("PROBES_CONFIG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.AppEnv != "development" {
		t.Errorf("expected default AppEnv 'development', got %s", cfg.AppEnv)
	}
	if cfg.AppPort != 8080 {
		t.Errorf("expected default AppPort 8080, got %d", cfg.AppPort)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("unexpected log defaults %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.WatcherQueueSize != 1024 {
		t.Errorf("expected default WatcherQueueSize 1024, got %d", cfg.WatcherQueueSize)
	}
	if cfg.FlushTimeout != 0 {
		t.Errorf("expected no flush timeout by default, got %s", cfg.FlushTimeout)
	}
	if cfg.StreamClaimIdle != 30*time.Second {
		t.Errorf("expected default StreamClaimIdle 30s, got %s", cfg.StreamClaimIdle)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected default ShutdownTimeout 30s, got %s", cfg.ShutdownTimeout)
	}
	if cfg.Dummy || cfg.StreamEnabled() {
		t.Error("dummy mode and stream must be off by default")
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{AppEnv: "development"}
	if !cfg.IsDevelopment() {
		t.Error("expected IsDevelopment to return true")
	}

	cfg.AppEnv = "production"
	if cfg.IsDevelopment() {
		t.Error("expected IsDevelopment to return false")
	}
	if !cfg.IsProduction() {
		t.Error("expected IsProduction to return true")
	}
}

func TestLoadPluginConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probes.yaml")
	content := `
databases:
  - main:localhost:9200
storageIndex: probes
probes:
  created:
    type: monitor
    hooks: [data:afterCreate]
    interval: 10m
  active_users:
    type: watcher
    index: app
    collection: users
    filter: status == "active"
    collects: "*"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	raw, err := LoadPluginConfig(path)
	if err != nil {
		t.Fatalf("LoadPluginConfig() error = %v", err)
	}

	databases, ok := raw["databases"].([]any)
	if !ok || len(databases) != 1 || databases[0] != "main:localhost:9200" {
		t.Errorf("databases = %#v", raw["databases"])
	}
	probes, ok := raw["probes"].(map[string]any)
	if !ok || len(probes) != 2 {
		t.Fatalf("probes = %#v", raw["probes"])
	}
	watcher := probes["active_users"].(map[string]any)
	if watcher["filter"] != `status == "active"` || watcher["collects"] != "*" {
		t.Errorf("watcher = %#v", watcher)
	}
}

func TestLoadPluginConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadPluginConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("probes: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadPluginConfig(bad); err == nil {
		t.Error("expected error for malformed YAML")
	}
}
