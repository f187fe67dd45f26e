package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", cfg.Store.Driver)
	}
	if cfg.Remote.SubmitTimeout != 90*time.Second {
		t.Errorf("expected 90s submit timeout, got %v", cfg.Remote.SubmitTimeout)
	}
	if cfg.Sync.Interval != 5*time.Minute || cfg.Sync.SettleDelay != time.Second {
		t.Errorf("unexpected sync timings: %+v", cfg.Sync)
	}
	if cfg.Sync.Retention != 7*24*time.Hour {
		t.Errorf("expected 7d retention, got %v", cfg.Sync.Retention)
	}
	if cfg.FailedSet.Key != "failed_sync_items" {
		t.Errorf("unexpected failed set key %q", cfg.FailedSet.Key)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
remote:
  base_url: http://parish.example
sync:
  interval: 1m
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ROLLCALL_STORE_DRIVER", "mysql")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Remote.BaseURL != "http://parish.example" {
		t.Errorf("base url not read from file: %s", cfg.Remote.BaseURL)
	}
	if cfg.Sync.Interval != time.Minute {
		t.Errorf("interval not read from file: %v", cfg.Sync.Interval)
	}
	if cfg.Store.Driver != "mysql" {
		t.Errorf("env override ignored: %s", cfg.Store.Driver)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}
