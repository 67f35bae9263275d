package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Settings.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.Settings.LogLevel)
	}
	if cfg.Settings.WorkflowDir != "workflows" {
		t.Errorf("WorkflowDir = %q, want workflows", cfg.Settings.WorkflowDir)
	}
	if cfg.Settings.Adapter != "" {
		t.Errorf("Adapter = %q, want empty (environment detection)", cfg.Settings.Adapter)
	}
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	doc := `
settings:
  log_level: debug
  adapter: codex
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Settings.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Settings.LogLevel)
	}
	if cfg.Settings.Adapter != "codex" {
		t.Errorf("Adapter = %q, want codex", cfg.Settings.Adapter)
	}
	// Unset keys keep their defaults.
	if cfg.Settings.WorkflowDir != "workflows" {
		t.Errorf("WorkflowDir = %q, want default preserved", cfg.Settings.WorkflowDir)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{{{"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Settings.LogLevel = "warn"
	cfg.Settings.LogFile = "phasewatch.log"
	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Settings.LogLevel != "warn" || loaded.Settings.LogFile != "phasewatch.log" {
		t.Errorf("loaded = %+v", loaded.Settings)
	}
}
