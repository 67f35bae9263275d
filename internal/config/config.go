// Package config loads the project configuration from the state directory's
// config.yaml, merged over built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configFileName = "config.yaml"

// Config is the phasewatch project configuration.
type Config struct {
	Version  string   `yaml:"version"`
	Settings Settings `yaml:"settings"`
}

// Settings contains global behavior knobs.
type Settings struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file,omitempty"`
	// Adapter pins the event adapter instead of environment detection.
	Adapter string `yaml:"adapter,omitempty"`
	// WorkflowDir is where workflow YAML definitions live, relative to the
	// project root when not absolute.
	WorkflowDir string `yaml:"workflow_dir,omitempty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Settings: Settings{
			LogLevel:    "info",
			WorkflowDir: "workflows",
		},
	}
}

// Load reads config.yaml from the state directory, returning defaults when
// the file does not exist.
func Load(stateDir string) (*Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(stateDir, configFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if loaded.Version != "" {
		cfg.Version = loaded.Version
	}
	if loaded.Settings.LogLevel != "" {
		cfg.Settings.LogLevel = loaded.Settings.LogLevel
	}
	if loaded.Settings.LogFile != "" {
		cfg.Settings.LogFile = loaded.Settings.LogFile
	}
	if loaded.Settings.Adapter != "" {
		cfg.Settings.Adapter = loaded.Settings.Adapter
	}
	if loaded.Settings.WorkflowDir != "" {
		cfg.Settings.WorkflowDir = loaded.Settings.WorkflowDir
	}
	return cfg, nil
}

// Save writes the configuration to the state directory.
func Save(stateDir string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}
	path := filepath.Join(stateDir, configFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
