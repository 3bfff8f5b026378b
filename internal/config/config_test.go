package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ModelPath == "" {
		t.Error("ModelPath should not be empty")
	}
	if cfg.Capture.HalfWindowMs != 30000 {
		t.Errorf("Capture.HalfWindowMs = %d, want 30000", cfg.Capture.HalfWindowMs)
	}
	if cfg.Capture.ExtractTimeoutMs != 30000 {
		t.Errorf("Capture.ExtractTimeoutMs = %d, want 30000", cfg.Capture.ExtractTimeoutMs)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("Audio.SampleRate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 {
		t.Errorf("Audio.Channels = %d, want 1", cfg.Audio.Channels)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("Storage.DatabasePath should not be empty")
	}
	if cfg.Export.Dir == "" {
		t.Error("Export.Dir should not be empty")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() should validate, got: %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
model_path: /tmp/test-model.bin
capture:
  half_window_ms: 15000
  extract_timeout_ms: 5000
  engine_load_wait_ms: 10000
audio:
  sample_rate: 8000
  channels: 2
storage:
  database_path: /tmp/earmark-test.db
  downloads_dir: /tmp/earmark-downloads
export:
  dir: /tmp/earmark-exports
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ModelPath != "/tmp/test-model.bin" {
		t.Errorf("ModelPath = %q, want %q", cfg.ModelPath, "/tmp/test-model.bin")
	}
	if cfg.Capture.HalfWindowMs != 15000 {
		t.Errorf("Capture.HalfWindowMs = %d, want 15000", cfg.Capture.HalfWindowMs)
	}
	if cfg.Audio.SampleRate != 8000 {
		t.Errorf("Audio.SampleRate = %d, want 8000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 2 {
		t.Errorf("Audio.Channels = %d, want 2", cfg.Audio.Channels)
	}
	if cfg.Storage.DatabasePath != "/tmp/earmark-test.db" {
		t.Errorf("Storage.DatabasePath = %q, want %q", cfg.Storage.DatabasePath, "/tmp/earmark-test.db")
	}
	if cfg.Export.Dir != "/tmp/earmark-exports" {
		t.Errorf("Export.Dir = %q, want %q", cfg.Export.Dir, "/tmp/earmark-exports")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	yamlContent := `
capture:
  half_window_ms: 10000
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Capture.HalfWindowMs != 10000 {
		t.Errorf("Capture.HalfWindowMs = %d, want 10000", cfg.Capture.HalfWindowMs)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("Audio.SampleRate = %d, want default 16000", cfg.Audio.SampleRate)
	}
	if cfg.ModelPath == "" {
		t.Error("ModelPath should keep its default")
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
model_path: ~/models/test.bin
export:
  dir: ~/exports
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := filepath.Join(home, "models", "test.bin")
	if cfg.ModelPath != want {
		t.Errorf("ModelPath = %q, want %q", cfg.ModelPath, want)
	}
	if !strings.HasPrefix(cfg.Export.Dir, home) {
		t.Errorf("Export.Dir = %q, want prefix %q", cfg.Export.Dir, home)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Load with missing file should return error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty model path", func(c *Config) { c.ModelPath = "" }},
		{"zero half window", func(c *Config) { c.Capture.HalfWindowMs = 0 }},
		{"negative half window", func(c *Config) { c.Capture.HalfWindowMs = -1 }},
		{"zero extract timeout", func(c *Config) { c.Capture.ExtractTimeoutMs = 0 }},
		{"zero engine load wait", func(c *Config) { c.Capture.EngineLoadWaitMs = 0 }},
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }},
		{"zero channels", func(c *Config) { c.Audio.Channels = 0 }},
		{"empty database path", func(c *Config) { c.Storage.DatabasePath = "" }},
		{"empty export dir", func(c *Config) { c.Export.Dir = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() should fail for %s", tt.name)
			}
		})
	}
}
