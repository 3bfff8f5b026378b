package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	ModelPath string        `yaml:"model_path"`
	Capture   CaptureConfig `yaml:"capture"`
	Audio     AudioConfig   `yaml:"audio"`
	Storage   StorageConfig `yaml:"storage"`
	Export    ExportConfig  `yaml:"export"`
	LogLevel  string        `yaml:"log_level"`
}

// CaptureConfig holds capture pipeline settings.
type CaptureConfig struct {
	HalfWindowMs     int64 `yaml:"half_window_ms"`
	ExtractTimeoutMs int64 `yaml:"extract_timeout_ms"`
	EngineLoadWaitMs int64 `yaml:"engine_load_wait_ms"`
}

// AudioConfig holds the PCM format the transcription engine expects.
type AudioConfig struct {
	SampleRate uint32 `yaml:"sample_rate"`
	Channels   uint32 `yaml:"channels"`
}

// StorageConfig holds persistence paths.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	DownloadsDir string `yaml:"downloads_dir"`
}

// ExportConfig holds markdown export settings.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "earmark")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "earmark")
}

// DefaultModelsDir returns the default directory for downloaded models.
func DefaultModelsDir() string {
	return filepath.Join(DefaultDataDir(), "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	data := DefaultDataDir()

	return &Config{
		ModelPath: filepath.Join(DefaultModelsDir(), "ggml-base.en.bin"),
		Capture: CaptureConfig{
			HalfWindowMs:     30000,
			ExtractTimeoutMs: 30000,
			EngineLoadWaitMs: 60000,
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(data, "earmark.db"),
			DownloadsDir: filepath.Join(data, "downloads"),
		},
		Export: ExportConfig{
			Dir: filepath.Join(data, "exports"),
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.ModelPath = expandTilde(cfg.ModelPath)
	cfg.Storage.DatabasePath = expandTilde(cfg.Storage.DatabasePath)
	cfg.Storage.DownloadsDir = expandTilde(cfg.Storage.DownloadsDir)
	cfg.Export.Dir = expandTilde(cfg.Export.Dir)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("model_path must not be empty")
	}

	if c.Capture.HalfWindowMs <= 0 {
		return fmt.Errorf("capture.half_window_ms must be > 0")
	}

	if c.Capture.ExtractTimeoutMs <= 0 {
		return fmt.Errorf("capture.extract_timeout_ms must be > 0")
	}

	if c.Capture.EngineLoadWaitMs <= 0 {
		return fmt.Errorf("capture.engine_load_wait_ms must be > 0")
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}

	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path must not be empty")
	}

	if c.Export.Dir == "" {
		return fmt.Errorf("export.dir must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
