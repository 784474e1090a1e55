package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default configuration failed validation: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	mutate := func(f func(*Config)) *Config {
		cfg := Default()
		f(cfg)
		return cfg
	}

	tests := []struct {
		name        string
		config      *Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid defaults",
			config:      Default(),
			expectError: false,
		},
		{
			name: "wrong sample rate",
			config: mutate(func(c *Config) {
				c.Audio.SampleRate = 44100
			}),
			expectError: true,
			errorMsg:    "sample_rate must be 16000",
		},
		{
			name: "min chunk not below interval",
			config: mutate(func(c *Config) {
				c.Audio.MinChunkDuration = 5.0
			}),
			expectError: true,
			errorMsg:    "min_chunk_duration",
		},
		{
			name: "negative silence threshold",
			config: mutate(func(c *Config) {
				c.Audio.SilenceRMSThreshold = -1
			}),
			expectError: true,
			errorMsg:    "silence_rms_threshold",
		},
		{
			name: "non-loopback speech endpoint",
			config: mutate(func(c *Config) {
				c.Speech.Endpoint = "http://10.0.0.5:8580/inference"
			}),
			expectError: true,
			errorMsg:    "loopback",
		},
		{
			name: "non-loopback notes endpoint",
			config: mutate(func(c *Config) {
				c.Notes.Endpoint = "https://api.example.com/generate"
			}),
			expectError: true,
			errorMsg:    "loopback",
		},
		{
			name: "non-loopback http bind address",
			config: mutate(func(c *Config) {
				c.HTTP.Address = "0.0.0.0"
			}),
			expectError: true,
			errorMsg:    "loopback",
		},
		{
			name: "disabled http skips bind validation",
			config: mutate(func(c *Config) {
				c.HTTP.Enabled = false
				c.HTTP.Address = "0.0.0.0"
			}),
			expectError: false,
		},
		{
			name: "empty notes model",
			config: mutate(func(c *Config) {
				c.Notes.Model = ""
			}),
			expectError: true,
			errorMsg:    "model cannot be empty",
		},
		{
			name: "invalid log level",
			config: mutate(func(c *Config) {
				c.Logging.Level = "verbose"
			}),
			expectError: true,
			errorMsg:    "level must be one of",
		},
		{
			name: "empty default speaker label",
			config: mutate(func(c *Config) {
				c.Speaker.DefaultLabel = ""
			}),
			expectError: true,
			errorMsg:    "default_label",
		},
		{
			name: "empty storage path",
			config: mutate(func(c *Config) {
				c.Storage.Path = ""
			}),
			expectError: true,
			errorMsg:    "path cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected validation error, got nil")
				}
				if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Error %q does not contain %q", err.Error(), tt.errorMsg)
				}
			} else if err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
audio:
  chunk_interval: 3.0
  min_chunk_duration: 0.5
notes:
  model: mistral
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Audio.ChunkInterval != 3.0 {
		t.Errorf("ChunkInterval = %f, want 3.0", cfg.Audio.ChunkInterval)
	}
	if cfg.Notes.Model != "mistral" {
		t.Errorf("Model = %q, want mistral", cfg.Notes.Model)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
	// Untouched fields keep their defaults.
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want default 16000", cfg.Audio.SampleRate)
	}
	if cfg.Speech.Endpoint != "http://127.0.0.1:8580/inference" {
		t.Errorf("Speech endpoint = %q, want default", cfg.Speech.Endpoint)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.HTTP.Port != 8765 {
		t.Errorf("Port = %d, want default 8765", cfg.HTTP.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
speech:
  endpoint: http://transcribe.example.com/inference
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected validation error for non-loopback endpoint from file")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	if got := cfg.Audio.GetChunkInterval(); got != 5*time.Second {
		t.Errorf("GetChunkInterval = %v, want 5s", got)
	}
	if got := cfg.Audio.GetMinChunkDuration(); got != time.Second {
		t.Errorf("GetMinChunkDuration = %v, want 1s", got)
	}
	if got := cfg.Speaker.GetPollInterval(); got != 500*time.Millisecond {
		t.Errorf("GetPollInterval = %v, want 500ms", got)
	}
	if got := cfg.Speech.GetTimeoutDuration(); got != 120*time.Second {
		t.Errorf("Speech GetTimeoutDuration = %v, want 120s", got)
	}
	if got := cfg.Notes.GetTimeoutDuration(); got != 180*time.Second {
		t.Errorf("Notes GetTimeoutDuration = %v, want 180s", got)
	}
}
