package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Audio   AudioConfig   `yaml:"audio"`
	Speech  SpeechConfig  `yaml:"speech"`
	Speaker SpeakerConfig `yaml:"speaker"`
	Notes   NotesConfig   `yaml:"notes"`
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// AudioConfig contains capture and segmentation parameters.
type AudioConfig struct {
	SampleRate          int     `yaml:"sample_rate"`           // Hz, 16000 mono PCM-16
	ChunkInterval       float64 `yaml:"chunk_interval"`        // seconds between chunk cuts
	MinChunkDuration    float64 `yaml:"min_chunk_duration"`    // seconds, shorter chunks are discarded
	SilenceRMSThreshold float64 `yaml:"silence_rms_threshold"` // int16 amplitude RMS
	CapturePipe         string  `yaml:"capture_pipe"`          // PCM stream path fed by platform scripts
	FrameSize           int     `yaml:"frame_size"`            // samples per capture frame
}

// SpeechConfig contains speech engine endpoint configuration.
type SpeechConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Timeout    int    `yaml:"timeout"` // seconds
	MaxRetries int    `yaml:"max_retries"`
	Language   string `yaml:"language"`
}

// SpeakerConfig contains speaker attribution configuration.
type SpeakerConfig struct {
	PollInterval float64 `yaml:"poll_interval"` // seconds
	DefaultLabel string  `yaml:"default_label"`
	LabelFile    string  `yaml:"label_file"` // written by the observation scripts
}

// NotesConfig contains the local summarization endpoint configuration.
type NotesConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	Timeout        int    `yaml:"timeout"` // seconds
	MaxPromptChars int    `yaml:"max_prompt_chars"`
}

// StorageConfig contains session persistence configuration.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig contains the loopback HTTP API configuration.
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:          16000,
			ChunkInterval:       5.0,
			MinChunkDuration:    1.0,
			SilenceRMSThreshold: 500.0,
			CapturePipe:         "/tmp/notetaker-capture.pcm",
			FrameSize:           1600, // 100ms at 16kHz
		},
		Speech: SpeechConfig{
			Endpoint:   "http://127.0.0.1:8580/inference",
			Timeout:    120,
			MaxRetries: 2,
			Language:   "en",
		},
		Speaker: SpeakerConfig{
			PollInterval: 0.5,
			DefaultLabel: "Unknown",
			LabelFile:    "/tmp/notetaker-speaker.txt",
		},
		Notes: NotesConfig{
			Endpoint:       "http://127.0.0.1:11434/api/generate",
			Model:          "llama3.1",
			Timeout:        180,
			MaxPromptChars: 24000,
		},
		Storage: StorageConfig{
			Path: "notetaker.sqlite",
		},
		HTTP: HTTPConfig{
			Port:    8765,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file at path, applying it over the
// defaults, and validates the result. An empty path returns the
// validated defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}
	if err := c.Speaker.Validate(); err != nil {
		return fmt.Errorf("speaker config: %w", err)
	}
	if err := c.Notes.Validate(); err != nil {
		return fmt.Errorf("notes config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates audio configuration.
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz, got %d", a.SampleRate)
	}
	if a.ChunkInterval <= 0 {
		return fmt.Errorf("chunk_interval must be positive, got %f", a.ChunkInterval)
	}
	if a.MinChunkDuration <= 0 {
		return fmt.Errorf("min_chunk_duration must be positive, got %f", a.MinChunkDuration)
	}
	if a.MinChunkDuration >= a.ChunkInterval {
		return fmt.Errorf("min_chunk_duration (%f) must be less than chunk_interval (%f)",
			a.MinChunkDuration, a.ChunkInterval)
	}
	if a.SilenceRMSThreshold < 0 {
		return fmt.Errorf("silence_rms_threshold cannot be negative, got %f", a.SilenceRMSThreshold)
	}
	if a.CapturePipe == "" {
		return fmt.Errorf("capture_pipe cannot be empty")
	}
	if a.FrameSize < 160 {
		return fmt.Errorf("frame_size must be at least 160 samples, got %d", a.FrameSize)
	}
	return nil
}

// Validate validates speech engine configuration.
func (s *SpeechConfig) Validate() error {
	if err := validateLoopbackEndpoint(s.Endpoint); err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", s.MaxRetries)
	}
	return nil
}

// Validate validates speaker attribution configuration.
func (s *SpeakerConfig) Validate() error {
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %f", s.PollInterval)
	}
	if s.DefaultLabel == "" {
		return fmt.Errorf("default_label cannot be empty")
	}
	return nil
}

// Validate validates notes configuration.
func (n *NotesConfig) Validate() error {
	if err := validateLoopbackEndpoint(n.Endpoint); err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	if n.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if n.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", n.Timeout)
	}
	if n.MaxPromptChars < 1000 {
		return fmt.Errorf("max_prompt_chars must be at least 1000, got %d", n.MaxPromptChars)
	}
	return nil
}

// Validate validates storage configuration.
func (s *StorageConfig) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}

// Validate validates HTTP configuration. The API never binds beyond
// loopback.
func (h *HTTPConfig) Validate() error {
	if !h.Enabled {
		return nil
	}
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}
	if !isLoopbackHost(h.Address) {
		return fmt.Errorf("address must be a loopback address, got %q", h.Address)
	}
	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetChunkInterval returns the chunk interval as a time.Duration.
func (a *AudioConfig) GetChunkInterval() time.Duration {
	return time.Duration(a.ChunkInterval * float64(time.Second))
}

// GetMinChunkDuration returns the minimum chunk duration as a time.Duration.
func (a *AudioConfig) GetMinChunkDuration() time.Duration {
	return time.Duration(a.MinChunkDuration * float64(time.Second))
}

// GetTimeoutDuration returns the speech engine timeout as a time.Duration.
func (s *SpeechConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetPollInterval returns the speaker poll interval as a time.Duration.
func (s *SpeakerConfig) GetPollInterval() time.Duration {
	return time.Duration(s.PollInterval * float64(time.Second))
}

// GetTimeoutDuration returns the summarization timeout as a time.Duration.
func (n *NotesConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(n.Timeout) * time.Second
}

// validateLoopbackEndpoint enforces the local-only contract: every
// engine endpoint must point at a loopback address.
func validateLoopbackEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("cannot be empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if !isLoopbackHost(u.Hostname()) {
		return fmt.Errorf("host must be a loopback address, got %q", u.Hostname())
	}
	return nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
