package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration.
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Audio      AudioConfig      `yaml:"audio"`
	Recording  RecordingConfig  `yaml:"recording"`
	Submission SubmissionConfig `yaml:"submission"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// BackendConfig contains the query backend endpoint configuration.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"` // seconds; generous to cover model inference
}

// AudioConfig contains the capture format parameters.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`
}

// RecordingConfig contains recording session policy.
type RecordingConfig struct {
	MaxDuration   int `yaml:"max_duration"`   // seconds; capture auto-stops here
	ConfirmWindow int `yaml:"confirm_window"` // seconds; stops earlier than this ask for confirmation
}

// SubmissionConfig contains retry policy and default query hints.
type SubmissionConfig struct {
	TextRetryAttempts int    `yaml:"text_retry_attempts"` // total attempts, not extra retries
	TextRetryDelay    int    `yaml:"text_retry_delay"`    // seconds between attempts
	Language          string `yaml:"language"`
	Location          string `yaml:"location"`  // optional profile default
	CropType          string `yaml:"crop_type"` // optional profile default
}

// MetricsConfig contains the optional Prometheus listener configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Recording.Validate(); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}

	if err := c.Submission.Validate(); err != nil {
		return fmt.Errorf("submission config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates backend configuration.
func (b *BackendConfig) Validate() error {
	if b.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if b.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", b.Timeout)
	}

	return nil
}

// Validate validates audio configuration.
func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}

	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16 for the canonical container, got %d", a.BitDepth)
	}

	return nil
}

// Validate validates recording configuration.
func (r *RecordingConfig) Validate() error {
	if r.MaxDuration < 1 {
		return fmt.Errorf("max_duration must be at least 1 second, got %d", r.MaxDuration)
	}

	if r.ConfirmWindow < 0 {
		return fmt.Errorf("confirm_window cannot be negative, got %d", r.ConfirmWindow)
	}

	if r.ConfirmWindow >= r.MaxDuration {
		return fmt.Errorf("confirm_window (%d) must be smaller than max_duration (%d)",
			r.ConfirmWindow, r.MaxDuration)
	}

	return nil
}

// Validate validates submission configuration.
func (s *SubmissionConfig) Validate() error {
	if s.TextRetryAttempts < 1 {
		return fmt.Errorf("text_retry_attempts must be at least 1, got %d", s.TextRetryAttempts)
	}

	if s.TextRetryDelay < 0 {
		return fmt.Errorf("text_retry_delay cannot be negative, got %d", s.TextRetryDelay)
	}

	if s.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	return nil
}

// Validate validates metrics configuration.
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Address == "" {
		return fmt.Errorf("address cannot be empty when metrics are enabled")
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

// GetTimeoutDuration returns the backend timeout as a time.Duration.
func (b *BackendConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(b.Timeout) * time.Second
}

// GetMaxDuration returns the recording ceiling as a time.Duration.
func (r *RecordingConfig) GetMaxDuration() time.Duration {
	return time.Duration(r.MaxDuration) * time.Second
}

// GetConfirmWindow returns the stop-confirmation window as a time.Duration.
func (r *RecordingConfig) GetConfirmWindow() time.Duration {
	return time.Duration(r.ConfirmWindow) * time.Second
}

// GetTextRetryDelay returns the delay between text attempts as a
// time.Duration.
func (s *SubmissionConfig) GetTextRetryDelay() time.Duration {
	return time.Duration(s.TextRetryDelay) * time.Second
}
