// Package config loads the station's YAML configuration. Zero-valued
// fields are filled with documented defaults; validation runs once at load
// time so the rest of the program can trust the values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete station configuration.
type Config struct {
	Station StationConfig `yaml:"station"`
	Audio   AudioConfig   `yaml:"audio"`
	Relay   RelayConfig   `yaml:"relay"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StationConfig contains hub-level settings.
type StationConfig struct {
	// Hostname is advertised when creating a pair room. Defaults to
	// os.Hostname.
	Hostname string `yaml:"hostname"`
	// TickIntervalMs drives the inactivity sweep. Default 1000.
	TickIntervalMs int `yaml:"tick_interval_ms"`
	// AutoEnableDictation turns the dictation pipeline on at startup.
	AutoEnableDictation bool `yaml:"auto_enable_dictation"`
}

// AudioConfig contains the monitor's signal-processing parameters. Zero
// values fall through to the monitor's own defaults (16kHz, 20ms frames,
// 500ms silence, 10s inactivity, 0.0008/0.0005 RMS thresholds).
type AudioConfig struct {
	SampleRate          uint32  `yaml:"sample_rate"`
	FrameDurationMs     uint32  `yaml:"frame_duration_ms"`
	SilenceDurationMs   uint32  `yaml:"silence_duration_ms"`
	InactivityTimeoutMs uint64  `yaml:"inactivity_timeout_ms"`
	SpeechOnsetRMS      float64 `yaml:"speech_onset_rms"`
	SpeechOffsetRMS     float64 `yaml:"speech_offset_rms"`
}

// RelayConfig points the station at its relay hub.
type RelayConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	// Code joins an existing pair room; when empty the station creates a
	// room and logs the code for clients to enter.
	Code string `yaml:"code"`
}

// IngestConfig configures the UDP audio listener.
type IngestConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	Codec       string `yaml:"codec"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// Load reads, defaults and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Station.Hostname == "" {
		if hn, err := os.Hostname(); err == nil {
			c.Station.Hostname = hn
		} else {
			c.Station.Hostname = "station"
		}
	}
	if c.Station.TickIntervalMs == 0 {
		c.Station.TickIntervalMs = 1000
	}
	if c.Ingest.BindAddress == "" {
		c.Ingest.BindAddress = "127.0.0.1"
	}
	if c.Ingest.Port == 0 {
		c.Ingest.Port = 9550
	}
	if c.Ingest.Codec == "" {
		c.Ingest.Codec = "pcm16"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = "127.0.0.1"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9551
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Station.validate(); err != nil {
		return fmt.Errorf("station config: %w", err)
	}
	if err := c.Audio.validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Relay.validate(); err != nil {
		return fmt.Errorf("relay config: %w", err)
	}
	if err := c.Ingest.validate(); err != nil {
		return fmt.Errorf("ingest config: %w", err)
	}
	if err := c.Metrics.validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	return nil
}

func (s *StationConfig) validate() error {
	if s.TickIntervalMs < 10 {
		return fmt.Errorf("tick_interval_ms must be at least 10, got %d", s.TickIntervalMs)
	}
	return nil
}

func (a *AudioConfig) validate() error {
	if a.FrameDurationMs > 1000 {
		return fmt.Errorf("frame_duration_ms must be at most 1000, got %d", a.FrameDurationMs)
	}
	if a.SpeechOnsetRMS < 0 || a.SpeechOnsetRMS > 1 {
		return fmt.Errorf("speech_onset_rms must be within [0,1], got %f", a.SpeechOnsetRMS)
	}
	if a.SpeechOffsetRMS < 0 || a.SpeechOffsetRMS > 1 {
		return fmt.Errorf("speech_offset_rms must be within [0,1], got %f", a.SpeechOffsetRMS)
	}
	if a.SpeechOnsetRMS > 0 && a.SpeechOffsetRMS > 0 && a.SpeechOffsetRMS > a.SpeechOnsetRMS {
		return fmt.Errorf("speech_offset_rms (%f) must not exceed speech_onset_rms (%f)",
			a.SpeechOffsetRMS, a.SpeechOnsetRMS)
	}
	return nil
}

func (r *RelayConfig) validate() error {
	if r.Enabled && r.URL == "" {
		return fmt.Errorf("url is required when relay is enabled")
	}
	return nil
}

func (i *IngestConfig) validate() error {
	if i.Port < 0 || i.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", i.Port)
	}
	if i.Codec != "pcm16" && i.Codec != "opus" {
		return fmt.Errorf("codec must be pcm16 or opus, got %q", i.Codec)
	}
	return nil
}

func (m *MetricsConfig) validate() error {
	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", m.Port)
	}
	return nil
}
