package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
relay:
  enabled: true
  url: http://localhost:8080
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Station.Hostname == "" {
		t.Error("hostname default not applied")
	}
	if cfg.Station.TickIntervalMs != 1000 {
		t.Errorf("tick_interval_ms = %d, want 1000", cfg.Station.TickIntervalMs)
	}
	if cfg.Ingest.BindAddress != "127.0.0.1" || cfg.Ingest.Port != 9550 || cfg.Ingest.Codec != "pcm16" {
		t.Errorf("ingest defaults not applied: %+v", cfg.Ingest)
	}
	if cfg.Metrics.Port != 9551 {
		t.Errorf("metrics port default = %d, want 9551", cfg.Metrics.Port)
	}
	// Audio zero values are deliberately left for the monitor to default.
	if cfg.Audio.SampleRate != 0 {
		t.Errorf("audio sample_rate = %d, want 0 (monitor defaults)", cfg.Audio.SampleRate)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
station:
  hostname: studio-mac
  tick_interval_ms: 250
  auto_enable_dictation: true
audio:
  sample_rate: 16000
  frame_duration_ms: 20
  silence_duration_ms: 500
  inactivity_timeout_ms: 10000
  speech_onset_rms: 0.0008
  speech_offset_rms: 0.0005
relay:
  enabled: true
  url: http://relay.example:8080
  code: ABCD-EFGH
ingest:
  enabled: true
  bind_address: 0.0.0.0
  port: 9600
  codec: opus
metrics:
  enabled: true
  port: 9100
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Station.Hostname != "studio-mac" || !cfg.Station.AutoEnableDictation {
		t.Errorf("station = %+v", cfg.Station)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.SpeechOnsetRMS != 0.0008 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Relay.Code != "ABCD-EFGH" {
		t.Errorf("relay = %+v", cfg.Relay)
	}
	if cfg.Ingest.Codec != "opus" || cfg.Ingest.Port != 9600 {
		t.Errorf("ingest = %+v", cfg.Ingest)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name, yaml string
	}{
		{"relay enabled without url", "relay:\n  enabled: true\n"},
		{"onset below offset", "audio:\n  speech_onset_rms: 0.0004\n  speech_offset_rms: 0.0006\n"},
		{"threshold out of range", "audio:\n  speech_onset_rms: 1.5\n"},
		{"bad ingest codec", "ingest:\n  codec: mp3\n"},
		{"tick too small", "station:\n  tick_interval_ms: 5\n"},
		{"frame too long", "audio:\n  frame_duration_ms: 2000\n"},
		{"not yaml", "{{{{"},
	}
	for _, tc := range cases {
		path := writeConfig(t, tc.yaml)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: Load accepted invalid config", tc.name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load accepted a missing file")
	}
}
