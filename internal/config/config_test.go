package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
location:
  record: bioacoustics
  place: wetland
  point: p01
audio:
  format: pyaudio.paInt16
  channels: 1
  sample_rate: 44100
  chunk_size: 1024
storage:
  s3_bucket_name: station-audio
  output_wav_folder: wav
  root: /data
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Audio.Device != DefaultDevice {
		t.Errorf("expected default device %q, got %q", DefaultDevice, cfg.Audio.Device)
	}
	if cfg.Audio.DeviceMatch != MatchSubstring {
		t.Errorf("expected substring matching by default, got %q", cfg.Audio.DeviceMatch)
	}
	if cfg.Storage.Cleanup != CleanupKeep {
		t.Errorf("expected keep cleanup by default, got %q", cfg.Storage.Cleanup)
	}
	if cfg.Watchdog.IntervalDuration() != 60*time.Second {
		t.Errorf("expected 60s watchdog interval, got %v", cfg.Watchdog.IntervalDuration())
	}
	if cfg.Watchdog.ThresholdDuration() != 70*time.Second {
		t.Errorf("expected 70s watchdog threshold, got %v", cfg.Watchdog.ThresholdDuration())
	}
	if cfg.Shutdown.Drain {
		t.Error("expected drain to be disabled by default")
	}
	if cfg.Capture.ErrorPauseDuration() != time.Second {
		t.Errorf("expected 1s error pause, got %v", cfg.Capture.ErrorPauseDuration())
	}
}

func TestOutputDirLayout(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := filepath.Join("/data", "bioacoustics", "wetland", "p01", "wav")
	if got := cfg.OutputDir(); got != want {
		t.Errorf("expected output dir %s, got %s", want, got)
	}
	if got := cfg.LogPath(); got != filepath.Join("/data", "log", "field-recorder.log") {
		t.Errorf("unexpected log path %s", got)
	}
}

func TestParseMissingKeys(t *testing.T) {
	tests := []struct {
		name     string
		drop     string
		errorMsg string
	}{
		{name: "missing record", drop: "  record: bioacoustics\n", errorMsg: "record cannot be empty"},
		{name: "missing format", drop: "  format: pyaudio.paInt16\n", errorMsg: "format cannot be empty"},
		{name: "missing chunk size", drop: "  chunk_size: 1024\n", errorMsg: "chunk_size must be positive"},
		{name: "missing bucket", drop: "  s3_bucket_name: station-audio\n", errorMsg: "s3_bucket_name cannot be empty"},
		{name: "missing output folder", drop: "  output_wav_folder: wav\n", errorMsg: "output_wav_folder cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := strings.Replace(validYAML, tt.drop, "", 1)
			_, err := Parse([]byte(data))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errorMsg, err)
			}
		})
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown device match", mutate: func(c *Config) { c.Audio.DeviceMatch = "fuzzy" }},
		{name: "unknown cleanup", mutate: func(c *Config) { c.Storage.Cleanup = "sometimes" }},
		{name: "zero watchdog interval", mutate: func(c *Config) { c.Watchdog.Interval = 0 }},
		{name: "drain without timeout", mutate: func(c *Config) { c.Shutdown.Drain = true; c.Shutdown.DrainTimeout = 0 }},
		{name: "path in location", mutate: func(c *Config) { c.Location.Point = "../escape" }},
		{name: "negative error pause", mutate: func(c *Config) { c.Capture.ErrorPause = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(validYAML))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Bucket != "station-audio" {
		t.Errorf("expected bucket station-audio, got %s", cfg.Storage.Bucket)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
