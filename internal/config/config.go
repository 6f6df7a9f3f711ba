package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDevice is the capture card the field stations ship with.
const DefaultDevice = "Sound Blaster Play! 3"

// Device selection strategies
const (
	MatchSubstring = "substring"
	MatchExact     = "exact"
	MatchIndex     = "index"
)

// Local file cleanup policies
const (
	CleanupKeep         = "keep"
	CleanupAfterEnqueue = "after_enqueue"
	CleanupAfterUpload  = "after_upload"
)

type Config struct {
	Location LocationConfig `yaml:"location"`
	Audio    AudioConfig    `yaml:"audio"`
	Storage  StorageConfig  `yaml:"storage"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
	Capture  CaptureConfig  `yaml:"capture"`
	Logging  LoggingConfig  `yaml:"logging"`
	Status   StatusConfig   `yaml:"status"`
}

// LocationConfig is the record/place/point hierarchy used for both the
// local directory layout and the remote object keys.
type LocationConfig struct {
	Record string `yaml:"record"`
	Place  string `yaml:"place"`
	Point  string `yaml:"point"`
}

type AudioConfig struct {
	Format      string `yaml:"format"`
	Channels    int    `yaml:"channels"`
	SampleRate  int    `yaml:"sample_rate"`
	ChunkSize   int    `yaml:"chunk_size"`
	Device      string `yaml:"device"`
	DeviceMatch string `yaml:"device_match"`
}

type StorageConfig struct {
	Bucket       string `yaml:"s3_bucket_name"`
	OutputFolder string `yaml:"output_wav_folder"`
	Root         string `yaml:"root"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	PathStyle    bool   `yaml:"path_style"`
	Cleanup      string `yaml:"cleanup"`
}

type WatchdogConfig struct {
	Interval  int `yaml:"interval"`  // seconds
	Threshold int `yaml:"threshold"` // seconds
}

type ShutdownConfig struct {
	Drain        bool `yaml:"drain"`
	DrainTimeout int  `yaml:"drain_timeout"` // seconds
}

type CaptureConfig struct {
	ErrorPause int `yaml:"error_pause"` // seconds
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type StatusConfig struct {
	Address string `yaml:"address"`
}

// Default returns the configuration used for every key the file leaves out.
// Location, audio format and storage naming have no defaults.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			Device:      DefaultDevice,
			DeviceMatch: MatchSubstring,
		},
		Storage: StorageConfig{
			Cleanup: CleanupKeep,
		},
		Watchdog: WatchdogConfig{
			Interval:  60,
			Threshold: 70,
		},
		Shutdown: ShutdownConfig{
			Drain:        false,
			DrainTimeout: 30,
		},
		Capture: CaptureConfig{
			ErrorPause: 1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads and validates the YAML configuration at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Storage.Root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage root not set and home directory unknown: %w", err)
		}
		cfg.Storage.Root = home
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Location.Validate(); err != nil {
		return fmt.Errorf("location config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := c.Watchdog.Validate(); err != nil {
		return fmt.Errorf("watchdog config: %w", err)
	}
	if err := c.Shutdown.Validate(); err != nil {
		return fmt.Errorf("shutdown config: %w", err)
	}
	if c.Capture.ErrorPause < 0 {
		return fmt.Errorf("capture config: error_pause cannot be negative, got %d", c.Capture.ErrorPause)
	}
	return nil
}

func (l *LocationConfig) Validate() error {
	if l.Record == "" {
		return fmt.Errorf("record cannot be empty")
	}
	if l.Place == "" {
		return fmt.Errorf("place cannot be empty")
	}
	if l.Point == "" {
		return fmt.Errorf("point cannot be empty")
	}
	for _, v := range []string{l.Record, l.Place, l.Point} {
		if strings.ContainsAny(v, `/\`) || v == "." || v == ".." {
			return fmt.Errorf("%q is not a valid path element", v)
		}
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.Format == "" {
		return fmt.Errorf("format cannot be empty")
	}
	if a.Channels < 1 {
		return fmt.Errorf("channels must be at least 1, got %d", a.Channels)
	}
	if a.SampleRate < 1 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}
	if a.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive, got %d", a.ChunkSize)
	}
	if a.Device == "" {
		return fmt.Errorf("device cannot be empty")
	}

	switch a.DeviceMatch {
	case MatchSubstring, MatchExact, MatchIndex:
	default:
		return fmt.Errorf("device_match must be one of [substring, exact, index], got '%s'", a.DeviceMatch)
	}
	return nil
}

func (s *StorageConfig) Validate() error {
	if s.Bucket == "" {
		return fmt.Errorf("s3_bucket_name cannot be empty")
	}
	if s.OutputFolder == "" {
		return fmt.Errorf("output_wav_folder cannot be empty")
	}
	if strings.ContainsAny(s.OutputFolder, `/\`) {
		return fmt.Errorf("output_wav_folder must be a single path element, got '%s'", s.OutputFolder)
	}

	switch s.Cleanup {
	case CleanupKeep, CleanupAfterEnqueue, CleanupAfterUpload:
	default:
		return fmt.Errorf("cleanup must be one of [keep, after_enqueue, after_upload], got '%s'", s.Cleanup)
	}
	return nil
}

func (w *WatchdogConfig) Validate() error {
	if w.Interval < 1 {
		return fmt.Errorf("interval must be at least 1 second, got %d", w.Interval)
	}
	if w.Threshold < 1 {
		return fmt.Errorf("threshold must be at least 1 second, got %d", w.Threshold)
	}
	return nil
}

func (s *ShutdownConfig) Validate() error {
	if s.Drain && s.DrainTimeout < 1 {
		return fmt.Errorf("drain_timeout must be at least 1 second when drain is enabled, got %d", s.DrainTimeout)
	}
	return nil
}

// OutputDir is {root}/{record}/{place}/{point}/{output folder}
func (c *Config) OutputDir() string {
	return filepath.Join(c.Storage.Root, c.Location.Record, c.Location.Place, c.Location.Point, c.Storage.OutputFolder)
}

// LogPath returns the configured log file, or {root}/log/field-recorder.log
func (c *Config) LogPath() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.Storage.Root, "log", "field-recorder.log")
}

func (w *WatchdogConfig) IntervalDuration() time.Duration {
	return time.Duration(w.Interval) * time.Second
}

func (w *WatchdogConfig) ThresholdDuration() time.Duration {
	return time.Duration(w.Threshold) * time.Second
}

func (s *ShutdownConfig) DrainTimeoutDuration() time.Duration {
	return time.Duration(s.DrainTimeout) * time.Second
}

func (c *CaptureConfig) ErrorPauseDuration() time.Duration {
	return time.Duration(c.ErrorPause) * time.Second
}
