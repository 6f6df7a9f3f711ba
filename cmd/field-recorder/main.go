package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/petems/field-recorder/internal/app"
	"github.com/petems/field-recorder/internal/audio"
	"github.com/petems/field-recorder/internal/config"
	"github.com/petems/field-recorder/internal/logging"
	"github.com/petems/field-recorder/internal/metrics"
	"github.com/petems/field-recorder/internal/permissions"
	"github.com/petems/field-recorder/internal/queue"
	"github.com/petems/field-recorder/internal/segment"
	"github.com/petems/field-recorder/internal/status"
	"github.com/petems/field-recorder/internal/upload"
	"github.com/petems/field-recorder/internal/watchdog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// AWS credentials may live in a local .env on the station
	_ = godotenv.Load()

	seconds := pflag.IntP("time", "t", 60, "Length of each recorded segment in seconds")
	uploads := pflag.BoolP("upload", "u", false, "Upload segments to remote storage")
	configPath := pflag.StringP("config", "c", "config.yaml", "Path to the YAML configuration file")
	showVersion := pflag.Bool("version", false, "Print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("field-recorder %s (%s)\n", Version, Commit)
		return 0
	}

	if *seconds <= 0 {
		fmt.Fprintf(os.Stderr, "--time must be a positive number of seconds, got %d\n", *seconds)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Use default logger if config fails to load
		log := logging.Default()
		log.Error().Err(err).Msg("Failed to load config")
		return 1
	}

	log, logFile, err := logging.New(cfg.Logging.Level, cfg.LogPath())
	if err != nil {
		log := logging.Default()
		log.Error().Err(err).Msg("Failed to initialize logging")
		return 1
	}
	defer logFile.Close()

	runID := uuid.NewString()
	log = log.With().Str("run_id", runID).Logger()
	log.Info().
		Str("version", Version).
		Int("seconds", *seconds).
		Bool("upload", *uploads).
		Str("output", cfg.OutputDir()).
		Msg("Field recorder starting...")

	// macOS requires explicit microphone approval before capture works
	if err := permissions.EnsurePermissions(); err != nil {
		log.Error().Err(err).Msg("Required permissions not granted")
		return 1
	}

	format, err := audio.ParseSampleFormat(cfg.Audio.Format)
	if err != nil {
		log.Error().Err(err).Msg("Invalid audio format")
		return 1
	}
	params := audio.StreamParams{
		Format:     format,
		Channels:   cfg.Audio.Channels,
		SampleRate: cfg.Audio.SampleRate,
		ChunkSize:  cfg.Audio.ChunkSize,
	}

	if segment.ChunkCount(params.SampleRate, params.ChunkSize, *seconds) < 1 {
		log.Error().
			Int("seconds", *seconds).
			Int("sample_rate", params.SampleRate).
			Int("chunk_size", params.ChunkSize).
			Msg("Segment duration is shorter than one audio chunk")
		return 1
	}

	selector, err := audio.NewSelector(cfg.Audio.DeviceMatch, cfg.Audio.Device)
	if err != nil {
		log.Error().Err(err).Msg("Invalid device selection")
		return 1
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize audio capture
	capture, err := audio.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize audio")
		return 1
	}

	appCfg := app.Config{
		Audio:    capture,
		Selector: selector,
		Params:   params,
		Segments: segment.NewWriter(segment.Config{
			Params:   params,
			Logger:   log.With().Str("component", "segment").Logger(),
			Observer: m,
		}),
		Seconds: *seconds,
		Config:  cfg,
		Logger:  log,
		OnSegmentFailure: func(error) {
			m.SegmentFailures.Inc()
		},
	}

	if *uploads {
		store, err := upload.NewS3Store(ctx, upload.S3Config{
			Region:    cfg.Storage.Region,
			Endpoint:  cfg.Storage.Endpoint,
			PathStyle: cfg.Storage.PathStyle,
			Metadata: map[string]string{
				"run-id": runID,
				"record": cfg.Location.Record,
				"place":  cfg.Location.Place,
				"point":  cfg.Location.Point,
			},
		})
		if err != nil {
			_ = capture.Close()
			log.Error().Err(err).Msg("Failed to initialize remote storage")
			return 1
		}

		q := queue.New(queue.WithDepthObserver(m.SetQueueDepth))
		worker := upload.New(upload.Config{
			Queue:             q,
			Store:             store,
			Bucket:            cfg.Storage.Bucket,
			Prefix:            upload.KeyPrefix(cfg.Location.Record, cfg.Location.Place, cfg.Location.Point, cfg.Storage.OutputFolder),
			RemoveAfterUpload: cfg.Storage.Cleanup == config.CleanupAfterUpload,
			Logger:            log.With().Str("component", "upload").Logger(),
			Observer:          m,
		})

		appCfg.Queue = q
		appCfg.Worker = worker
		appCfg.Watchdog = watchdog.New(watchdog.Config{
			Interval:    cfg.Watchdog.IntervalDuration(),
			Threshold:   cfg.Watchdog.ThresholdDuration(),
			LastSuccess: worker.LastSuccess,
			OnStale:     m.Stale,
			Logger:      log.With().Str("component", "watchdog").Logger(),
		})
	}

	application := app.New(appCfg)

	if cfg.Status.Address != "" {
		srv := status.NewServer(cfg.Status.Address, application, reg, log)
		srv.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Status server shutdown error")
			}
		}()
	}

	// Setup shutdown signal handling; a second signal exits immediately
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		cancel()
		<-sigChan
		log.Warn().Msg("Forced exit, pending segments are not uploaded")
		os.Exit(1)
	}()

	if err := application.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Pre-flight failed")
		return 1
	}

	log.Info().Msg("Field recorder stopped")
	return 0
}
