// Package watchdog reports when remote transfers have gone quiet for too long.
// It only logs; it never acts on the pipeline.
package watchdog

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Interval  time.Duration
	Threshold time.Duration

	// LastSuccess returns the time of the most recent successful transfer
	LastSuccess func() time.Time
	// OnStale is called with the elapsed time on every overdue check; optional
	OnStale func(elapsed time.Duration)

	Logger zerolog.Logger
	Now    func() time.Time // defaults to time.Now
}

type Watchdog struct {
	interval    time.Duration
	threshold   time.Duration
	lastSuccess func() time.Time
	onStale     func(time.Duration)
	log         zerolog.Logger
	now         func() time.Time
}

func New(cfg Config) *Watchdog {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Watchdog{
		interval:    cfg.Interval,
		threshold:   cfg.Threshold,
		lastSuccess: cfg.LastSuccess,
		onStale:     cfg.OnStale,
		log:         cfg.Logger,
		now:         now,
	}
}

// Run checks once per interval until ctx is done
func (w *Watchdog) Run(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Dur("threshold", w.threshold).Msg("Upload watchdog started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check compares now against the last successful transfer. It reports
// stale when the gap is strictly greater than the threshold.
func (w *Watchdog) Check() (elapsed time.Duration, stale bool) {
	elapsed = w.now().Sub(w.lastSuccess())

	if elapsed > w.threshold {
		w.log.Error().
			Dur("elapsed", elapsed).
			Dur("threshold", w.threshold).
			Msgf("No upload in the last %.0f seconds", elapsed.Seconds())
		if w.onStale != nil {
			w.onStale(elapsed)
		}
		return elapsed, true
	}

	w.log.Info().Dur("elapsed", elapsed).Msgf("Upload check passed. Last upload was %.0f seconds ago", elapsed.Seconds())
	return elapsed, false
}
