package watchdog

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var epoch = time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

func TestCheckThreshold(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		stale   bool
	}{
		{name: "fresh", elapsed: 10 * time.Second, stale: false},
		{name: "exactly at threshold", elapsed: 70 * time.Second, stale: false},
		{name: "just past threshold", elapsed: 70*time.Second + time.Millisecond, stale: true},
		{name: "long outage", elapsed: time.Hour, stale: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var alerts int
			w := New(Config{
				Interval:    60 * time.Second,
				Threshold:   70 * time.Second,
				LastSuccess: func() time.Time { return epoch },
				OnStale:     func(time.Duration) { alerts++ },
				Logger:      zerolog.Nop(),
				Now:         func() time.Time { return epoch.Add(tt.elapsed) },
			})

			elapsed, stale := w.Check()
			if elapsed != tt.elapsed {
				t.Errorf("expected elapsed %v, got %v", tt.elapsed, elapsed)
			}
			if stale != tt.stale {
				t.Errorf("expected stale=%v, got %v", tt.stale, stale)
			}
			if (alerts == 1) != tt.stale {
				t.Errorf("expected alert hook only when stale, got %d calls", alerts)
			}
		})
	}
}

// threshold 70s, interval 60s and no uploads for 130s: the second check alerts
func TestSilentUploadsAlertOnSecondCheck(t *testing.T) {
	now := epoch
	var logs bytes.Buffer
	w := New(Config{
		Interval:    60 * time.Second,
		Threshold:   70 * time.Second,
		LastSuccess: func() time.Time { return epoch },
		Logger:      zerolog.New(&logs),
		Now:         func() time.Time { return now },
	})

	now = epoch.Add(60 * time.Second)
	if _, stale := w.Check(); stale {
		t.Fatal("first check at 60s must not alert")
	}
	if strings.Contains(logs.String(), `"level":"error"`) {
		t.Fatal("unexpected alert after first check")
	}

	now = epoch.Add(120 * time.Second)
	if _, stale := w.Check(); !stale {
		t.Fatal("second check at 120s must alert")
	}
	if !strings.Contains(logs.String(), `"level":"error"`) {
		t.Errorf("expected an error-level entry, got %s", logs.String())
	}
	if !strings.Contains(logs.String(), "No upload in the last 120 seconds") {
		t.Errorf("expected elapsed seconds in alert, got %s", logs.String())
	}
}

func TestRunChecksEveryInterval(t *testing.T) {
	var (
		mu     sync.Mutex
		alerts int
	)
	w := New(Config{
		Interval:    5 * time.Millisecond,
		Threshold:   time.Millisecond,
		LastSuccess: func() time.Time { return time.Now().Add(-time.Second) },
		OnStale: func(time.Duration) {
			mu.Lock()
			alerts++
			mu.Unlock()
		},
		Logger: zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not stop on cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if alerts < 2 {
		t.Errorf("expected repeated alerts, got %d", alerts)
	}
}
