package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/petems/field-recorder/internal/audio"
	"github.com/petems/field-recorder/internal/config"
	"github.com/petems/field-recorder/internal/queue"
	"github.com/petems/field-recorder/internal/status"
	"github.com/petems/field-recorder/internal/upload"
	"github.com/petems/field-recorder/internal/watchdog"
	"github.com/rs/zerolog"
)

type State int

const (
	Initializing State = iota
	Capturing
	ErrorSkip
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Capturing:
		return "capturing"
	case ErrorSkip:
		return "error_skip"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// SegmentWriter records one segment from stream into dir
type SegmentWriter interface {
	Capture(ctx context.Context, stream audio.Stream, seconds int, dir string) (string, error)
}

type Config struct {
	Audio    audio.Capture
	Selector audio.Selector
	Params   audio.StreamParams
	Segments SegmentWriter
	Seconds  int
	Config   *config.Config
	Logger   zerolog.Logger

	// Queue, Worker and Watchdog are nil when uploads are disabled
	Queue    *queue.Queue
	Worker   *upload.Worker
	Watchdog *watchdog.Watchdog

	// OnSegmentFailure is called for every skipped segment; optional
	OnSegmentFailure func(err error)
}

type App struct {
	audio    audio.Capture
	selector audio.Selector
	params   audio.StreamParams
	segments SegmentWriter
	seconds  int
	cfg      *config.Config
	log      zerolog.Logger

	queue     *queue.Queue
	worker    *upload.Worker
	watchdog  *watchdog.Watchdog
	onFailure func(error)

	mu    sync.Mutex
	state State
}

func New(cfg Config) *App {
	return &App{
		audio:     cfg.Audio,
		selector:  cfg.Selector,
		params:    cfg.Params,
		segments:  cfg.Segments,
		seconds:   cfg.Seconds,
		cfg:       cfg.Config,
		log:       cfg.Logger,
		queue:     cfg.Queue,
		worker:    cfg.Worker,
		watchdog:  cfg.Watchdog,
		onFailure: cfg.OnSegmentFailure,
		state:     Initializing,
	}
}

// Run resolves the device, starts the background tasks and records segments
// until ctx is cancelled. Errors are returned only for pre-flight failures,
// before any background task has started.
func (a *App) Run(ctx context.Context) error {
	stream, err := a.initialize()
	if err != nil {
		if cerr := a.audio.Close(); cerr != nil {
			a.log.Warn().Err(cerr).Msg("Failed to release audio host")
		}
		a.setState(Stopped)
		return err
	}

	// Background tasks outlive the capture context so the worker can keep
	// draining after an interrupt.
	bg, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBackground()

	if a.uploading() {
		go a.worker.Run(bg)
		if a.watchdog != nil {
			go a.watchdog.Run(bg)
		}
		a.log.Info().Str("bucket", a.cfg.Storage.Bucket).Msg("Uploading segments to remote storage")
	} else {
		a.log.Warn().Msg("Not uploading segments")
	}

	a.capture(ctx, stream)
	a.drain(stream)

	if a.uploading() {
		stopBackground()
		a.discardPending()
	}
	a.setState(Stopped)
	return nil
}

func (a *App) initialize() (audio.Stream, error) {
	a.setState(Initializing)

	devices, err := a.audio.ListDevices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		a.log.Debug().Int("index", d.Index).Str("name", d.Name).Int("inputs", d.MaxInputChannels).Msg("Audio device")
	}

	device, err := a.selector.Select(devices)
	if err != nil {
		return nil, err
	}
	a.log.Info().Int("index", device.Index).Str("name", device.Name).Msg("Found target device")

	stream, err := a.audio.Open(device, a.params)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (a *App) capture(ctx context.Context, stream audio.Stream) {
	a.setState(Capturing)
	dir := a.cfg.OutputDir()
	a.log.Info().Int("seconds", a.seconds).Str("dir", dir).Msg("Recording continuous segments")

	for ctx.Err() == nil {
		path, err := a.segments.Capture(ctx, stream, a.seconds, dir)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			a.skip(ctx, err)
			continue
		}

		if a.uploading() {
			a.enqueue(path)
		}
	}

	a.log.Info().Msg("Recording stopped by operator")
}

// skip is the ErrorSkip state: log, pause, go back to capturing
func (a *App) skip(ctx context.Context, err error) {
	a.setState(ErrorSkip)
	a.log.Error().Err(err).Msg("Error during segment processing, continuing to next segment")
	if a.onFailure != nil {
		a.onFailure(err)
	}

	select {
	case <-time.After(a.cfg.Capture.ErrorPauseDuration()):
	case <-ctx.Done():
	}
	a.setState(Capturing)
}

func (a *App) enqueue(path string) {
	a.log.Info().Str("path", path).Msg("Enqueuing segment for upload")

	if a.cfg.Storage.Cleanup != config.CleanupAfterEnqueue {
		a.queue.Enqueue(queue.Job(path))
		return
	}

	// The open handle keeps the data alive after unlink; the worker closes it
	// once the transfer is done and the space is reclaimed.
	f, err := os.Open(path)
	if err != nil {
		a.log.Error().Err(err).Str("path", path).Msg("Failed to open segment for hand-off, keeping local file")
		a.queue.Enqueue(queue.Job(path))
		return
	}
	a.queue.Enqueue(queue.Job(path).WithBody(f))

	if err := os.Remove(path); err != nil {
		a.log.Warn().Err(err).Str("path", path).Msg("Failed to remove local segment")
		return
	}
	a.log.Info().Str("path", path).Msg("Removed local segment")
}

func (a *App) drain(stream audio.Stream) {
	a.setState(Draining)

	if a.uploading() {
		pending := a.queue.Len()
		a.queue.Enqueue(queue.EndOfWork())
		a.log.Info().Int("pending", pending).Msg("No more segments will be enqueued")
	}

	if err := stream.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close capture stream")
	}
	if err := a.audio.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to release audio host")
	}

	if a.uploading() && a.cfg.Shutdown.Drain {
		timeout := a.cfg.Shutdown.DrainTimeoutDuration()
		a.log.Info().Dur("timeout", timeout).Msg("Waiting for pending uploads")
		select {
		case <-a.worker.Done():
			a.log.Info().Msg("Pending uploads drained")
		case <-time.After(timeout):
			a.log.Warn().Int("pending", a.queue.Len()).Msg("Drain timed out, remaining segments are not uploaded")
		}
	}
}

// discardPending empties the queue once the worker has been told to stop and
// releases the handles of unlinked segments it will never upload.
func (a *App) discardPending() {
	var dropped int
	for _, e := range a.queue.Drain() {
		if e.IsEndOfWork() {
			continue
		}
		dropped++
		if e.Body == nil {
			continue
		}
		if err := e.Body.Close(); err != nil {
			a.log.Warn().Err(err).Str("path", e.Path).Msg("Failed to release pending segment")
		}
	}
	if dropped > 0 {
		a.log.Warn().Int("segments", dropped).Msg("Discarded segments that were not uploaded")
	}
}

func (a *App) uploading() bool {
	return a.worker != nil && a.queue != nil
}

func (a *App) setState(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != s {
		a.log.Debug().Str("from", a.state.String()).Str("to", s.String()).Msg("Pipeline state")
	}
	a.state = s
}

func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Snapshot implements status.Source
func (a *App) Snapshot() status.Snapshot {
	s := a.State()
	snap := status.Snapshot{
		State:     s.String(),
		Capturing: s == Capturing || s == ErrorSkip,
		Uploading: a.uploading(),
	}
	if a.uploading() {
		last := a.worker.LastSuccess()
		snap.QueueDepth = a.queue.Len()
		snap.LastUpload = &last
		snap.SecondsSinceUpload = time.Since(last).Seconds()
	}
	return snap
}
