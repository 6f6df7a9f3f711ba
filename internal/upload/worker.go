// Package upload moves finished segments from the transfer queue to remote
// storage.
//
// Delivery is at most once: a failed transfer is logged and dropped, never
// retried or re-queued, so the worker never stalls the queue behind one bad
// file.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/petems/field-recorder/internal/queue"
	"github.com/rs/zerolog"
)

// Observer receives transfer outcomes; it may be nil
type Observer interface {
	UploadSucceeded(at time.Time, took time.Duration)
	UploadFailed(took time.Duration)
}

type Config struct {
	Queue  *queue.Queue
	Store  Store
	Bucket string
	Prefix string // see KeyPrefix

	// RemoveAfterUpload deletes the local file once it has been transferred
	RemoveAfterUpload bool

	Logger   zerolog.Logger
	Observer Observer
	Now      func() time.Time // defaults to time.Now
}

// Worker is the single consumer of the transfer queue. Only one may run per
// queue; it is the only writer of the last-success time.
type Worker struct {
	queue    *queue.Queue
	store    Store
	bucket   string
	prefix   string
	removeOK bool
	log      zerolog.Logger
	obs      Observer
	now      func() time.Time
	done     chan struct{}
	attempts atomic.Int64
	lastOK   atomic.Int64 // unix nanoseconds
}

// New creates a worker whose last-success time starts at creation, so a
// freshly started station is not immediately reported as overdue.
func New(cfg Config) *Worker {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	w := &Worker{
		queue:    cfg.Queue,
		store:    cfg.Store,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		removeOK: cfg.RemoveAfterUpload,
		log:      cfg.Logger,
		obs:      cfg.Observer,
		now:      now,
		done:     make(chan struct{}),
	}
	w.lastOK.Store(now().UnixNano())
	return w
}

// Run transfers queued segments until the end-of-work entry is dequeued or
// ctx is done.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	w.log.Info().Str("bucket", w.bucket).Str("prefix", w.prefix).Msg("Upload worker started")

	for {
		e, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.log.Warn().Err(err).Int("pending", w.queue.Len()).Msg("Upload worker stopped before end of work")
			return
		}
		if e.IsEndOfWork() {
			w.log.Info().Int64("attempts", w.attempts.Load()).Msg("Upload worker finished")
			return
		}
		w.transfer(ctx, e)
	}
}

// Done is closed when Run returns
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// LastSuccess is the time of the most recent successful transfer, or the
// worker's creation time if there has been none.
func (w *Worker) LastSuccess() time.Time {
	return time.Unix(0, w.lastOK.Load())
}

// Attempts is the number of transfers tried so far
func (w *Worker) Attempts() int64 {
	return w.attempts.Load()
}

func (w *Worker) transfer(ctx context.Context, e queue.Entry) {
	w.attempts.Add(1)
	key := ObjectKey(w.prefix, filepath.Base(e.Path))
	log := w.log.With().Str("file", e.Path).Str("key", key).Logger()

	start := w.now()
	if err := w.put(ctx, e, key); err != nil {
		log.Error().Err(err).Msg("Failed to upload file")
		if w.obs != nil {
			w.obs.UploadFailed(w.now().Sub(start))
		}
		return
	}

	at := w.now()
	w.markSuccess(at)
	log.Info().Dur("took", at.Sub(start)).Msg("Upload successful")
	if w.obs != nil {
		w.obs.UploadSucceeded(at, at.Sub(start))
	}

	if w.removeOK && e.Body == nil {
		if err := os.Remove(e.Path); err != nil {
			log.Warn().Err(err).Msg("Failed to remove uploaded file")
		}
	}
}

func (w *Worker) put(ctx context.Context, e queue.Entry, key string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("store panicked: %v", r)
		}
	}()

	var body io.ReadCloser = e.Body
	if body == nil {
		f, err := os.Open(e.Path)
		if err != nil {
			return err
		}
		body = f
	}
	defer body.Close()

	return w.store.PutObject(ctx, w.bucket, key, body)
}

func (w *Worker) markSuccess(at time.Time) {
	ns := at.UnixNano()
	for {
		cur := w.lastOK.Load()
		if ns <= cur || w.lastOK.CompareAndSwap(cur, ns) {
			return
		}
	}
}
