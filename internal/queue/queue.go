// Package queue is the unbounded FIFO between the capture loop and the
// upload worker.
//
// Enqueue never blocks and the queue has no capacity limit: when uploads are
// slow or failing it grows without bound. Watch the depth observer rather
// than capping it.
package queue

import (
	"context"
	"io"
	"sync"
)

// Entry is either a segment waiting for transfer or the end-of-work marker
type Entry struct {
	Path string
	// Body is an already-open handle on the segment, set when the local path
	// has been unlinked after enqueue. The consumer must close it.
	Body io.ReadCloser

	endOfWork bool
}

// Job returns an entry for the segment at path
func Job(path string) Entry {
	return Entry{Path: path}
}

// WithBody attaches an open handle on the segment's content
func (e Entry) WithBody(body io.ReadCloser) Entry {
	e.Body = body
	return e
}

// EndOfWork returns the sentinel meaning no further entries will be produced
func EndOfWork() Entry {
	return Entry{endOfWork: true}
}

func (e Entry) IsEndOfWork() bool {
	return e.endOfWork
}

type Option func(*Queue)

// WithDepthObserver registers fn to be called with the new depth after every
// change. fn runs with the queue locked and must not call back into it.
func WithDepthObserver(fn func(depth int)) Option {
	return func(q *Queue) {
		q.observe = fn
	}
}

type Queue struct {
	mu      sync.Mutex
	items   []Entry
	ready   chan struct{}
	observe func(int)
}

func New(opts ...Option) *Queue {
	q := &Queue{ready: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends e and wakes a waiting consumer
func (q *Queue) Enqueue(e Entry) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.report(len(q.items))
	q.mu.Unlock()

	q.signal()
}

// Dequeue removes the oldest entry, blocking until one is available or ctx
// is done.
func (q *Queue) Dequeue(ctx context.Context) (Entry, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = Entry{}
			q.items = q.items[1:]
			depth := len(q.items)
			q.report(depth)
			q.mu.Unlock()

			// pass the wake-up on if more work is waiting
			if depth > 0 {
				q.signal()
			}
			return e, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
	}
}

// Drain removes and returns every queued entry without blocking
func (q *Queue) Drain() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	q.report(0)
	return items
}

// Len reports the number of queued entries
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue) report(depth int) {
	if q.observe != nil {
		q.observe(depth)
	}
}
