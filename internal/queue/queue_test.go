package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestFIFOOrder(t *testing.T) {
	q := New()
	for i := 0; i < 5; i++ {
		q.Enqueue(Job(fmt.Sprintf("seg-%d.wav", i)))
	}
	q.Enqueue(EndOfWork())

	for i := 0; i < 5; i++ {
		e, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if want := fmt.Sprintf("seg-%d.wav", i); e.Path != want {
			t.Errorf("expected %s, got %s", want, e.Path)
		}
		if e.IsEndOfWork() {
			t.Fatalf("entry %d reported end of work", i)
		}
	}

	e, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if !e.IsEndOfWork() {
		t.Error("expected sentinel last")
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New()
	got := make(chan Entry, 1)

	go func() {
		e, _ := q.Dequeue(context.Background())
		got <- e
	}()

	select {
	case <-got:
		t.Fatal("Dequeue returned before anything was enqueued")
	case <-time.After(20 * time.Millisecond):
	}

	q.Enqueue(Job("late.wav"))

	select {
	case e := <-got:
		if e.Path != "late.wav" {
			t.Errorf("expected late.wav, got %s", e.Path)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake up")
	}
}

func TestDequeueHonorsContext(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestConcurrentConsumersNoDuplicates(t *testing.T) {
	const n = 500
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				e, err := q.Dequeue(ctx)
				if err != nil || e.IsEndOfWork() {
					return
				}
				mu.Lock()
				seen[e.Path]++
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < n; i++ {
		q.Enqueue(Job(fmt.Sprintf("%04d.wav", i)))
	}
	for c := 0; c < 4; c++ {
		q.Enqueue(EndOfWork())
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumers did not finish (missed wake-up)")
	}

	if len(seen) != n {
		t.Errorf("expected %d distinct entries, got %d", n, len(seen))
	}
	for path, count := range seen {
		if count != 1 {
			t.Errorf("%s dequeued %d times", path, count)
		}
	}
}

func TestDepthObserver(t *testing.T) {
	var depths []int
	q := New(WithDepthObserver(func(d int) { depths = append(depths, d) }))

	q.Enqueue(Job("a.wav"))
	q.Enqueue(Job("b.wav"))
	q.Dequeue(context.Background())

	want := []int{1, 2, 1}
	if len(depths) != len(want) {
		t.Fatalf("expected depths %v, got %v", want, depths)
	}
	for i := range want {
		if depths[i] != want[i] {
			t.Errorf("expected depths %v, got %v", want, depths)
		}
	}
}

func TestDepthObserverSettlesOnFinalDepth(t *testing.T) {
	var (
		mu   sync.Mutex
		last = -1
	)
	q := New(WithDepthObserver(func(depth int) {
		mu.Lock()
		last = depth
		mu.Unlock()
	}))

	const n = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Enqueue(Job(fmt.Sprintf("seg-%d.wav", i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n/2; i++ {
			if _, err := q.Dequeue(context.Background()); err != nil {
				t.Errorf("Dequeue failed: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if last != q.Len() || last != n/2 {
		t.Errorf("observer last saw %d, queue holds %d", last, q.Len())
	}
}

func TestDrain(t *testing.T) {
	var depths []int
	q := New(WithDepthObserver(func(depth int) { depths = append(depths, depth) }))
	q.Enqueue(Job("a.wav"))
	q.Enqueue(Job("b.wav"))
	q.Enqueue(EndOfWork())

	items := q.Drain()
	if len(items) != 3 || items[0].Path != "a.wav" || !items[2].IsEndOfWork() {
		t.Errorf("unexpected drained entries %+v", items)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
	if depths[len(depths)-1] != 0 {
		t.Errorf("expected depth 0 reported after drain, got %v", depths)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected drained queue to block, got %v", err)
	}
}
