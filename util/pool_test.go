package util

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(4)
	defer p.Shutdown()

	var count int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		ok := p.Submit(func(ctx context.Context) {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
		})
		if !ok {
			t.Fatal("Submit refused before shutdown")
		}
	}
	wg.Wait()

	if got := atomic.LoadInt64(&count); got != 50 {
		t.Fatalf("expected 50 tasks run, got %d", got)
	}
}

func TestPoolBoundedConcurrency(t *testing.T) {
	p := NewPool(2)
	defer p.Shutdown()

	var active, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		p.Submit(func(ctx context.Context) {
			defer wg.Done()
			n := atomic.AddInt64(&active, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&active, -1)
		})
	}
	wg.Wait()

	if got := atomic.LoadInt64(&peak); got > 2 {
		t.Fatalf("expected at most 2 concurrent tasks, saw %d", got)
	}
}

func TestPoolShutdown(t *testing.T) {
	p := NewPool(1)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	<-started

	done := make(chan struct{})
	go func() {
		p.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not complete")
	}
	select {
	case <-cancelled:
	default:
		t.Error("running task did not observe cancellation")
	}

	if p.Submit(func(ctx context.Context) {}) {
		t.Error("Submit must refuse work after shutdown")
	}
	// Repeated shutdown is a no-op.
	p.Shutdown()
}
