package util

import (
	"context"
	"sync"
)

// Pool runs submitted tasks on a fixed number of worker goroutines. Tasks
// receive a context that is cancelled when the pool shuts down, so long
// waits inside a task (retry loops, polling) stay interruptible.
type Pool struct {
	tasks  chan func(context.Context)
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan func(context.Context), 128),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task(p.ctx)
	}
}

// Submit queues a task. It reports false once the pool has been shut
// down; queued tasks still run, but receive an already-cancelled context
// after Shutdown so they can bail out early.
func (p *Pool) Submit(task func(context.Context)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.tasks <- task
	return true
}

// Shutdown cancels the pool context, stops accepting work and waits for
// the workers to drain.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancel()
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
