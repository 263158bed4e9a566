package workers

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs a fixed number of goroutines that handle submitted jobs.
type Pool[T any] struct {
	size   int
	jobs   chan T
	handle func(context.Context, T)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	// OnBusy, when set, is called with +1 when a worker picks up a job and
	// -1 when it finishes.
	OnBusy func(delta float64)
}

// NewPool returns a pool of size workers with a buffer of pending jobs.
func NewPool[T any](size, buffer int, handle func(context.Context, T)) *Pool[T] {
	if size < 1 {
		size = 1
	}
	return &Pool[T]{size: size, jobs: make(chan T, buffer), handle: handle}
}

// Size returns the number of workers.
func (p *Pool[T]) Size() int { return p.size }

// Start launches the workers. They stop once Close has been called and the
// pending jobs are drained. ctx is passed to every handler call.
func (p *Pool[T]) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.busy(1)
				p.handle(ctx, job)
				p.busy(-1)
			}
		}()
	}
}

func (p *Pool[T]) busy(delta float64) {
	if p.OnBusy != nil {
		p.OnBusy(delta)
	}
}

// Submit enqueues job, blocking while the buffer is full.
func (p *Pool[T]) Submit(ctx context.Context, job T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for the workers to drain the
// buffer.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
