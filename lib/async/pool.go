// Package async provides bounded worker pool utilities.
package async

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prefixd/prefixd/errs"
)

// Task represents a unit of work executed by the pool workers.
type Task func(context.Context) error

// Pool is a bounded worker pool. Capacity is workers plus queue depth,
// counted from Submit until the task finishes; a Submit with every slot
// in flight fails immediately with an unavailable envelope instead of
// queuing, which lets callers coalesce redundant triggers: the refresh
// scheduler runs a single-worker, zero-queue pool so at most one refresh
// is in flight.
type Pool struct {
	ctx      context.Context
	cancel   context.CancelFunc
	jobs     chan job
	slots    int64
	inflight atomic.Int64
	wg       sync.WaitGroup
	once     sync.Once
}

type job struct {
	ctx context.Context
	fn  Task
}

// NewPool creates a worker pool with the given concurrency and queue depth.
func NewPool(workers, queue int) (*Pool, error) {
	if workers <= 0 {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("workers must be >0"))
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{ctx: ctx, cancel: cancel, jobs: make(chan job, queue), slots: int64(workers + queue)}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p, nil
}

// Submit schedules the task for execution. It fails with an unavailable
// envelope when the pool is closed or every slot is in flight; it never
// waits for a running task to finish. A slot is occupied from acceptance
// until the task returns, so saturation is judged on work in flight, not
// on whether a worker happens to be parked at its receive.
func (p *Pool) Submit(ctx context.Context, fn Task) error {
	if fn == nil {
		return errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if p.ctx.Err() != nil {
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool closed"))
	}
	if !p.reserve() {
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool at capacity"))
	}
	p.wg.Add(1)
	select {
	case <-p.ctx.Done():
		p.inflight.Add(-1)
		p.wg.Done()
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool closed"))
	case <-ctx.Done():
		p.inflight.Add(-1)
		p.wg.Done()
		return fmt.Errorf("submit context: %w", ctx.Err())
	case p.jobs <- job{ctx: ctx, fn: fn}:
		return nil
	}
}

func (p *Pool) reserve() bool {
	for {
		n := p.inflight.Load()
		if n >= p.slots {
			return false
		}
		if p.inflight.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Close stops accepting new tasks and cancels idle workers. The jobs
// channel is never closed; blocked submitters unblock through the pool
// context instead, so a Submit racing Close cannot panic.
func (p *Pool) Close() {
	p.once.Do(p.cancel)
}

// Shutdown waits for in-flight tasks to complete or until the context expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (p *Pool) worker() {
	for {
		select {
		case <-p.ctx.Done():
			p.drain()
			return
		case job := <-p.jobs:
			p.execute(job)
		}
	}
}

// drain runs tasks that were accepted before Close so Shutdown's wait
// cannot leak them.
func (p *Pool) drain() {
	for {
		select {
		case job := <-p.jobs:
			p.execute(job)
		default:
			return
		}
	}
}

func (p *Pool) execute(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = p.ctx
	}
	p.run(ctx, j.fn)
}

func (p *Pool) run(ctx context.Context, fn Task) {
	defer p.wg.Done()
	defer p.inflight.Add(-1)
	defer func() {
		// Keep the worker alive across task panics; failed refreshes are
		// reported by the task itself.
		_ = recover()
	}()
	_ = fn(ctx)
}
