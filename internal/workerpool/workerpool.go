// Package workerpool implements the bounded pool for CPU-bound jobs: a
// shared queue, per-worker goroutines that restart on crash with
// exponential backoff, and cancellable submissions. A
// golang.org/x/time/rate limiter throttles how fast Submit admits new
// work; a submission over the rate is rejected like one against a full
// queue.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ErrRejected is returned by Submit when the queue is full.
var ErrRejected = errors.New("workerpool: queue full, job rejected")

// ErrCancelled is returned by a Handle's Result when the job was cancelled
// before or during execution.
var ErrCancelled = errors.New("workerpool: job cancelled")

// Job is a pure function over serializable input yielding serializable
// output or an error; it must not touch shared mutable state directly.
type Job func(ctx context.Context, input any) (any, error)

type task struct {
	job    Job
	input  any
	ctx    context.Context
	cancel context.CancelFunc
	result chan result
}

type result struct {
	value any
	err   error
}

// Handle represents an in-flight or completed submission.
type Handle struct {
	t *task
}

// Result blocks until a worker is done with the job. A job whose context
// ends (expiry or Cancel) before or while it runs yields ErrCancelled once
// a worker has picked it up.
func (h *Handle) Result() (any, error) {
	r := <-h.t.result
	return r.value, r.err
}

// Cancel signals the job to stop; the worker observes it at its next safe
// point (before starting, or honoring ctx.Done() within the job body).
func (h *Handle) Cancel() { h.t.cancel() }

// Config configures the pool.
type Config struct {
	Size           int // default = cpuCount-1
	QueueDepth     int
	MaxRestarts    int // crashes within Window before a worker slot stops reforking
	RestartWindow  time.Duration
	RestartBackoff time.Duration
}

// Stats reports pool health, exported to Prometheus by the caller.
type Stats struct {
	Active       int32
	QueueDepth   int
	Restarts     int64
	Escalations  int64
}

// Pool is the bounded worker pool.
type Pool struct {
	jobs       chan *task
	limiter    *rate.Limiter
	size       int
	maxRestart int
	restartWin time.Duration
	backoff    time.Duration

	active      int32
	restarts    int64
	escalations int64

	mu       sync.Mutex
	crashLog map[int][]time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs and starts a Pool with cfg.Size workers (default
// runtime.NumCPU()-1, floor 1).
func New(cfg Config) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = runtime.NumCPU() - 1
		if cfg.Size < 1 {
			cfg.Size = 1
		}
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = cfg.Size * 8
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = 5
	}
	if cfg.RestartWindow <= 0 {
		cfg.RestartWindow = 60 * time.Second
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = 2 * time.Second
	}

	p := &Pool{
		jobs:       make(chan *task, cfg.QueueDepth),
		limiter:    rate.NewLimiter(rate.Limit(cfg.Size*100), cfg.Size*200),
		size:       cfg.Size,
		maxRestart: cfg.MaxRestarts,
		restartWin: cfg.RestartWindow,
		backoff:    cfg.RestartBackoff,
		crashLog:   make(map[int][]time.Time),
		stopCh:     make(chan struct{}),
	}

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
	return p
}

// Submit enqueues job for background execution. If the queue is full the
// caller sees ErrRejected immediately; submission itself is throttled by a
// token-bucket limiter so a burst of rejections doesn't itself become a hot
// loop against the queue.
func (p *Pool) Submit(ctx context.Context, job Job, input any, timeout time.Duration) (*Handle, error) {
	select {
	case <-p.stopCh:
		return nil, ErrRejected
	default:
	}
	if !p.limiter.Allow() {
		return nil, ErrRejected
	}

	jobCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}

	t := &task{job: job, input: input, ctx: jobCtx, cancel: cancel, result: make(chan result, 1)}

	select {
	case p.jobs <- t:
		return &Handle{t: t}, nil
	default:
		cancel()
		return nil, ErrRejected
	}
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()
	for {
		if p.slotEscalated(id) {
			return
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.recordCrash(id)
					p.mu.Lock()
					n := len(p.crashLog[id])
					p.mu.Unlock()
					time.Sleep(p.backoff << (n - 1))
				}
			}()
			p.workerLoop(id)
		}()
		select {
		case <-p.stopCh:
			return
		default:
		}
	}
}

func (p *Pool) workerLoop(id int) {
	for {
		select {
		case <-p.stopCh:
			return
		case t, ok := <-p.jobs:
			if !ok {
				return
			}
			p.execute(t)
		}
	}
}

func (p *Pool) execute(t *task) {
	atomic.AddInt32(&p.active, 1)
	defer atomic.AddInt32(&p.active, -1)

	select {
	case <-t.ctx.Done():
		t.result <- result{err: fmt.Errorf("%w: %v", ErrCancelled, t.ctx.Err())}
		return
	default:
	}

	value, err := t.job(t.ctx, t.input)
	if t.ctx.Err() != nil {
		t.result <- result{err: fmt.Errorf("%w: %v", ErrCancelled, t.ctx.Err())}
		return
	}
	t.result <- result{value: value, err: err}
}

func (p *Pool) recordCrash(id int) {
	atomic.AddInt64(&p.restarts, 1)
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := now.Add(-p.restartWin)
	log := p.crashLog[id]
	kept := log[:0]
	for _, t := range log {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	p.crashLog[id] = kept
}

func (p *Pool) slotEscalated(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.crashLog[id]) >= p.maxRestart {
		atomic.AddInt64(&p.escalations, 1)
		return true
	}
	return false
}

// Stats reports a snapshot of pool health.
func (p *Pool) Stats() Stats {
	return Stats{
		Active:      atomic.LoadInt32(&p.active),
		QueueDepth:  len(p.jobs),
		Restarts:    atomic.LoadInt64(&p.restarts),
		Escalations: atomic.LoadInt64(&p.escalations),
	}
}

// Shutdown stops accepting new work and waits for running jobs to finish.
func (p *Pool) Shutdown() {
	close(p.stopCh)
	p.wg.Wait()
}
