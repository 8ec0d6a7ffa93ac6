// Package inference implements the model-serving runtime: it loads model
// instances through a pluggable Loader, serves single and batched
// predictions under a per-model concurrency cap, and runs a bounded FIFO
// queue per model for asynchronous requests. A model that fails too many
// inferences in a row is marked unhealthy and refuses work until an
// operator clears it; a failed inference never unloads the instance.
package inference

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/ml/registry"
)

// Instance is one loaded, callable model.
type Instance interface {
	Predict(ctx context.Context, input any) (any, error)
	Close() error
}

// Loader materializes an Instance from a registry version. What the
// instance physically is (a compiled script, an ONNX session, a remote
// handle) is the loader's business.
type Loader interface {
	Load(ctx context.Context, version *registry.Version) (Instance, error)
}

// Resolver picks the version to serve for a model name. The registry's
// GetProduction is the normal implementation.
type Resolver func(ctx context.Context, name string) (*registry.Version, error)

// Config bounds the runtime's per-model resources.
type Config struct {
	MaxConcurrency int           // concurrent inferences per model
	QueueDepth     int           // queued requests per model before rejection
	UnhealthyAfter int           // consecutive failures before the model is marked unhealthy
	DefaultTimeout time.Duration // applied to queued requests without a deadline
}

func (c *Config) fill() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 4
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 64
	}
	if c.UnhealthyAfter <= 0 {
		c.UnhealthyAfter = 10
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
}

// Observer is notified after every inference attempt; the performance
// tracker subscribes here.
type Observer func(modelName string, latency time.Duration, success bool)

type job struct {
	ctx     context.Context
	cleanup context.CancelFunc
	input   any
	future  *Future
}

func (j *job) done() {
	if j.cleanup != nil {
		j.cleanup()
	}
}

// Future is the completion handle QueueInfer returns.
type Future struct {
	ch chan futureResult
}

type futureResult struct {
	value any
	err   error
}

// Await blocks until the inference completes or ctx is cancelled.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case r := <-f.ch:
		return r.value, r.err
	case <-ctx.Done():
		return nil, apperrors.Cancelled("inference")
	}
}

type model struct {
	name    string
	version *registry.Version
	inst    Instance

	queue chan *job
	sem   chan struct{}
	stop  chan struct{}
	wg    sync.WaitGroup

	mu           sync.Mutex
	consecutive  int
	unhealthy    bool
	totalServed  int64
	totalFailed  int64
}

// Stats is a point-in-time snapshot of one loaded model.
type Stats struct {
	Name          string `json:"name"`
	VersionNumber int    `json:"version"`
	QueueLength   int    `json:"queueLength"`
	Unhealthy     bool   `json:"unhealthy"`
	Served        int64  `json:"served"`
	Failed        int64  `json:"failed"`
}

// Runtime serves inferences for loaded models.
type Runtime struct {
	cfg      Config
	loader   Loader
	resolver Resolver
	log      *zap.Logger
	observer Observer

	mu     sync.RWMutex
	models map[string]*model
}

// New constructs a Runtime. observer may be nil.
func New(cfg Config, loader Loader, resolver Resolver, log *zap.Logger, observer Observer) *Runtime {
	cfg.fill()
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{
		cfg:      cfg,
		loader:   loader,
		resolver: resolver,
		log:      log,
		observer: observer,
		models:   make(map[string]*model),
	}
}

// LoadModel resolves and loads the serving version for name. Loading an
// already-loaded model is a no-op.
func (r *Runtime) LoadModel(ctx context.Context, name string) error {
	r.mu.RLock()
	_, ok := r.models[name]
	r.mu.RUnlock()
	if ok {
		return nil
	}

	version, err := r.resolver(ctx, name)
	if err != nil {
		return err
	}
	inst, err := r.loader.Load(ctx, version)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "loading model instance", err).
			WithDetail("model", name).WithDetail("version", version.Number)
	}

	m := &model{
		name:    name,
		version: version,
		inst:    inst,
		queue:   make(chan *job, r.cfg.QueueDepth),
		sem:     make(chan struct{}, r.cfg.MaxConcurrency),
		stop:    make(chan struct{}),
	}

	r.mu.Lock()
	if _, raced := r.models[name]; raced {
		r.mu.Unlock()
		_ = inst.Close()
		return nil
	}
	r.models[name] = m
	r.mu.Unlock()

	for i := 0; i < r.cfg.MaxConcurrency; i++ {
		m.wg.Add(1)
		go r.drainQueue(m)
	}
	r.log.Info("model loaded", zap.String("model", name), zap.Int("version", version.Number))
	return nil
}

// UnloadModel stops the model's queue workers and closes its instance.
func (r *Runtime) UnloadModel(name string) error {
	r.mu.Lock()
	m, ok := r.models[name]
	if ok {
		delete(r.models, name)
	}
	r.mu.Unlock()
	if !ok {
		return apperrors.NotFound("model", name)
	}

	close(m.stop)
	m.wg.Wait()

	// Fail anything still sitting in the queue.
	for {
		select {
		case j := <-m.queue:
			j.done()
			j.future.ch <- futureResult{err: apperrors.Cancelled("inference")}
		default:
			err := m.inst.Close()
			r.log.Info("model unloaded", zap.String("model", name))
			return err
		}
	}
}

// IsLoaded reports whether name is currently loaded.
func (r *Runtime) IsLoaded(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.models[name]
	return ok
}

func (r *Runtime) lookup(name string) (*model, error) {
	r.mu.RLock()
	m, ok := r.models[name]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("model", name)
	}
	return m, nil
}

// Infer runs one synchronous prediction, respecting the per-model
// concurrency cap.
func (r *Runtime) Infer(ctx context.Context, name string, input any) (any, error) {
	m, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if m.isUnhealthy() {
		return nil, apperrors.ModelUnhealthy(name)
	}

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, apperrors.Cancelled("inference")
	}
	defer func() { <-m.sem }()

	return r.predict(ctx, m, input)
}

// InferBatch runs the batch sequentially under one concurrency slot,
// stopping at the first failure.
func (r *Runtime) InferBatch(ctx context.Context, name string, batch []any) ([]any, error) {
	m, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if m.isUnhealthy() {
		return nil, apperrors.ModelUnhealthy(name)
	}

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, apperrors.Cancelled("inference")
	}
	defer func() { <-m.sem }()

	outputs := make([]any, 0, len(batch))
	for _, input := range batch {
		out, err := r.predict(ctx, m, input)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// QueueInfer enqueues one prediction on the model's FIFO queue, returning a
// Future. A full queue rejects immediately with queueFull.
func (r *Runtime) QueueInfer(ctx context.Context, name string, input any) (*Future, error) {
	m, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if m.isUnhealthy() {
		return nil, apperrors.ModelUnhealthy(name)
	}

	f := &Future{ch: make(chan futureResult, 1)}
	j := &job{ctx: ctx, input: input, future: f}
	if _, ok := ctx.Deadline(); !ok {
		// Queued work must not wait forever if the caller abandons it.
		j.ctx, j.cleanup = context.WithTimeout(context.WithoutCancel(ctx), r.cfg.DefaultTimeout)
	}

	select {
	case m.queue <- j:
		return f, nil
	default:
		j.done()
		return nil, apperrors.QueueFull(name)
	}
}

func (r *Runtime) drainQueue(m *model) {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			return
		case j := <-m.queue:
			if m.isUnhealthy() {
				j.done()
				j.future.ch <- futureResult{err: apperrors.ModelUnhealthy(m.name)}
				continue
			}
			// The cap is shared with the synchronous path; queued work
			// waits its turn behind in-flight Infer calls.
			select {
			case m.sem <- struct{}{}:
			case <-m.stop:
				j.done()
				j.future.ch <- futureResult{err: apperrors.Cancelled("inference")}
				return
			}
			out, err := r.predict(j.ctx, m, j.input)
			<-m.sem
			j.done()
			j.future.ch <- futureResult{value: out, err: err}
		}
	}
}

func (r *Runtime) predict(ctx context.Context, m *model, input any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Cancelled("inference")
	}

	start := time.Now()
	out, err := m.inst.Predict(ctx, input)
	latency := time.Since(start)

	success := err == nil
	if r.observer != nil {
		r.observer(m.name, latency, success)
	}
	if err != nil && ctx.Err() != nil {
		// Cancellation reflects the caller, not the model; it never counts
		// toward the unhealthy threshold.
		return nil, apperrors.Cancelled("inference")
	}
	m.record(success, r.cfg.UnhealthyAfter)

	if err != nil {
		if m.isUnhealthy() {
			r.log.Warn("model marked unhealthy",
				zap.String("model", m.name), zap.Int("consecutive_failures", r.cfg.UnhealthyAfter))
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, "inference failed", err).WithDetail("model", m.name)
	}
	return out, nil
}

func (m *model) record(success bool, threshold int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalServed++
	if success {
		m.consecutive = 0
		return
	}
	m.totalFailed++
	m.consecutive++
	if m.consecutive >= threshold {
		m.unhealthy = true
	}
}

func (m *model) isUnhealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unhealthy
}

// ClearUnhealthy resets the failure state for name, re-admitting traffic.
func (r *Runtime) ClearUnhealthy(name string) error {
	m, err := r.lookup(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.unhealthy = false
	m.consecutive = 0
	m.mu.Unlock()
	r.log.Info("model health cleared", zap.String("model", name))
	return nil
}

// ModelStats snapshots one loaded model, or notFound.
func (r *Runtime) ModelStats(name string) (Stats, error) {
	m, err := r.lookup(name)
	if err != nil {
		return Stats{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Name:          m.name,
		VersionNumber: m.version.Number,
		QueueLength:   len(m.queue),
		Unhealthy:     m.unhealthy,
		Served:        m.totalServed,
		Failed:        m.totalFailed,
	}, nil
}

// LoadedModels lists stats for every loaded model.
func (r *Runtime) LoadedModels() []Stats {
	r.mu.RLock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	r.mu.RUnlock()

	out := make([]Stats, 0, len(names))
	for _, name := range names {
		if s, err := r.ModelStats(name); err == nil {
			out = append(out, s)
		}
	}
	return out
}
