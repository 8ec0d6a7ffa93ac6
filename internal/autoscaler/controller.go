// Package autoscaler samples per-worker request rate and p95 latency on a
// fixed schedule and turns sustained threshold breaches into scale-out and
// scale-in intents. The controller only produces intents; executing them is
// the cluster supervisor's (or an external orchestrator's) job.
package autoscaler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aerosuite/platform/internal/eventbus"
	"github.com/aerosuite/platform/internal/logging"
)

// Sample is one observation of the serving tier.
type Sample struct {
	RPS   float64
	P95Ms float64
	At    time.Time
}

// MetricsSource produces samples; RequestTracker is the in-process
// implementation fed by HTTP middleware.
type MetricsSource interface {
	Snapshot() Sample
}

// Direction labels an intent.
type Direction string

const (
	ScaleOut Direction = "scale_out"
	ScaleIn  Direction = "scale_in"
)

// Intent is one scaling decision.
type Intent struct {
	Direction Direction `json:"direction"`
	Delta     int       `json:"delta"`
	Desired   int       `json:"desired"`
	Reason    string    `json:"reason"`
	Sample    Sample    `json:"sample"`
	At        time.Time `json:"at"`
}

// IntentFunc receives every emitted intent.
type IntentFunc func(Intent)

// Config bounds and tunes the controller.
type Config struct {
	Min            int
	Max            int
	UpperRPS       float64
	LowerRPS       float64
	UpperP95Ms     float64
	LowerP95Ms     float64
	SustainTicks   int    // consecutive breaching samples before scale-out
	CoolDownTicks  int    // consecutive calm samples before scale-in
	CronSpec       string // e.g. "@every 10s"
	InitialWorkers int
}

func (c *Config) fill() {
	if c.Min <= 0 {
		c.Min = 1
	}
	if c.Max < c.Min {
		c.Max = c.Min
	}
	if c.SustainTicks <= 0 {
		c.SustainTicks = 3
	}
	if c.CoolDownTicks <= 0 {
		c.CoolDownTicks = 6
	}
	if c.CronSpec == "" {
		c.CronSpec = "@every 10s"
	}
	if c.InitialWorkers <= 0 {
		c.InitialWorkers = c.Min
	}
	if c.InitialWorkers > c.Max {
		c.InitialWorkers = c.Max
	}
}

// Controller runs the sampling loop.
type Controller struct {
	cfg    Config
	source MetricsSource
	bus    *eventbus.Bus
	log    *logging.Logger
	emit   IntentFunc
	cron   *cron.Cron

	mu       sync.Mutex
	desired  int
	hotTicks int
	calmTick int
	history  []Intent
}

// New constructs a Controller. emit may be nil; intents are still published
// on the bus as "autoscale.intent".
func New(cfg Config, source MetricsSource, bus *eventbus.Bus, log *logging.Logger, emit IntentFunc) *Controller {
	cfg.fill()
	return &Controller{
		cfg:     cfg,
		source:  source,
		bus:     bus,
		log:     log,
		emit:    emit,
		desired: cfg.InitialWorkers,
	}
}

// Start begins sampling on the configured schedule.
func (c *Controller) Start() error {
	c.cron = cron.New()
	if _, err := c.cron.AddFunc(c.cfg.CronSpec, func() { c.Tick(context.Background()) }); err != nil {
		return err
	}
	c.cron.Start()
	return nil
}

// Stop halts the sampling loop.
func (c *Controller) Stop() {
	if c.cron != nil {
		ctx := c.cron.Stop()
		<-ctx.Done()
	}
}

// Desired reports the worker count the controller currently wants.
func (c *Controller) Desired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired
}

// History returns the intents emitted so far, newest last.
func (c *Controller) History() []Intent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Intent(nil), c.history...)
}

// Tick takes one sample and emits an intent if the sustain or cool-down
// window just completed. Exposed for tests; the SIGUSR2 handler resizes to
// Desired() without calling Tick.
func (c *Controller) Tick(ctx context.Context) {
	sample := c.source.Snapshot()
	sample.At = time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	hot := sample.RPS > c.cfg.UpperRPS || sample.P95Ms > c.cfg.UpperP95Ms
	calm := sample.RPS < c.cfg.LowerRPS && sample.P95Ms < c.cfg.LowerP95Ms

	if hot {
		c.hotTicks++
		c.calmTick = 0
	} else if calm {
		c.calmTick++
		c.hotTicks = 0
	} else {
		c.hotTicks = 0
		c.calmTick = 0
	}

	switch {
	case c.hotTicks >= c.cfg.SustainTicks && c.desired < c.cfg.Max:
		c.hotTicks = 0
		c.desired++
		c.emitLocked(ctx, Intent{
			Direction: ScaleOut, Delta: 1, Desired: c.desired,
			Reason: "sustained load above upper thresholds", Sample: sample, At: sample.At,
		})
	case c.calmTick >= c.cfg.CoolDownTicks && c.desired > c.cfg.Min:
		c.calmTick = 0
		c.desired--
		c.emitLocked(ctx, Intent{
			Direction: ScaleIn, Delta: -1, Desired: c.desired,
			Reason: "load below lower thresholds through cool-down", Sample: sample, At: sample.At,
		})
	}
}

func (c *Controller) emitLocked(ctx context.Context, intent Intent) {
	c.history = append(c.history, intent)
	if len(c.history) > 100 {
		c.history = c.history[len(c.history)-100:]
	}
	if c.log != nil {
		c.log.LogEvent(ctx, "autoscale.intent", map[string]interface{}{
			"direction": string(intent.Direction),
			"desired":   intent.Desired,
			"rps":       intent.Sample.RPS,
			"p95_ms":    intent.Sample.P95Ms,
		})
	}
	if c.bus != nil {
		c.bus.Publish(ctx, "autoscaler", "autoscale.intent", "", intent)
	}
	if c.emit != nil {
		c.emit(intent)
	}
}

// RequestTracker accumulates request observations from HTTP middleware and
// serves them back as rate/latency samples over a sliding window.
type RequestTracker struct {
	window time.Duration

	mu      sync.Mutex
	entries []requestEntry
}

type requestEntry struct {
	at        time.Time
	latencyMs float64
}

// NewRequestTracker builds a tracker with the given sliding window
// (normally the controller's sampling interval).
func NewRequestTracker(window time.Duration) *RequestTracker {
	if window <= 0 {
		window = 10 * time.Second
	}
	return &RequestTracker{window: window}
}

// Observe records one served request.
func (t *RequestTracker) Observe(latency time.Duration) {
	now := time.Now()
	t.mu.Lock()
	t.entries = append(t.entries, requestEntry{at: now, latencyMs: float64(latency.Milliseconds())})
	t.pruneLocked(now)
	t.mu.Unlock()
}

func (t *RequestTracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.window)
	i := 0
	for ; i < len(t.entries); i++ {
		if t.entries[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		t.entries = append(t.entries[:0], t.entries[i:]...)
	}
}

// Snapshot reports requests-per-second and p95 latency over the window.
func (t *RequestTracker) Snapshot() Sample {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(now)

	n := len(t.entries)
	sample := Sample{At: now}
	if n == 0 {
		return sample
	}
	sample.RPS = float64(n) / t.window.Seconds()

	lats := make([]float64, n)
	for i, e := range t.entries {
		lats[i] = e.latencyMs
	}
	sort.Float64s(lats)
	idx := int(float64(n) * 0.95)
	if idx >= n {
		idx = n - 1
	}
	sample.P95Ms = lats[idx]
	return sample
}
