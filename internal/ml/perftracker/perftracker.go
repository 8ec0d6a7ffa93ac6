// Package perftracker maintains sliding-window latency and error counters
// per model. Observations flow through a bounded buffer into per-second and
// per-minute ring buckets; aggregates over the 1m/5m/1h/24h windows are
// computed on demand. A full buffer never drops an observation silently:
// the overflow counter absorbs it and is reported inside every aggregate.
package perftracker

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Window names one of the supported sliding windows.
type Window string

const (
	Window1m  Window = "1m"
	Window5m  Window = "5m"
	Window1h  Window = "1h"
	Window24h Window = "24h"
)

// Windows lists every supported window.
func Windows() []Window { return []Window{Window1m, Window5m, Window1h, Window24h} }

func (w Window) duration() time.Duration {
	switch w {
	case Window1m:
		return time.Minute
	case Window5m:
		return 5 * time.Minute
	case Window1h:
		return time.Hour
	case Window24h:
		return 24 * time.Hour
	}
	return time.Minute
}

// Aggregate is the on-demand summary for one (model, window) pair.
type Aggregate struct {
	ModelID    string  `json:"modelId"`
	Window     Window  `json:"window"`
	Count      int64   `json:"count"`
	Successes  int64   `json:"successes"`
	Failures   int64   `json:"failures"`
	Overflow   int64   `json:"overflow"`
	MeanMs     float64 `json:"meanMs"`
	StdDevMs   float64 `json:"stdDevMs"`
	ErrorRate  float64 `json:"errorRate"`
	SumMs      float64 `json:"sumMs"`
	SumSqMs    float64 `json:"sumSqMs"`
}

// bucket accumulates observations for one time slot.
type bucket struct {
	slot     int64 // unix second or minute the bucket currently represents
	count    int64
	failures int64
	sum      float64
	sumSq    float64
}

const (
	secondSlots = 300  // covers the 1m and 5m windows
	minuteSlots = 1440 // covers the 1h and 24h windows
)

type modelSeries struct {
	mu      sync.Mutex
	seconds [secondSlots]bucket
	minutes [minuteSlots]bucket
}

func (s *modelSeries) apply(at time.Time, latencyMs float64, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec := at.Unix()
	sb := &s.seconds[sec%secondSlots]
	if sb.slot != sec {
		*sb = bucket{slot: sec}
	}
	min := sec / 60
	mb := &s.minutes[min%minuteSlots]
	if mb.slot != min {
		*mb = bucket{slot: min}
	}

	for _, b := range []*bucket{sb, mb} {
		b.count++
		b.sum += latencyMs
		b.sumSq += latencyMs * latencyMs
		if !success {
			b.failures++
		}
	}
}

func (s *modelSeries) sum(now time.Time, w Window) (count, failures int64, sum, sumSq float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch w {
	case Window1m, Window5m:
		cutoff := now.Add(-w.duration()).Unix()
		nowSec := now.Unix()
		for i := range s.seconds {
			b := &s.seconds[i]
			if b.slot > cutoff && b.slot <= nowSec {
				count += b.count
				failures += b.failures
				sum += b.sum
				sumSq += b.sumSq
			}
		}
	default:
		cutoff := now.Add(-w.duration()).Unix() / 60
		nowMin := now.Unix() / 60
		for i := range s.minutes {
			b := &s.minutes[i]
			if b.slot > cutoff && b.slot <= nowMin {
				count += b.count
				failures += b.failures
				sum += b.sum
				sumSq += b.sumSq
			}
		}
	}
	return
}

type observation struct {
	modelID   string
	at        time.Time
	latencyMs float64
	success   bool
}

// Tracker ingests observations and serves window aggregates.
type Tracker struct {
	mu     sync.RWMutex
	series map[string]*modelSeries

	buf      chan observation
	overflow map[string]*int64
	ovMu     sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	latencyHist *prometheus.HistogramVec
	failures    *prometheus.CounterVec
	overflowCtr *prometheus.CounterVec
}

// Config sizes the ingestion buffer.
type Config struct {
	BufferSize int
}

// New constructs a Tracker and starts its ingestion loop. Pass a non-nil
// registerer to export the mirror Prometheus series.
func New(cfg Config, reg prometheus.Registerer) *Tracker {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	t := &Tracker{
		series:   make(map[string]*modelSeries),
		buf:      make(chan observation, cfg.BufferSize),
		overflow: make(map[string]*int64),
		done:     make(chan struct{}),
		latencyHist: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "model_inference_latency_ms",
			Help:    "Inference latency per model in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"model"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "model_inference_failures_total",
			Help: "Failed inferences per model.",
		}, []string{"model"}),
		overflowCtr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "model_inference_overflow_total",
			Help: "Observations absorbed by the overflow counter per model.",
		}, []string{"model"}),
	}
	if reg != nil {
		reg.MustRegister(t.latencyHist, t.failures, t.overflowCtr)
	}

	t.wg.Add(1)
	go t.run()
	return t
}

func (t *Tracker) run() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			// Drain what is already buffered before exiting.
			for {
				select {
				case obs := <-t.buf:
					t.seriesFor(obs.modelID).apply(obs.at, obs.latencyMs, obs.success)
				default:
					return
				}
			}
		case obs := <-t.buf:
			t.seriesFor(obs.modelID).apply(obs.at, obs.latencyMs, obs.success)
		}
	}
}

func (t *Tracker) seriesFor(modelID string) *modelSeries {
	t.mu.RLock()
	s, ok := t.series[modelID]
	t.mu.RUnlock()
	if ok {
		return s
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.series[modelID]; ok {
		return s
	}
	s = &modelSeries{}
	t.series[modelID] = s
	return s
}

func (t *Tracker) overflowCounter(modelID string) *int64 {
	t.ovMu.Lock()
	defer t.ovMu.Unlock()
	if t.overflow[modelID] == nil {
		t.overflow[modelID] = new(int64)
	}
	return t.overflow[modelID]
}

// TrackInference records one inference attempt. The call is O(1): it either
// enqueues onto the buffer or bumps the overflow counter.
func (t *Tracker) TrackInference(modelID string, latencyMs float64, success bool) {
	t.latencyHist.WithLabelValues(modelID).Observe(latencyMs)
	if !success {
		t.failures.WithLabelValues(modelID).Inc()
	}

	select {
	case t.buf <- observation{modelID: modelID, at: time.Now(), latencyMs: latencyMs, success: success}:
	default:
		atomic.AddInt64(t.overflowCounter(modelID), 1)
		t.overflowCtr.WithLabelValues(modelID).Inc()
	}
}

// AggregateFor computes the summary for one (model, window) pair.
func (t *Tracker) AggregateFor(ctx context.Context, modelID string, w Window) Aggregate {
	now := time.Now()
	count, failures, sum, sumSq := t.seriesFor(modelID).sum(now, w)
	overflow := atomic.LoadInt64(t.overflowCounter(modelID))

	agg := Aggregate{
		ModelID:   modelID,
		Window:    w,
		Count:     count + overflow,
		Successes: count - failures,
		Failures:  failures,
		Overflow:  overflow,
		SumMs:     sum,
		SumSqMs:   sumSq,
	}
	if count > 0 {
		agg.MeanMs = sum / float64(count)
		variance := sumSq/float64(count) - agg.MeanMs*agg.MeanMs
		if variance > 0 {
			agg.StdDevMs = math.Sqrt(variance)
		}
		agg.ErrorRate = float64(failures) / float64(count)
	}
	return agg
}

// AllWindows returns the aggregate for every supported window.
func (t *Tracker) AllWindows(ctx context.Context, modelID string) []Aggregate {
	out := make([]Aggregate, 0, 4)
	for _, w := range Windows() {
		out = append(out, t.AggregateFor(ctx, modelID, w))
	}
	return out
}

// Flush blocks until every currently buffered observation is applied.
func (t *Tracker) Flush() {
	for len(t.buf) > 0 {
		time.Sleep(time.Millisecond)
	}
}

// Close stops the ingestion loop after draining the buffer.
func (t *Tracker) Close() {
	close(t.done)
	t.wg.Wait()
}
