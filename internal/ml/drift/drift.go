// Package drift compares current model input distributions against a
// baseline captured at training time. Numeric features are scored with the
// population stability index or a Kolmogorov-Smirnov statistic over the
// baseline histogram; categorical features with a normalized chi-square.
// Per-feature scores classify into none/low/medium/high severities.
package drift

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/repository"
	"github.com/aerosuite/platform/internal/workerpool"
)

// Method names a drift scoring method.
type Method string

const (
	MethodPSI Method = "psi"
	MethodKS  Method = "ks"
	MethodChi Method = "chi2"
)

// FeatureType classifies a feature for scoring purposes.
type FeatureType string

const (
	FeatureNumeric     FeatureType = "numeric"
	FeatureCategorical FeatureType = "categorical"
)

// Feature is one schema entry.
type Feature struct {
	Name string      `json:"name"`
	Type FeatureType `json:"type"`
}

// Severity classifies a drift score.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Thresholds map scores to severities; a score at or above High is "high",
// and so on down.
type Thresholds struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// DefaultThresholds are the standard cutoffs on the method score.
func DefaultThresholds() Thresholds { return Thresholds{Low: 0.1, Medium: 0.2, High: 0.3} }

func (t Thresholds) classify(score float64) Severity {
	switch {
	case score >= t.High:
		return SeverityHigh
	case score >= t.Medium:
		return SeverityMedium
	case score >= t.Low:
		return SeverityLow
	default:
		return SeverityNone
	}
}

const numericBins = 10

// FeatureBaseline is the captured distribution of one feature.
type FeatureBaseline struct {
	Type           FeatureType        `json:"type"`
	Count          int                `json:"count"`
	Mean           float64            `json:"mean,omitempty"`
	StdDev         float64            `json:"stdDev,omitempty"`
	BinEdges       []float64          `json:"binEdges,omitempty"`
	BinProportions []float64          `json:"binProportions,omitempty"`
	Categories     map[string]float64 `json:"categories,omitempty"`
}

// Baseline is the persisted per-model training distribution.
type Baseline struct {
	ModelID   string                      `json:"modelId"`
	Method    Method                      `json:"method"`
	Features  map[string]*FeatureBaseline `json:"features"`
	CreatedAt time.Time                   `json:"createdAt"`

	version int64
}

// FeatureReport scores one feature in a drift report.
type FeatureReport struct {
	Score    float64  `json:"score"`
	Severity Severity `json:"severity"`
}

// Report is the outcome of one drift detection run.
type Report struct {
	ModelID    string                   `json:"modelId"`
	Method     Method                   `json:"method"`
	Score      float64                  `json:"score"`
	Severity   Severity                 `json:"severity"`
	PerFeature map[string]FeatureReport `json:"perFeature"`
	SampleSize int                      `json:"sampleSize"`
	DetectedAt time.Time                `json:"detectedAt"`
}

// BaselineOptions configures CreateBaseline.
type BaselineOptions struct {
	Schema []Feature
	Method Method
}

// Detector creates baselines and scores current batches against them.
// Baselines persist through the same document store the registry uses;
// scoring optionally offloads to the shared worker pool since it is pure
// CPU work over the sample batch.
type Detector struct {
	store      repository.Store
	pool       *workerpool.Pool
	log        *zap.Logger
	thresholds Thresholds
	method     Method
}

// Config configures a Detector.
type Config struct {
	DefaultMethod Method
	Thresholds    Thresholds
	Pool          *workerpool.Pool // nil runs scoring inline
}

// New constructs a Detector over the given baseline store.
func New(store repository.Store, cfg Config, log *zap.Logger) *Detector {
	if cfg.DefaultMethod == "" {
		cfg.DefaultMethod = MethodPSI
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{store: store, pool: cfg.Pool, log: log, thresholds: cfg.Thresholds, method: cfg.DefaultMethod}
}

// CreateBaseline captures the distribution of samples (JSON documents, one
// per observation) under the given feature schema and persists it.
func (d *Detector) CreateBaseline(ctx context.Context, modelID string, samples []string, opts BaselineOptions) (*Baseline, error) {
	if len(samples) == 0 {
		return nil, apperrors.Validation("baseline requires at least one sample")
	}
	if len(opts.Schema) == 0 {
		return nil, apperrors.Validation("baseline requires a feature schema")
	}
	method := opts.Method
	if method == "" {
		method = d.method
	}

	b := &Baseline{
		ModelID:   modelID,
		Method:    method,
		Features:  make(map[string]*FeatureBaseline, len(opts.Schema)),
		CreatedAt: time.Now().UTC(),
	}
	for _, f := range opts.Schema {
		switch f.Type {
		case FeatureNumeric:
			values := numericColumn(samples, f.Name)
			if len(values) == 0 {
				return nil, apperrors.Validation("feature has no numeric values").WithDetail("feature", f.Name)
			}
			b.Features[f.Name] = numericBaseline(values)
		case FeatureCategorical:
			values := categoricalColumn(samples, f.Name)
			if len(values) == 0 {
				return nil, apperrors.Validation("feature has no values").WithDetail("feature", f.Name)
			}
			b.Features[f.Name] = categoricalBaseline(values)
		default:
			return nil, apperrors.Validation("unknown feature type").WithDetail("feature", f.Name)
		}
	}

	if err := d.save(ctx, b); err != nil {
		return nil, err
	}
	d.log.Info("drift baseline created",
		zap.String("model", modelID), zap.Int("samples", len(samples)), zap.String("method", string(method)))
	return b, nil
}

func (d *Detector) save(ctx context.Context, b *Baseline) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return apperrors.Internal("encoding baseline", err)
	}
	if err := d.store.Upsert(ctx, b.ModelID, raw, b.version, b.version+1); err != nil {
		return apperrors.DependencyUnavailable("baseline store", err)
	}
	b.version++
	return nil
}

// GetBaseline loads the stored baseline for modelID.
func (d *Detector) GetBaseline(ctx context.Context, modelID string) (*Baseline, error) {
	row, ok, err := d.store.Get(ctx, modelID)
	if err != nil {
		return nil, apperrors.DependencyUnavailable("baseline store", err)
	}
	if !ok {
		return nil, apperrors.NotFound("drift baseline", modelID)
	}
	b := &Baseline{}
	if err := json.Unmarshal(row.Data, b); err != nil {
		return nil, apperrors.Internal("decoding baseline", err)
	}
	b.version = row.Version
	return b, nil
}

// DetectDrift scores currentSamples against the stored baseline.
func (d *Detector) DetectDrift(ctx context.Context, modelID string, currentSamples []string) (*Report, error) {
	if len(currentSamples) == 0 {
		return nil, apperrors.Validation("drift detection requires current samples")
	}
	b, err := d.GetBaseline(ctx, modelID)
	if err != nil {
		return nil, err
	}

	compute := func(ctx context.Context, _ any) (any, error) {
		return d.score(b, currentSamples), nil
	}

	var out any
	if d.pool != nil {
		handle, err := d.pool.Submit(ctx, compute, nil, 0)
		if err != nil {
			// Pool saturated: scoring is still correct inline, just not
			// offloaded.
			out, _ = compute(ctx, nil)
		} else {
			out, err = handle.Result()
			if err != nil {
				return nil, apperrors.Wrap(apperrors.KindInternal, "drift scoring", err)
			}
		}
	} else {
		out, _ = compute(ctx, nil)
	}

	report := out.(*Report)
	d.log.Info("drift detected",
		zap.String("model", modelID), zap.String("severity", string(report.Severity)),
		zap.Float64("score", report.Score))
	return report, nil
}

func (d *Detector) score(b *Baseline, samples []string) *Report {
	report := &Report{
		ModelID:    b.ModelID,
		Method:     b.Method,
		PerFeature: make(map[string]FeatureReport, len(b.Features)),
		SampleSize: len(samples),
		DetectedAt: time.Now().UTC(),
	}

	for name, fb := range b.Features {
		var score float64
		switch fb.Type {
		case FeatureNumeric:
			values := numericColumn(samples, name)
			if len(values) == 0 {
				continue
			}
			if b.Method == MethodKS {
				score = ksScore(fb, values)
			} else {
				score = psiScore(fb, values)
			}
		case FeatureCategorical:
			values := categoricalColumn(samples, name)
			if len(values) == 0 {
				continue
			}
			score = chiSquareScore(fb, values)
		}
		report.PerFeature[name] = FeatureReport{Score: score, Severity: d.thresholds.classify(score)}
		if score > report.Score {
			report.Score = score
		}
	}
	report.Severity = d.thresholds.classify(report.Score)
	return report
}

func numericColumn(samples []string, field string) []float64 {
	out := make([]float64, 0, len(samples))
	for _, doc := range samples {
		res := gjson.Get(doc, field)
		if res.Exists() && (res.Type == gjson.Number || res.Type == gjson.True || res.Type == gjson.False) {
			out = append(out, res.Float())
		}
	}
	return out
}

func categoricalColumn(samples []string, field string) []string {
	out := make([]string, 0, len(samples))
	for _, doc := range samples {
		res := gjson.Get(doc, field)
		if res.Exists() {
			out = append(out, res.String())
		}
	}
	return out
}

func numericBaseline(values []float64) *FeatureBaseline {
	mean, std := moments(values)
	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		hi = lo + 1
	}

	edges := make([]float64, numericBins+1)
	width := (hi - lo) / numericBins
	for i := range edges {
		edges[i] = lo + width*float64(i)
	}

	counts := make([]float64, numericBins)
	for _, v := range values {
		counts[binFor(edges, v)]++
	}
	props := make([]float64, numericBins)
	for i, c := range counts {
		props[i] = c / float64(len(values))
	}

	return &FeatureBaseline{
		Type:           FeatureNumeric,
		Count:          len(values),
		Mean:           mean,
		StdDev:         std,
		BinEdges:       edges,
		BinProportions: props,
	}
}

func categoricalBaseline(values []string) *FeatureBaseline {
	counts := make(map[string]float64)
	for _, v := range values {
		counts[v]++
	}
	for k := range counts {
		counts[k] /= float64(len(values))
	}
	return &FeatureBaseline{Type: FeatureCategorical, Count: len(values), Categories: counts}
}

func moments(values []float64) (mean, std float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(values)))
	return
}

// binFor places v into the histogram, clamping out-of-range values into the
// edge bins so current batches wider than the baseline still score.
func binFor(edges []float64, v float64) int {
	n := len(edges) - 1
	if v <= edges[0] {
		return 0
	}
	if v >= edges[n] {
		return n - 1
	}
	idx := sort.SearchFloat64s(edges, v) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return idx
}

const epsilon = 1e-4

// psiScore is the population stability index between the baseline bin
// proportions and the current batch's.
func psiScore(fb *FeatureBaseline, values []float64) float64 {
	cur := make([]float64, len(fb.BinProportions))
	for _, v := range values {
		cur[binFor(fb.BinEdges, v)]++
	}
	var psi float64
	for i := range cur {
		c := cur[i]/float64(len(values)) + epsilon
		b := fb.BinProportions[i] + epsilon
		psi += (c - b) * math.Log(c/b)
	}
	return psi
}

// ksScore is the largest CDF gap between baseline and current, evaluated at
// the baseline's bin edges.
func ksScore(fb *FeatureBaseline, values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var maxGap, baseCDF float64
	for i, p := range fb.BinProportions {
		baseCDF += p
		edge := fb.BinEdges[i+1]
		curCDF := float64(sort.SearchFloat64s(sorted, edge)) / float64(len(sorted))
		if gap := math.Abs(baseCDF - curCDF); gap > maxGap {
			maxGap = gap
		}
	}
	return maxGap
}

// chiSquareScore is the chi-square statistic normalized by the sample size
// (phi-squared), keeping categorical scores on the same 0-centered scale
// the severity thresholds expect.
func chiSquareScore(fb *FeatureBaseline, values []string) float64 {
	n := float64(len(values))
	observed := make(map[string]float64)
	for _, v := range values {
		observed[v]++
	}

	categories := make(map[string]struct{})
	for k := range fb.Categories {
		categories[k] = struct{}{}
	}
	for k := range observed {
		categories[k] = struct{}{}
	}

	var chi2 float64
	for k := range categories {
		expected := fb.Categories[k]*n + epsilon
		diff := observed[k] - expected
		chi2 += diff * diff / expected
	}
	return chi2 / n
}
