package drift

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/repository"
	"github.com/aerosuite/platform/internal/workerpool"
)

func normalSamples(rng *rand.Rand, n int, mean, std float64) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf(`{"score": %f}`, mean+std*rng.NormFloat64())
	}
	return out
}

func numericSchema() []Feature {
	return []Feature{{Name: "score", Type: FeatureNumeric}}
}

func TestDetectDrift_MeanShiftIsHighSeverity(t *testing.T) {
	d := New(repository.NewMemoryStore(), Config{}, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))

	_, err := d.CreateBaseline(ctx, "fraud", normalSamples(rng, 10000, 0, 1),
		BaselineOptions{Schema: numericSchema(), Method: MethodPSI})
	require.NoError(t, err)

	report, err := d.DetectDrift(ctx, "fraud", normalSamples(rng, 1000, 0.7, 1))
	require.NoError(t, err)

	assert.Equal(t, SeverityHigh, report.Severity)
	assert.Equal(t, SeverityHigh, report.PerFeature["score"].Severity)
	assert.Greater(t, report.Score, 0.3)
	assert.Equal(t, MethodPSI, report.Method)
}

func TestDetectDrift_SameDistributionIsNone(t *testing.T) {
	d := New(repository.NewMemoryStore(), Config{}, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(2))

	_, err := d.CreateBaseline(ctx, "fraud", normalSamples(rng, 10000, 0, 1),
		BaselineOptions{Schema: numericSchema()})
	require.NoError(t, err)

	report, err := d.DetectDrift(ctx, "fraud", normalSamples(rng, 2000, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, SeverityNone, report.Severity)
	assert.Less(t, report.Score, 0.1)
}

func TestDetectDrift_KSMethod(t *testing.T) {
	d := New(repository.NewMemoryStore(), Config{}, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(3))

	_, err := d.CreateBaseline(ctx, "fraud", normalSamples(rng, 5000, 0, 1),
		BaselineOptions{Schema: numericSchema(), Method: MethodKS})
	require.NoError(t, err)

	shifted, err := d.DetectDrift(ctx, "fraud", normalSamples(rng, 1000, 1.0, 1))
	require.NoError(t, err)
	same, err := d.DetectDrift(ctx, "fraud", normalSamples(rng, 1000, 0, 1))
	require.NoError(t, err)

	assert.Greater(t, shifted.Score, same.Score)
	assert.Equal(t, SeverityHigh, shifted.Severity)
}

func TestDetectDrift_CategoricalChiSquare(t *testing.T) {
	d := New(repository.NewMemoryStore(), Config{}, nil)
	ctx := context.Background()

	baseline := make([]string, 0, 1000)
	for i := 0; i < 1000; i++ {
		region := "emea"
		if i%2 == 0 {
			region = "apac"
		}
		baseline = append(baseline, fmt.Sprintf(`{"region": %q}`, region))
	}
	schema := []Feature{{Name: "region", Type: FeatureCategorical}}
	_, err := d.CreateBaseline(ctx, "router", baseline, BaselineOptions{Schema: schema, Method: MethodChi})
	require.NoError(t, err)

	skewed := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		skewed = append(skewed, `{"region": "emea"}`)
	}
	report, err := d.DetectDrift(ctx, "router", skewed)
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, report.Severity)

	balanced := baseline[:500]
	report, err = d.DetectDrift(ctx, "router", balanced)
	require.NoError(t, err)
	assert.Equal(t, SeverityNone, report.Severity)
}

func TestCreateBaseline_Validation(t *testing.T) {
	d := New(repository.NewMemoryStore(), Config{}, nil)
	ctx := context.Background()

	_, err := d.CreateBaseline(ctx, "m", nil, BaselineOptions{Schema: numericSchema()})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = d.CreateBaseline(ctx, "m", []string{`{"score": 1}`}, BaselineOptions{})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestDetectDrift_NoBaseline(t *testing.T) {
	d := New(repository.NewMemoryStore(), Config{}, nil)
	_, err := d.DetectDrift(context.Background(), "missing", []string{`{"score": 1}`})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestDetectDrift_OffloadsToWorkerPool(t *testing.T) {
	pool := workerpool.New(workerpool.Config{Size: 2, QueueDepth: 8})
	defer pool.Shutdown()

	d := New(repository.NewMemoryStore(), Config{Pool: pool}, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(4))

	_, err := d.CreateBaseline(ctx, "fraud", normalSamples(rng, 1000, 0, 1),
		BaselineOptions{Schema: numericSchema()})
	require.NoError(t, err)

	report, err := d.DetectDrift(ctx, "fraud", normalSamples(rng, 500, 2.0, 1))
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, report.Severity)
}

func TestBaselineRoundTrip(t *testing.T) {
	store := repository.NewMemoryStore()
	d := New(store, Config{}, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(5))

	created, err := d.CreateBaseline(ctx, "fraud", normalSamples(rng, 100, 0, 1),
		BaselineOptions{Schema: numericSchema()})
	require.NoError(t, err)

	loaded, err := d.GetBaseline(ctx, "fraud")
	require.NoError(t, err)
	assert.Equal(t, created.ModelID, loaded.ModelID)
	assert.Equal(t, created.Method, loaded.Method)
	assert.InDelta(t, created.Features["score"].Mean, loaded.Features["score"].Mean, 1e-9)
	assert.Len(t, loaded.Features["score"].BinProportions, numericBins)
}
