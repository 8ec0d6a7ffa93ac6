package perftracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackAndAggregate(t *testing.T) {
	tr := New(Config{}, nil)
	defer tr.Close()
	ctx := context.Background()

	tr.TrackInference("fraud", 10, true)
	tr.TrackInference("fraud", 20, true)
	tr.TrackInference("fraud", 30, false)
	tr.Flush()
	time.Sleep(10 * time.Millisecond)

	agg := tr.AggregateFor(ctx, "fraud", Window1m)
	assert.Equal(t, int64(3), agg.Count)
	assert.Equal(t, int64(2), agg.Successes)
	assert.Equal(t, int64(1), agg.Failures)
	assert.Equal(t, int64(0), agg.Overflow)
	assert.InDelta(t, 20.0, agg.MeanMs, 0.001)
	assert.InDelta(t, 1.0/3.0, agg.ErrorRate, 0.001)
}

func TestCountEqualsSuccessesPlusFailuresPlusOverflow(t *testing.T) {
	tr := New(Config{BufferSize: 2}, nil)
	ctx := context.Background()

	// Stop the drain loop so the bounded buffer actually overflows.
	tr.Close()
	for i := 0; i < 10; i++ {
		tr.TrackInference("fraud", 5, i%2 == 0)
	}

	for _, w := range Windows() {
		agg := tr.AggregateFor(ctx, "fraud", w)
		assert.Equal(t, agg.Count, agg.Successes+agg.Failures+agg.Overflow,
			"window %s accounting identity", w)
	}

	agg := tr.AggregateFor(ctx, "fraud", Window1m)
	assert.Equal(t, int64(8), agg.Overflow, "2 buffered, 8 absorbed by overflow")
}

func TestWindowsAreIndependentPerModel(t *testing.T) {
	tr := New(Config{}, nil)
	defer tr.Close()
	ctx := context.Background()

	tr.TrackInference("a", 10, true)
	tr.TrackInference("b", 99, false)
	tr.Flush()
	time.Sleep(10 * time.Millisecond)

	aggA := tr.AggregateFor(ctx, "a", Window5m)
	aggB := tr.AggregateFor(ctx, "b", Window5m)
	assert.Equal(t, int64(1), aggA.Count)
	assert.Equal(t, int64(0), aggA.Failures)
	assert.Equal(t, int64(1), aggB.Failures)
}

func TestAllWindows(t *testing.T) {
	tr := New(Config{}, nil)
	defer tr.Close()

	tr.TrackInference("fraud", 12, true)
	tr.Flush()
	time.Sleep(10 * time.Millisecond)

	aggs := tr.AllWindows(context.Background(), "fraud")
	require.Len(t, aggs, 4)
	for _, agg := range aggs {
		assert.Equal(t, int64(1), agg.Count, "window %s", agg.Window)
	}
}

func TestTrackIsNonBlocking(t *testing.T) {
	tr := New(Config{BufferSize: 1}, nil)
	tr.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			tr.TrackInference("fraud", 1, true)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TrackInference blocked under pressure")
	}
}
