package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAttemptBudget(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(), func() error {
		attempts++
		return errors.New("still down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	attempts := 0
	sentinel := errors.New("bad input")
	err := Retry(context.Background(), fastRetry(), func() error {
		attempts++
		return Permanent(sentinel)
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := Retry(ctx, RetryConfig{MaxAttempts: 10, InitialInterval: time.Minute, MaxInterval: time.Minute}, func() error {
		attempts++
		return errors.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 2, OpenFor: time.Minute})

	fail := func() error { return errors.New("down") }
	require.Error(t, b.Do(fail))
	require.Error(t, b.Do(fail))

	assert.True(t, b.Open())
	err := b.Do(func() error { return nil })
	require.Error(t, err, "open circuit rejects without calling through")
}

func TestBreaker_StaysClosedOnSuccess(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test"})
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Do(func() error { return nil }))
	}
	assert.False(t, b.Open())
}
