package workerpool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerosuite/platform/internal/workerpool"
)

func TestPool_SubmitAndResult(t *testing.T) {
	p := workerpool.New(workerpool.Config{Size: 2, QueueDepth: 4})
	defer p.Shutdown()

	h, err := p.Submit(context.Background(), func(ctx context.Context, input any) (any, error) {
		n := input.(int)
		return n * 2, nil
	}, 21, time.Second)
	require.NoError(t, err)

	v, err := h.Result()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestPool_RejectsWhenQueueFull(t *testing.T) {
	p := workerpool.New(workerpool.Config{Size: 1, QueueDepth: 1})
	defer p.Shutdown()

	block := make(chan struct{})
	_, err := p.Submit(context.Background(), func(ctx context.Context, input any) (any, error) {
		<-block
		return nil, nil
	}, nil, 0)
	require.NoError(t, err)

	// Fill the queue behind the blocked worker.
	for i := 0; i < 50; i++ {
		_, err := p.Submit(context.Background(), func(ctx context.Context, input any) (any, error) {
			return nil, nil
		}, nil, 0)
		if errors.Is(err, workerpool.ErrRejected) {
			close(block)
			return
		}
	}
	close(block)
	t.Fatal("expected a rejection once the queue saturated")
}

func TestPool_CancelStopsJobWaiting(t *testing.T) {
	p := workerpool.New(workerpool.Config{Size: 1, QueueDepth: 4})
	defer p.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	h, err := p.Submit(ctx, func(ctx context.Context, input any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil, 0)
	require.NoError(t, err)

	cancel()
	_, err = h.Result()
	assert.ErrorIs(t, err, workerpool.ErrCancelled)
}

func TestHashJob_ComputesSHA256(t *testing.T) {
	out, err := workerpool.HashJob(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", out)
}

func TestScriptJob_RunsJavaScriptFunction(t *testing.T) {
	job, err := workerpool.ScriptJob(`function run(input) { return input * 2; }`)
	require.NoError(t, err)

	out, err := job(context.Background(), int64(5))
	require.NoError(t, err)
	assert.EqualValues(t, 10, out)
}
