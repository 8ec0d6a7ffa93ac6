package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceIDRoundTrip(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-1")
	assert.Equal(t, "trace-1", TraceID(ctx))
}

func TestTraceIDEmptyWithoutContextValue(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}

func TestNewTraceIDUnique(t *testing.T) {
	assert.NotEqual(t, NewTraceID(), NewTraceID())
}

func TestNewDefaultsOnBadLevel(t *testing.T) {
	l := New("test", "not-a-level", "json")
	assert.NotNil(t, l)
}

func TestWithContextCarriesWorkerID(t *testing.T) {
	l := New("test", "debug", "json")
	ctx := WithWorkerID(WithTraceID(context.Background(), "t1"), "3")
	entry := l.WithContext(ctx)
	assert.Equal(t, "t1", entry.Data["trace_id"])
	assert.Equal(t, "3", entry.Data["worker_id"])
}
