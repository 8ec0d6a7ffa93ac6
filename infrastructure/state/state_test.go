package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	require.NoError(t, backend.Save(ctx, "session:a", []byte(`{"id":"a"}`)))

	data, err := backend.Load(ctx, "session:a")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"a"}`, string(data))

	require.NoError(t, backend.Delete(ctx, "session:a"))
	_, err = backend.Load(ctx, "session:a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackend_LoadCopiesData(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(ctx, "k", []byte("abc")))

	data, err := backend.Load(ctx, "k")
	require.NoError(t, err)
	data[0] = 'x'

	again, err := backend.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again), "callers must not alias stored bytes")
}

func TestMemoryBackend_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(ctx, "session:a", []byte("1")))
	require.NoError(t, backend.Save(ctx, "session:b", []byte("2")))
	require.NoError(t, backend.Save(ctx, "model:c", []byte("3")))

	keys, err := backend.List(ctx, "session:")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestCompareAndSwap_Succeeds(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(ctx, "k", []byte("old")))

	swapped, err := backend.CompareAndSwap(ctx, "k", []byte("old"), []byte("new"))
	require.NoError(t, err)
	assert.True(t, swapped)

	data, err := backend.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestCompareAndSwap_RejectsStaleOld(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(ctx, "k", []byte("current")))

	swapped, err := backend.CompareAndSwap(ctx, "k", []byte("stale"), []byte("new"))
	require.NoError(t, err)
	assert.False(t, swapped)

	data, err := backend.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "current", string(data), "losing swap leaves the record untouched")
}

func TestCompareAndSwap_InsertOnly(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	swapped, err := backend.CompareAndSwap(ctx, "k", nil, []byte("v1"))
	require.NoError(t, err)
	assert.True(t, swapped, "nil old inserts when the key is absent")

	swapped, err = backend.CompareAndSwap(ctx, "k", nil, []byte("v2"))
	require.NoError(t, err)
	assert.False(t, swapped, "nil old refuses when the key exists")

	data, err := backend.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestCompareAndSwap_ConditionalDelete(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(ctx, "k", []byte("v")))

	swapped, err := backend.CompareAndSwap(ctx, "k", []byte("other"), nil)
	require.NoError(t, err)
	assert.False(t, swapped)

	swapped, err = backend.CompareAndSwap(ctx, "k", []byte("v"), nil)
	require.NoError(t, err)
	assert.True(t, swapped)

	_, err = backend.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompareAndSwap_NoLostUpdates(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(ctx, "k", []byte("0")))

	// Two writers race from the same snapshot; exactly one may win.
	old, err := backend.Load(ctx, "k")
	require.NoError(t, err)

	first, err := backend.CompareAndSwap(ctx, "k", old, []byte("a"))
	require.NoError(t, err)
	second, err := backend.CompareAndSwap(ctx, "k", old, []byte("b"))
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}
