package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistry_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test", reg)

	m.RecordHTTPRequest("test", "GET", "/api/inspections", "OK", 12*time.Millisecond)
	m.RecordCacheHit("local")
	m.RecordCacheMiss("shared")
	m.SetCacheDegraded(true)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["http_requests_total"])
	assert.True(t, names["cache_hits_total"])
	assert.True(t, names["cache_degraded"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheDegraded))
	m.SetCacheDegraded(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CacheDegraded))
}

func TestNilRegistererSkipsRegistration(t *testing.T) {
	m := NewWithRegistry("test", nil)
	assert.NotNil(t, m)
	m.RecordError("test", "validation", "create")
}
