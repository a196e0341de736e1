package analytics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	require.NoError(t, m.Register(reg))

	// A second registration of the same collectors must be refused.
	assert.Error(t, m.Register(reg))
}

func TestMetrics_ObservePass(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	require.NoError(t, m.Register(reg))

	m.observePass(StatusSuccess, 0.2, 40)
	m.observePass(StatusSuccess, 0.1, 2)
	m.observePass(StatusTimeout, 3, 0)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.passes.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.passes.WithLabelValues(StatusTimeout)))
	assert.Equal(t, 42.0, promtest.ToFloat64(m.events))

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	hist, ok := byName[MetricPassDuration]
	require.True(t, ok)
	require.Len(t, hist.GetMetric(), 1)
	assert.Equal(t, uint64(3), hist.GetMetric()[0].GetHistogram().GetSampleCount())
	assert.InDelta(t, 3.3, hist.GetMetric()[0].GetHistogram().GetSampleSum(), 1e-9)
}

func TestMetrics_ObserveCache(t *testing.T) {
	m := NewMetrics()

	m.observeCache(CacheMiss)
	m.observeCache(CacheHit)
	m.observeCache(CacheHit)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.cache.WithLabelValues(CacheHit)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.cache.WithLabelValues(CacheMiss)))
	assert.Equal(t, 2, promtest.CollectAndCount(m.cache))
}
