package cache

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetrics_ObserveCacheTraffic(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	c, err := NewExactCache(ExactCacheConfig{MaxSize: 10, Metrics: m}, zap.NewNop())
	require.NoError(t, err)

	c.Set("q", "r")
	_, ok := c.Get("q")
	require.True(t, ok)
	_, ok = c.Get("missing")
	require.False(t, ok)

	require.Equal(t, 1.0, testutil.ToFloat64(m.hits.WithLabelValues("exact")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.misses.WithLabelValues("exact")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.size.WithLabelValues("exact")))
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.observeHit("exact")
	m.observeMiss("exact")
	m.setSize("exact", 3)
}
