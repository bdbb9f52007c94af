package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes cache hit/miss/size series, labeled by cache kind
// ("exact", "semantic", "redis"). All series register on the supplied
// Registerer so tests and multi-engine processes can scope their own
// registries.
type Metrics struct {
	hits   *prometheus.CounterVec
	misses *prometheus.CounterVec
	size   *prometheus.GaugeVec
}

// NewMetrics creates cache metrics registered on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		hits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "memflow",
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		misses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "memflow",
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
		size: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "memflow",
				Name:      "cache_entries",
				Help:      "Current number of cache entries",
			},
			[]string{"cache"},
		),
	}
}

// The observation helpers tolerate a nil receiver so caches can skip the
// metrics wiring entirely.

func (m *Metrics) observeHit(kind string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeMiss(kind string) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(kind).Inc()
}

func (m *Metrics) setSize(kind string, n int) {
	if m == nil {
		return
	}
	m.size.WithLabelValues(kind).Set(float64(n))
}
