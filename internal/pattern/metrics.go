package pattern

import (
	"github.com/prometheus/client_golang/prometheus"
)

// cacheMetrics contains Prometheus metrics for a pattern cache. A nil
// receiver is valid and records nothing, so caches without metrics stay
// cheap.
type cacheMetrics struct {
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	cacheSize   prometheus.Gauge
}

// NewCacheMetrics creates cache metrics registered on reg.
func NewCacheMetrics(namespace string, reg prometheus.Registerer) *cacheMetrics {
	if namespace == "" {
		namespace = "steer"
	}

	m := &cacheMetrics{
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pattern",
				Name:      "cache_hits_total",
				Help:      "Total number of pattern cache hits",
			},
		),
		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pattern",
				Name:      "cache_misses_total",
				Help:      "Total number of pattern cache misses",
			},
		),
		cacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pattern",
				Name:      "cache_size",
				Help:      "Current number of entries in the pattern cache",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.cacheHits, m.cacheMisses, m.cacheSize)
	}

	return m
}

func (m *cacheMetrics) hit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *cacheMetrics) miss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *cacheMetrics) size(n int) {
	if m != nil {
		m.cacheSize.Set(float64(n))
	}
}
