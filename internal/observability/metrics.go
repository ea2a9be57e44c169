package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the routing engine.
type Metrics struct {
	decisionsTotal  *prometheus.CounterVec
	redirectsTotal  *prometheus.CounterVec
	rewritesTotal   *prometheus.CounterVec
	headersApplied  prometheus.Counter
	middlewareTotal *prometheus.CounterVec
	registry        *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "steer"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of pipeline decisions by kind",
		},
		[]string{"kind"},
	)

	m.redirectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirects_total",
			Help:      "Total number of resolved redirects by status code",
		},
		[]string{"status"},
	)

	m.rewritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrites_total",
			Help:      "Total number of resolved rewrites by phase and target",
		},
		[]string{"phase", "target"},
	)

	m.headersApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "header_rules_applied_total",
			Help:      "Total number of header rule entries applied",
		},
	)

	m.middlewareTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "middleware_executions_total",
			Help:      "Total number of middleware executions by outcome",
		},
		[]string{"outcome"},
	)

	m.registry.MustRegister(
		m.decisionsTotal,
		m.redirectsTotal,
		m.rewritesTotal,
		m.headersApplied,
		m.middlewareTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry. Components with
// their own collectors (e.g. the pattern cache) register here.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDecision records a pipeline decision.
func (m *Metrics) RecordDecision(kind string) {
	m.decisionsTotal.WithLabelValues(kind).Inc()
}

// RecordRedirect records a resolved redirect.
func (m *Metrics) RecordRedirect(status int) {
	m.redirectsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// RecordRewrite records a resolved rewrite.
func (m *Metrics) RecordRewrite(phase string, external bool) {
	target := "internal"
	if external {
		target = "external"
	}
	m.rewritesTotal.WithLabelValues(phase, target).Inc()
}

// RecordHeaderRules records applied header rule entries.
func (m *Metrics) RecordHeaderRules(count int) {
	m.headersApplied.Add(float64(count))
}

// RecordMiddleware records a middleware execution outcome.
func (m *Metrics) RecordMiddleware(outcome string) {
	m.middlewareTotal.WithLabelValues(outcome).Inc()
}
