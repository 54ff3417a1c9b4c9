package admin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ghostferry/resolver/internal/upstream"
)

// Metrics holds the prometheus collectors the admin surface exposes at
// /metrics. Gauges are set on each /stats scrape rather than on every
// cache/upstream operation, keeping the hot query path free of prometheus
// calls.
type Metrics struct {
	cacheEntries    *prometheus.GaugeVec
	upstreamHealthy *prometheus.GaugeVec
	upstreamSuccess *prometheus.GaugeVec
	upstreamLatency *prometheus.GaugeVec
	breakerState    *prometheus.GaugeVec
}

// NewMetrics registers the admin collectors against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer for the process-wide default.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cacheEntries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "resolver",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of entries held per cache tier.",
		}, []string{"tier"}),
		upstreamHealthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "resolver",
			Subsystem: "upstream",
			Name:      "healthy",
			Help:      "1 if the upstream currently passes the health filter, else 0.",
		}, []string{"upstream"}),
		upstreamSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "resolver",
			Subsystem: "upstream",
			Name:      "success_rate",
			Help:      "Rolling success rate of queries sent to the upstream.",
		}, []string{"upstream"}),
		upstreamLatency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "resolver",
			Subsystem: "upstream",
			Name:      "avg_latency_ms",
			Help:      "Exponential moving average latency to the upstream, in milliseconds.",
		}, []string{"upstream"}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "resolver",
			Subsystem: "upstream",
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half_open, 2 open.",
		}, []string{"upstream"}),
	}
}

func (m *Metrics) observeCache(hot, warm, cold int) {
	m.cacheEntries.WithLabelValues("hot").Set(float64(hot))
	m.cacheEntries.WithLabelValues("warm").Set(float64(warm))
	m.cacheEntries.WithLabelValues("cold").Set(float64(cold))
}

func (m *Metrics) observeUpstream(r *upstream.Record) {
	label := r.ID
	if r.Healthy() {
		m.upstreamHealthy.WithLabelValues(label).Set(1)
	} else {
		m.upstreamHealthy.WithLabelValues(label).Set(0)
	}
	m.upstreamSuccess.WithLabelValues(label).Set(r.SuccessRate())
	m.upstreamLatency.WithLabelValues(label).Set(r.AvgLatencyMS())
	m.breakerState.WithLabelValues(label).Set(breakerStateValue(r.BreakerState()))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
