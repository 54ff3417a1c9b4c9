// Package upstream implements the resolver's upstream load balancer:
// per-upstream health tracking, circuit breaking, adaptive timeouts, and
// the five selection strategies the core offers (spec Section 4.5).
//
// Upstreams are represented by a stable id and flat, id-indexed state
// rather than cyclic back-pointers between the balancer, health monitor,
// breaker, and timeout manager — each only ever needs the id of its peer.
package upstream

import (
	"sync"
	"sync/atomic"
	"time"
)

// Location is a geographic coordinate used by the geo_score term and the
// "geographic" strategy.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Record is an Upstream: static configuration plus the rolling counters
// the balancer scores on. Counters are updated with atomics so reads from
// the scoring path never block a concurrent writer.
type Record struct {
	ID       string
	Address  string
	Port     int
	Weight   float64
	Location *Location // nil means "no location data"
	Capacity int       // max outstanding requests the scorer normalises against

	Specialisations map[uint16]struct{} // qtypes this upstream is tuned for

	totalQueries      atomic.Uint64
	successfulQueries atomic.Uint64
	failedQueries     atomic.Uint64
	outstanding       atomic.Int64

	latencyMu  sync.Mutex
	avgLatency float64 // milliseconds, exponential moving average weight 0.5

	breaker *breaker
	timeout *adaptiveTimeout
}

// NewRecord builds a Record from cfg with fresh breaker and adaptive
// timeout state.
func NewRecord(cfg UpstreamSpec) *Record {
	weight := cfg.Weight
	if weight <= 0 {
		weight = 1.0
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 100
	}
	spec := make(map[uint16]struct{}, len(cfg.Specialisations))
	for _, t := range cfg.Specialisations {
		spec[t] = struct{}{}
	}
	return &Record{
		ID:              cfg.ID,
		Address:         cfg.Address,
		Port:            cfg.Port,
		Weight:          weight,
		Location:        cfg.Location,
		Capacity:        capacity,
		Specialisations: spec,
		breaker:         newBreaker(),
		timeout:         newAdaptiveTimeout(),
	}
}

// SuccessRate returns successful/total queries, or 1.0 with no history
// (an upstream with no history hasn't proven unhealthy yet).
func (r *Record) SuccessRate() float64 {
	total := r.totalQueries.Load()
	if total == 0 {
		return 1.0
	}
	return float64(r.successfulQueries.Load()) / float64(total)
}

// AvgLatencyMS returns the current exponential moving average latency.
func (r *Record) AvgLatencyMS() float64 {
	r.latencyMu.Lock()
	defer r.latencyMu.Unlock()
	return r.avgLatency
}

// Outstanding returns the current number of in-flight requests.
func (r *Record) Outstanding() int64 {
	return r.outstanding.Load()
}

// recordAttempt updates counters, the latency moving average, the circuit
// breaker, and the adaptive timeout for one completed attempt.
func (r *Record) recordAttempt(success bool, duration time.Duration) {
	r.totalQueries.Add(1)
	if success {
		r.successfulQueries.Add(1)
	} else {
		r.failedQueries.Add(1)
	}

	sampleMS := float64(duration.Milliseconds())
	r.latencyMu.Lock()
	if r.avgLatency == 0 {
		r.avgLatency = sampleMS
	} else {
		r.avgLatency = (r.avgLatency + sampleMS) / 2
	}
	r.latencyMu.Unlock()

	r.breaker.record(success)
	r.timeout.update(success, duration)
}

// beginAttempt marks one more outstanding request; the returned func must
// be deferred to release it.
func (r *Record) beginAttempt() func() {
	r.outstanding.Add(1)
	return func() { r.outstanding.Add(-1) }
}

// healthy reports whether r passes the health filter applied before
// strategy scoring: success_rate >= 0.8, avg_latency_ms <= 500, and
// outstanding < 0.9*capacity.
func (r *Record) healthy() bool {
	if r.SuccessRate() < 0.8 {
		return false
	}
	if r.AvgLatencyMS() > 500 {
		return false
	}
	if float64(r.Outstanding()) >= 0.9*float64(r.Capacity) {
		return false
	}
	return true
}

// Healthy reports whether this upstream currently passes the health
// filter applied before strategy scoring. Exported for the admin status
// surface; the balancer itself uses the unexported healthy().
func (r *Record) Healthy() bool {
	return r.healthy()
}

// BreakerState returns the circuit breaker's current state name, one of
// "closed", "open", "half_open".
func (r *Record) BreakerState() string {
	return r.breaker.stateName()
}
