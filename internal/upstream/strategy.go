package upstream

import "errors"

// ErrNoHealthyUpstream is returned by Select when no candidate passes the
// health filter (and circuit-breaker check).
var ErrNoHealthyUpstream = errors.New("upstream: no healthy upstream available")

// Strategy selects which healthy, closed-breaker upstream to use for one
// query context.
type Strategy string

const (
	StrategyIntelligent       Strategy = "intelligent"
	StrategyWeightedRoundRobin Strategy = "weighted_round_robin"
	StrategyLeastLatency      Strategy = "least_latency"
	StrategyGeographic        Strategy = "geographic"
	StrategyAdaptive          Strategy = "adaptive"
)

// QueryContext carries the per-datagram context the scoring functions
// consult.
type QueryContext struct {
	QType          uint16
	ClientLocation *Location
	RecursionWanted bool
	Priority       int
}

// score computes the composite intelligent/adaptive score for r under ctx.
// 0.25*latency_score + 0.25*success_rate + 0.20*load_score +
// 0.15*geo_score + 0.10*specialisation + 0.05*time_score
func score(r *Record, ctx QueryContext) float64 {
	latencyScore := 1 - clamp01(r.AvgLatencyMS()/1000)
	successRate := r.SuccessRate()
	loadScore := 1 - clamp01(float64(r.Outstanding())/float64(r.Capacity))
	geo := geoScore(ctx.ClientLocation, r.Location)

	specialisation := 0.5
	if _, ok := r.Specialisations[ctx.QType]; ok {
		specialisation = 1.0
	}

	const timeScore = 1.0 // reserved for a future time-of-day term

	return 0.25*latencyScore +
		0.25*successRate +
		0.20*loadScore +
		0.15*geo +
		0.10*specialisation +
		0.05*timeScore
}

// dynamicWeight computes the weighted_round_robin selection weight:
// static_weight * success_rate / (1 + avg_latency_ms).
func dynamicWeight(r *Record) float64 {
	return r.Weight * r.SuccessRate() / (1 + r.AvgLatencyMS())
}

// pickIntelligent scores every candidate and returns the highest; ties are
// broken by the candidate's position in the slice (insertion order).
func pickIntelligent(candidates []*Record, ctx QueryContext) *Record {
	var best *Record
	var bestScore float64
	for _, r := range candidates {
		s := score(r, ctx)
		if best == nil || s > bestScore {
			best = r
			bestScore = s
		}
	}
	return best
}

// pickWeightedRoundRobin performs cumulative-weight roulette selection
// using roll as the [0,1) draw, so the function stays a pure, testable
// unit rather than reaching into a package-level RNG.
func pickWeightedRoundRobin(candidates []*Record, roll float64) *Record {
	if len(candidates) == 0 {
		return nil
	}
	total := 0.0
	for _, r := range candidates {
		total += dynamicWeight(r)
	}
	if total <= 0 {
		return candidates[0]
	}

	target := roll * total
	cumulative := 0.0
	for _, r := range candidates {
		cumulative += dynamicWeight(r)
		if target < cumulative {
			return r
		}
	}
	return candidates[len(candidates)-1]
}

// pickLeastLatency returns the candidate with the lowest avg_latency_ms.
func pickLeastLatency(candidates []*Record) *Record {
	var best *Record
	var bestLatency float64
	for _, r := range candidates {
		lat := r.AvgLatencyMS()
		if best == nil || lat < bestLatency {
			best = r
			bestLatency = lat
		}
	}
	return best
}

// pickGeographic returns the candidate with the highest geo_score.
func pickGeographic(candidates []*Record, ctx QueryContext) *Record {
	var best *Record
	var bestScore float64
	for _, r := range candidates {
		s := geoScore(ctx.ClientLocation, r.Location)
		if best == nil || s > bestScore {
			best = r
			bestScore = s
		}
	}
	return best
}
