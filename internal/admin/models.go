// Package admin exposes a read-only HTTP status surface for the resolver:
// health, runtime statistics, cache tier occupancy, and upstream health. It
// carries no configuration-mutation or filtering-control endpoints; those
// belonged to the teacher's management API and are out of scope here.
package admin

import "time"

// StatusResponse is the liveness probe body.
type StatusResponse struct {
	Status string `json:"status"`
}

// CPUStats mirrors the host CPU snapshot taken at request time.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
}

// MemoryStats mirrors the host memory snapshot taken at request time.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// CacheStats reports the three-tier cache's current occupancy.
type CacheStats struct {
	HotEntries  int `json:"hot_entries"`
	WarmEntries int `json:"warm_entries"`
	ColdEntries int `json:"cold_entries"`
}

// UpstreamStats reports one upstream's health as seen by the balancer.
type UpstreamStats struct {
	ID           string  `json:"id"`
	Address      string  `json:"address"`
	Healthy      bool    `json:"healthy"`
	BreakerState string  `json:"breaker_state"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	Outstanding  int64   `json:"outstanding"`
}

// DNSStats reports cumulative query counters.
type DNSStats struct {
	QueriesTotal uint64  `json:"queries_total"`
	QueriesUDP   uint64  `json:"queries_udp"`
	QueriesTCP   uint64  `json:"queries_tcp"`
	ResponsesNX  uint64  `json:"responses_nxdomain"`
	ResponsesErr uint64  `json:"responses_error"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Uptime        string          `json:"uptime"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     time.Time       `json:"start_time"`
	CPU           CPUStats        `json:"cpu"`
	Memory        MemoryStats     `json:"memory"`
	DNS           DNSStats        `json:"dns"`
	Cache         CacheStats      `json:"cache"`
	Upstreams     []UpstreamStats `json:"upstreams"`
}
