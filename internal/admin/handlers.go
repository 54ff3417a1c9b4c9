// @title resolver admin API
// @version 1.0
// @description Read-only status and metrics surface for the resolver.
//
// @license.name MIT
//
// @host localhost:8090
// @BasePath /
package admin

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ghostferry/resolver/internal/cache"
	"github.com/ghostferry/resolver/internal/upstream"
)

// StatsFunc is how the admin handler pulls the live DNS query counters
// without importing the dns server package directly, the same
// decoupling the teacher's management API used for its own stats hook.
type StatsFunc func() DNSStats

// Handler serves the admin status endpoints. It holds read-only references
// into the live pipeline; it never mutates cache, blocklist, or balancer
// state.
type Handler struct {
	startTime time.Time
	cache     *cache.Cache
	balancer  *upstream.Balancer
	statsFn   StatsFunc
	metrics   *Metrics
}

// NewHandler builds a Handler over the running pipeline's components. Any
// of c, bal, statsFn may be nil, in which case its section of the stats
// response is left zero-valued.
func NewHandler(c *cache.Cache, bal *upstream.Balancer, statsFn StatsFunc, m *Metrics) *Handler {
	return &Handler{
		startTime: time.Now(),
		cache:     c,
		balancer:  bal,
		statsFn:   statsFn,
		metrics:   m,
	}
}

// Healthz godoc
// @Summary Liveness probe
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// Stats godoc
// @Summary Runtime statistics
// @Description CPU, memory, cache occupancy, upstream health, DNS counters
// @Produce json
// @Success 200 {object} StatsResponse
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	uptime := time.Since(h.startTime)

	resp := StatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		CPU:           CPUStats{NumCPU: runtime.NumCPU()},
	}

	if vmStat, err := mem.VirtualMemory(); err == nil {
		resp.Memory = MemoryStats{
			TotalMB:     float64(vmStat.Total) / 1024 / 1024,
			UsedMB:      float64(vmStat.Used) / 1024 / 1024,
			UsedPercent: vmStat.UsedPercent,
		}
	}
	if pct, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pct) > 0 {
		resp.CPU.UsedPercent = pct[0]
	}

	if h.cache != nil {
		hot, warm, cold := h.cache.Len()
		resp.Cache = CacheStats{HotEntries: hot, WarmEntries: warm, ColdEntries: cold}
		if h.metrics != nil {
			h.metrics.observeCache(hot, warm, cold)
		}
	}

	if h.balancer != nil {
		for _, r := range h.balancer.Records() {
			resp.Upstreams = append(resp.Upstreams, UpstreamStats{
				ID:           r.ID,
				Address:      r.Address,
				Healthy:      r.Healthy(),
				BreakerState: r.BreakerState(),
				SuccessRate:  r.SuccessRate(),
				AvgLatencyMs: r.AvgLatencyMS(),
				Outstanding:  r.Outstanding(),
			})
			if h.metrics != nil {
				h.metrics.observeUpstream(r)
			}
		}
	}

	if h.statsFn != nil {
		resp.DNS = h.statsFn()
	}

	c.JSON(http.StatusOK, resp)
}
