package server

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghostferry/resolver/internal/admin"
	"github.com/ghostferry/resolver/internal/altnaming"
	"github.com/ghostferry/resolver/internal/blocklist"
	"github.com/ghostferry/resolver/internal/cache"
	"github.com/ghostferry/resolver/internal/config"
	"github.com/ghostferry/resolver/internal/upstream"
)

// Runner orchestrates the DNS server startup, configuration, and shutdown.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a new server runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run starts the DNS server with the given configuration.
//
// Server lifecycle:
//  1. Configure runtime (GOMAXPROCS based on workers setting)
//  2. Build the query pipeline: blocklist, alt-naming dispatch, cache, upstream balancer
//  3. Start UDP and optionally TCP servers
//  4. Wait for shutdown signal (SIGINT/SIGTERM)
//  5. Gracefully stop servers with timeout
func (r *Runner) Run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	desiredProcs := r.configureRuntime(cfg)
	maxConc := r.calculateMaxConcurrency(cfg, desiredProcs)
	upPool := r.calculateUpstreamPoolSize(cfg, maxConc)

	bal, err := r.buildBalancer(ctx, cfg, upPool)
	if err != nil {
		return err
	}
	defer bal.Close()

	pipelineCache := r.buildCache(cfg)
	stats := NewDNSStats()
	pipeline := &Pipeline{
		Blocklist: r.buildBlocklist(cfg),
		AltNaming: r.buildAltNaming(cfg),
		Cache:     pipelineCache,
		Upstream:  bal,
		Logger:    r.logger,
	}

	queryTimeout := parseDurationOr(cfg.Server.QueryTimeout, 4*time.Second)
	h := &QueryHandler{Logger: r.logger, Pipeline: pipeline, Timeout: queryTimeout, Stats: stats}
	limiter := NewRateLimiter(RateLimitSettings{
		CleanupSeconds:   cfg.RateLimit.CleanupSeconds,
		MaxIPEntries:     cfg.RateLimit.MaxIPEntries,
		MaxPrefixEntries: cfg.RateLimit.MaxPrefixEntries,
		GlobalQPS:        cfg.RateLimit.GlobalQPS,
		GlobalBurst:      cfg.RateLimit.GlobalBurst,
		PrefixQPS:        cfg.RateLimit.PrefixQPS,
		PrefixBurst:      cfg.RateLimit.PrefixBurst,
		IPQPS:            cfg.RateLimit.IPQPS,
		IPBurst:          cfg.RateLimit.IPBurst,
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	r.logStartup(cfg, addr, maxConc, upPool)

	udp := &UDPServer{Logger: r.logger, Handler: h, Limiter: limiter, WorkersPerSocket: maxConc}
	var tcp *TCPServer
	if cfg.Server.EnableTCP {
		tcp = &TCPServer{Logger: r.logger, Handler: h}
	}

	errCh := make(chan error, 3)
	go func() { errCh <- udp.Run(ctx, addr) }()
	if tcp != nil {
		go func() { errCh <- tcp.Run(ctx, addr) }()
	}

	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		adminSrv = r.buildAdmin(cfg, pipelineCache, bal, stats)
		r.logger.Info("admin surface listening", "addr", adminSrv.Addr())
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			cancelRun()
			return err
		}
	}

	stopTimeout := 5 * time.Second
	_ = udp.Stop(stopTimeout)
	if tcp != nil {
		_ = tcp.Stop(stopTimeout)
	}
	if adminSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), stopTimeout)
		_ = adminSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	return nil
}

// buildAdmin wires the read-only admin status surface to the running
// pipeline's components.
func (r *Runner) buildAdmin(cfg *config.Config, c *cache.Cache, bal *upstream.Balancer, stats *DNSStats) *admin.Server {
	statsFn := func() admin.DNSStats {
		snap := stats.Snapshot()
		return admin.DNSStats{
			QueriesTotal: snap.QueriesTotal,
			QueriesUDP:   snap.QueriesUDP,
			QueriesTCP:   snap.QueriesTCP,
			ResponsesNX:  snap.ResponsesNX,
			ResponsesErr: snap.ResponsesErr,
			AvgLatencyMs: snap.AvgLatencyMs,
		}
	}
	return admin.New(
		admin.Config{Host: cfg.Admin.Host, Port: cfg.Admin.Port},
		r.logger,
		c, bal, statsFn,
		prometheus.NewRegistry(),
	)
}

// configureRuntime sets GOMAXPROCS based on worker configuration.
// Workers can reduce but never increase parallelism beyond the default.
func (r *Runner) configureRuntime(cfg *config.Config) int {
	baseProcs := runtime.GOMAXPROCS(0)
	if baseProcs <= 0 {
		baseProcs = 1
	}
	desiredProcs := baseProcs

	if cfg.Server.Workers.Mode == config.WorkersFixed {
		w := cfg.Server.Workers.Value
		if w <= 0 {
			w = 1
		}
		if w < desiredProcs {
			desiredProcs = w
		}
	}

	prev := runtime.GOMAXPROCS(desiredProcs)
	actual := runtime.GOMAXPROCS(0)
	if r.logger != nil {
		r.logger.Info("runtime", "gomaxprocs", actual, "prev", prev, "base", baseProcs)
	}
	return actual
}

// calculateMaxConcurrency determines the maximum concurrent request handlers.
func (r *Runner) calculateMaxConcurrency(cfg *config.Config, procs int) int {
	maxConc := cfg.Server.MaxConcurrency
	if maxConc <= 0 {
		c := procs
		if c <= 0 {
			c = 1
		}
		maxConc = c * 256
		if maxConc > 2048 {
			maxConc = 2048
		}
		if maxConc < 1 {
			maxConc = 1
		}
	}
	return maxConc
}

// calculateUpstreamPoolSize determines the UDP connection pool size for upstream queries.
func (r *Runner) calculateUpstreamPoolSize(cfg *config.Config, maxConc int) int {
	upPool := cfg.Server.UpstreamSocketPoolSize
	if upPool <= 0 {
		upPool = maxConc
		if upPool < 64 {
			upPool = 64
		}
		if upPool > 1024 {
			upPool = 1024
		}
	}
	return upPool
}

// buildBalancer translates the configured upstream entries into an
// upstream.Balancer, carrying per-upstream geo coordinates and
// specialisations into the selection strategies.
func (r *Runner) buildBalancer(ctx context.Context, cfg *config.Config, poolSize int) (*upstream.Balancer, error) {
	specs := make([]upstream.UpstreamSpec, 0, len(cfg.Upstream.Servers))
	for _, s := range cfg.Upstream.Servers {
		spec := upstream.UpstreamSpec{
			ID:              s.ID,
			Address:         s.Address,
			Port:            s.Port,
			Specialisations: parseQTypes(s.Specialisations),
		}
		if s.Latitude != 0 || s.Longitude != 0 {
			spec.Location = &upstream.Location{Latitude: s.Latitude, Longitude: s.Longitude}
		}
		specs = append(specs, spec)
	}

	bal := upstream.NewBalancer(ctx, upstream.Config{
		Upstreams:   specs,
		Strategy:    upstream.Strategy(cfg.Upstream.Strategy),
		MaxRetries:  cfg.Upstream.MaxRetries,
		UDPTimeout:  parseDurationOr(cfg.Upstream.UDPTimeout, 2*time.Second),
		TCPTimeout:  parseDurationOr(cfg.Upstream.TCPTimeout, 5*time.Second),
		TCPFallback: cfg.Server.TCPFallback,
		PoolSize:    poolSize,
		Logger:      r.logger,
	})
	return bal, nil
}

// buildBlocklist loads static patterns plus any configured file/URL
// sources into a single Blocklist.
func (r *Runner) buildBlocklist(cfg *config.Config) *blocklist.Blocklist {
	if !cfg.Blocklist.Enabled {
		return nil
	}

	mode := blocklist.ModeSuffix
	if cfg.Blocklist.Mode == "exact" {
		mode = blocklist.ModeExact
	}

	patterns := append([]string(nil), cfg.Blocklist.Patterns...)
	if len(cfg.Blocklist.Sources) > 0 {
		sources := make([]blocklist.Source, 0, len(cfg.Blocklist.Sources))
		for _, s := range cfg.Blocklist.Sources {
			sources = append(sources, blocklist.Source{
				Name:   s.Name,
				Path:   s.Path,
				URL:    s.URL,
				Format: parseSourceFormat(s.Format),
			})
		}
		loaded, err := blocklist.NewLoader().Load(sources)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("failed to load blocklist sources", "err", err)
			}
		} else {
			patterns = append(patterns, loaded...)
		}
	}

	return blocklist.New(blocklist.Config{Patterns: patterns, Mode: mode, Logger: r.logger})
}

// buildAltNaming returns a Dispatcher with no schemes registered when
// enabled; classification alone determines whether a qname belongs to a
// recognised alt-naming TLD, and an unregistered scheme falls through to
// the conventional resolution path.
func (r *Runner) buildAltNaming(cfg *config.Config) *altnaming.Dispatcher {
	if !cfg.AltNaming.Enabled {
		return nil
	}
	return altnaming.NewDispatcher()
}

func (r *Runner) buildCache(cfg *config.Config) *cache.Cache {
	return cache.New(cache.Sizes{
		Total: cfg.Cache.TotalEntries,
		Hot:   cfg.Cache.HotEntries,
		Warm:  cfg.Cache.WarmEntries,
	})
}

// logStartup logs server configuration at startup.
func (r *Runner) logStartup(cfg *config.Config, addr string, maxConc, upPool int) {
	if r.logger == nil {
		return
	}
	addrs := make([]string, 0, len(cfg.Upstream.Servers))
	for _, s := range cfg.Upstream.Servers {
		addrs = append(addrs, net.JoinHostPort(s.Address, strconv.Itoa(s.Port)))
	}
	r.logger.Info(
		"dns listening",
		"addr", addr,
		"udp", true,
		"tcp", cfg.Server.EnableTCP,
		"upstreams", addrs,
		"strategy", cfg.Upstream.Strategy,
		"max_concurrency", maxConc,
		"upstream_pool", upPool,
	)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

var qtypeNames = map[string]uint16{
	"A": 1, "NS": 2, "CNAME": 5, "SOA": 6, "PTR": 12,
	"MX": 15, "TXT": 16, "AAAA": 28, "SRV": 33, "ANY": 255,
}

func parseQTypes(names []string) []uint16 {
	if len(names) == 0 {
		return nil
	}
	out := make([]uint16, 0, len(names))
	for _, n := range names {
		if code, ok := qtypeNames[n]; ok {
			out = append(out, code)
			continue
		}
		if v, err := strconv.Atoi(n); err == nil && v >= 0 && v <= 65535 {
			out = append(out, uint16(v))
		}
	}
	return out
}

func parseSourceFormat(s string) blocklist.SourceFormat {
	switch s {
	case "adblock":
		return blocklist.FormatAdblock
	case "hosts":
		return blocklist.FormatHosts
	case "domains":
		return blocklist.FormatDomains
	default:
		return blocklist.FormatAuto
	}
}
