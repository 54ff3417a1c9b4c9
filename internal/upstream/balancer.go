package upstream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/ghostferry/resolver/internal/wire"
)

// ErrAllUpstreamsFailed is returned by Execute when every candidate upstream
// failed or was unavailable within max_retries attempts.
var ErrAllUpstreamsFailed = errors.New("upstream: all upstreams failed")

// Balancer is the load balancer's public contract: Select and Execute.
type Balancer struct {
	records    []*Record
	byID       map[string]*Record
	monitor    *Monitor
	strategy   Strategy
	maxRetries int
	logger     *slog.Logger

	udpTimeout  time.Duration
	tcpTimeout  time.Duration
	tcpFallback bool

	poolMu sync.Mutex
	pools  map[string]chan *net.UDPConn
	poolSize int
}

// Config configures a Balancer.
type Config struct {
	Upstreams   []UpstreamSpec
	Strategy    Strategy
	MaxRetries  int
	UDPTimeout  time.Duration
	TCPTimeout  time.Duration
	TCPFallback bool
	PoolSize    int
	Logger      *slog.Logger
}

// UpstreamSpec is one upstream entry as loaded from the external
// configuration collaborator (spec Section 6): id, address, port, weight,
// optional location, optional specialisation set.
type UpstreamSpec struct {
	ID              string
	Address         string
	Port            int
	Weight          float64
	Location        *Location
	Specialisations []uint16
	Capacity        int
}

// NewBalancer builds a Balancer from cfg, starting its health monitor in
// the background under ctx.
func NewBalancer(ctx context.Context, cfg Config) *Balancer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = StrategyIntelligent
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	udpTimeout := cfg.UDPTimeout
	if udpTimeout <= 0 {
		udpTimeout = 3 * time.Second
	}
	tcpTimeout := cfg.TCPTimeout
	if tcpTimeout <= 0 {
		tcpTimeout = 5 * time.Second
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 16
	}

	records := make([]*Record, 0, len(cfg.Upstreams))
	byID := make(map[string]*Record, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		r := NewRecord(u)
		records = append(records, r)
		byID[r.ID] = r
	}

	monitor := NewMonitor(records)
	go monitor.Run(ctx)

	return &Balancer{
		records:     records,
		byID:        byID,
		monitor:     monitor,
		strategy:    strategy,
		maxRetries:  maxRetries,
		logger:      logger,
		udpTimeout:  udpTimeout,
		tcpTimeout:  tcpTimeout,
		tcpFallback: cfg.TCPFallback,
		pools:       make(map[string]chan *net.UDPConn),
		poolSize:    poolSize,
	}
}

// candidates returns every upstream that passes the health filter and
// whose circuit breaker currently allows an attempt, excluding any id in
// exclude.
func (b *Balancer) candidates(exclude map[string]struct{}) []*Record {
	out := make([]*Record, 0, len(b.records))
	for _, r := range b.records {
		if _, skip := exclude[r.ID]; skip {
			continue
		}
		if !b.monitor.Healthy(r.ID) {
			continue
		}
		if !r.breaker.allow() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Select chooses the best upstream for ctx under the configured strategy,
// excluding ids already tried.
func (b *Balancer) Select(ctx QueryContext, exclude map[string]struct{}) (*Record, error) {
	cand := b.candidates(exclude)
	if len(cand) == 0 {
		return nil, ErrNoHealthyUpstream
	}

	switch b.strategy {
	case StrategyWeightedRoundRobin:
		return pickWeightedRoundRobin(cand, rand.Float64()), nil
	case StrategyLeastLatency:
		return pickLeastLatency(cand), nil
	case StrategyGeographic:
		return pickGeographic(cand, ctx), nil
	default: // intelligent, adaptive
		return pickIntelligent(cand, ctx), nil
	}
}

// Execute performs selection, sends queryBytes, awaits a reply within the
// chosen upstream's adaptive timeout, and records the outcome. It retries
// up to min(max_retries, upstream_count) times, picking a different
// upstream each attempt.
func (b *Balancer) Execute(ctx context.Context, queryBytes []byte, qctx QueryContext) ([]byte, error) {
	tried := make(map[string]struct{}, len(b.records))
	attempts := b.maxRetries
	if n := len(b.records); n < attempts {
		attempts = n
	}
	if attempts == 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		r, err := b.Select(qctx, tried)
		if err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		tried[r.ID] = struct{}{}

		resp, err := b.attempt(ctx, r, queryBytes)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		b.logger.Warn("upstream attempt failed", "upstream", r.ID, "error", err)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrAllUpstreamsFailed, lastErr)
	}
	return nil, ErrAllUpstreamsFailed
}

// attempt sends queryBytes to r and records the outcome (success/failure,
// duration) against its counters, breaker, and adaptive timeout.
func (b *Balancer) attempt(ctx context.Context, r *Record, queryBytes []byte) ([]byte, error) {
	release := r.beginAttempt()
	defer release()

	timeout := r.timeout.value()
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := b.send(attemptCtx, r, queryBytes)
	duration := time.Since(start)

	if err != nil {
		r.recordAttempt(false, duration)
		return nil, err
	}
	if verr := validateResponse(queryBytes, resp); verr != nil {
		r.recordAttempt(false, duration)
		return nil, verr
	}
	r.recordAttempt(true, duration)
	return resp, nil
}

// send performs one UDP query/response round trip against r, falling back
// to TCP if the UDP reply is truncated and TCP fallback is enabled.
func (b *Balancer) send(ctx context.Context, r *Record, queryBytes []byte) ([]byte, error) {
	pool := b.ensurePool(r)

	conn, fromPool, err := b.acquireConn(ctx, pool, r)
	if err != nil {
		return nil, err
	}
	ok := true
	defer func() { b.releaseConn(conn, pool, fromPool, ok) }()

	deadline := time.Now().Add(b.udpTimeout)
	if d, has := ctx.Deadline(); has && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(queryBytes); err != nil {
		ok = false
		return nil, err
	}
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		ok = false
		return nil, err
	}
	resp := buf[:n:n]

	if b.tcpFallback && wire.IsTruncated(resp) {
		return b.sendTCP(ctx, r, queryBytes)
	}
	return resp, nil
}

func (b *Balancer) ensurePool(r *Record) chan *net.UDPConn {
	b.poolMu.Lock()
	defer b.poolMu.Unlock()
	if ch, ok := b.pools[r.ID]; ok {
		return ch
	}
	ch := make(chan *net.UDPConn, b.poolSize)
	b.pools[r.ID] = ch
	return ch
}

func (b *Balancer) acquireConn(ctx context.Context, pool chan *net.UDPConn, r *Record) (*net.UDPConn, bool, error) {
	select {
	case c := <-pool:
		return c, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
		addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(r.Address, portString(r.Port)))
		if err != nil {
			return nil, false, err
		}
		c, err := net.DialUDP("udp", nil, addr)
		if err != nil {
			return nil, false, err
		}
		return c, false, nil
	}
}

func (b *Balancer) releaseConn(c *net.UDPConn, pool chan *net.UDPConn, fromPool, ok bool) {
	if !ok || !fromPool {
		_ = c.Close()
		return
	}
	select {
	case pool <- c:
	default:
		_ = c.Close()
	}
}

func (b *Balancer) sendTCP(ctx context.Context, r *Record, queryBytes []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.tcpTimeout)
	defer cancel()

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(r.Address, portString(r.Port)))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(queryBytes)))
	if _, err := conn.Write(prefix[:]); err != nil {
		return nil, err
	}
	if _, err := conn.Write(queryBytes); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, err
	}
	respLen := int(binary.BigEndian.Uint16(prefix[:]))
	if respLen <= 0 || respLen > 65535 {
		return nil, fmt.Errorf("upstream: invalid TCP response length %d", respLen)
	}
	resp := make([]byte, respLen)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func portString(port int) string {
	if port <= 0 {
		port = 53
	}
	return fmt.Sprintf("%d", port)
}

// validateResponse checks that respBytes echoes the question in
// queryBytes, mitigating cache-poisoning by a spoofed or mismatched reply.
func validateResponse(queryBytes, respBytes []byte) error {
	reqView, err := wire.Parse(queryBytes)
	if err != nil {
		return fmt.Errorf("upstream: invalid outbound query: %w", err)
	}
	respView, err := wire.Parse(respBytes)
	if err != nil {
		return fmt.Errorf("upstream: unparseable response: %w", err)
	}
	if reqView.QName != respView.QName {
		return fmt.Errorf("upstream: QNAME mismatch: expected %s, got %s", reqView.QName, respView.QName)
	}
	if reqView.QType != respView.QType {
		return fmt.Errorf("upstream: QTYPE mismatch: expected %d, got %d", reqView.QType, respView.QType)
	}
	if reqView.QClass != respView.QClass {
		return fmt.Errorf("upstream: QCLASS mismatch: expected %d, got %d", reqView.QClass, respView.QClass)
	}
	return nil
}

// Close releases all pooled UDP connections.
func (b *Balancer) Close() error {
	b.poolMu.Lock()
	defer b.poolMu.Unlock()
	for _, ch := range b.pools {
		close(ch)
		for c := range ch {
			_ = c.Close()
		}
	}
	b.pools = make(map[string]chan *net.UDPConn)
	return nil
}

// Record returns the Record for id, for diagnostics/admin surfaces.
func (b *Balancer) Record(id string) (*Record, bool) {
	r, ok := b.byID[id]
	return r, ok
}

// Records returns every upstream record, for diagnostics/admin surfaces.
func (b *Balancer) Records() []*Record {
	return b.records
}
