package server

import (
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// This file implements pre-parse admission control using token-bucket rate
// limiting via golang.org/x/time/rate.
//
// Rate limiting is applied at three levels:
//   - Global: Overall server-wide query rate limit
//   - Prefix: Per-network prefix limit (/24 for IPv4, /64 for IPv6)
//   - IP: Per source IP limit
//
// All limits use the token bucket algorithm, which allows short bursts
// while enforcing an average rate over time.

// RateLimitSettings configures a RateLimiter. A rate of 0 disables that
// level's enforcement entirely.
type RateLimitSettings struct {
	CleanupSeconds   float64
	MaxIPEntries     int
	MaxPrefixEntries int
	GlobalQPS        float64
	GlobalBurst      int
	PrefixQPS        float64
	PrefixBurst      int
	IPQPS            float64
	IPBurst          int
}

// RateLimiter combines global, prefix, and per-IP rate limiters. A request
// must pass all three levels to be allowed.
type RateLimiter struct {
	global *rate.Limiter

	prefix *limiterSet
	ip     *limiterSet
}

// NewRateLimiter builds a RateLimiter from explicit settings.
func NewRateLimiter(cfg RateLimitSettings) *RateLimiter {
	cleanup := time.Duration(cfg.CleanupSeconds * float64(time.Second))
	if cleanup <= 0 {
		cleanup = 60 * time.Second
	}
	maxIP := cfg.MaxIPEntries
	if maxIP <= 0 {
		maxIP = 65_536
	}
	maxPrefix := cfg.MaxPrefixEntries
	if maxPrefix <= 0 {
		maxPrefix = 16_384
	}

	return &RateLimiter{
		global: newLimiter(cfg.GlobalQPS, cfg.GlobalBurst),
		prefix: newLimiterSet(cfg.PrefixQPS, cfg.PrefixBurst, maxPrefix, cleanup),
		ip:     newLimiterSet(cfg.IPQPS, cfg.IPBurst, maxIP, cleanup),
	}
}

// Allow checks if a request from srcIP should be allowed.
func (r *RateLimiter) Allow(srcIP string) bool {
	addr, err := netip.ParseAddr(srcIP)
	if err != nil {
		return true
	}
	return r.AllowAddr(addr)
}

// AllowAddr checks if a request from the given netip.Addr should be
// allowed. Checked in order global -> prefix -> IP so an overloaded server
// fails fast without touching the per-IP map.
func (r *RateLimiter) AllowAddr(ip netip.Addr) bool {
	if r == nil {
		return true
	}
	if r.global != nil && !r.global.Allow() {
		return false
	}
	if !r.prefix.allow(prefixKeyFromAddr(ip)) {
		return false
	}
	if !r.ip.allow(ip.String()) {
		return false
	}
	return true
}

// prefixKeyFromAddr returns the prefix key for a netip.Addr: /24 for IPv4,
// /64 for IPv6.
func prefixKeyFromAddr(ip netip.Addr) string {
	if ip.Is4() {
		prefix, _ := ip.Prefix(24)
		return prefix.String()
	}
	prefix, _ := ip.Prefix(64)
	return prefix.String()
}

func newLimiter(qps float64, burst int) *rate.Limiter {
	if qps <= 0 || burst <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(qps), burst)
}

// limiterSet tracks one rate.Limiter per key (IP or prefix), evicting
// entries that haven't been touched for a full cleanup interval. Eviction
// runs once per cleanup interval and again whenever a new key arrives at a
// full set; a new key that still finds the set full is denied.
type limiterSet struct {
	qps   float64
	burst int

	maxEntries int
	cleanup    time.Duration

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastSeen    map[string]time.Time
	lastCleanup time.Time
}

func newLimiterSet(qps float64, burst int, maxEntries int, cleanup time.Duration) *limiterSet {
	return &limiterSet{
		qps:         qps,
		burst:       burst,
		maxEntries:  maxEntries,
		cleanup:     cleanup,
		limiters:    make(map[string]*rate.Limiter),
		lastSeen:    make(map[string]time.Time),
		lastCleanup: time.Now(),
	}
}

func (s *limiterSet) allow(key string) bool {
	if s == nil || s.qps <= 0 || s.burst <= 0 {
		return true
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastCleanup) > s.cleanup {
		s.evictStaleLocked(now)
	}

	lim, ok := s.limiters[key]
	if !ok {
		if len(s.limiters) >= s.maxEntries {
			s.evictStaleLocked(now)
			if len(s.limiters) >= s.maxEntries {
				return false
			}
		}
		lim = rate.NewLimiter(rate.Limit(s.qps), s.burst)
		s.limiters[key] = lim
	}
	s.lastSeen[key] = now

	return lim.Allow()
}

func (s *limiterSet) evictStaleLocked(now time.Time) {
	staleBefore := now.Add(-s.cleanup)
	for k, seen := range s.lastSeen {
		if !seen.After(staleBefore) {
			delete(s.lastSeen, k)
			delete(s.limiters, k)
		}
	}
	s.lastCleanup = now
}
