package cache

import (
	"crypto/rand"
	"time"
)

// Sizes configures the nominal capacity of each tier. L3 ("cold") is the
// authoritative store at 100% of nominal capacity; L1 ("hot") and L2
// ("warm") are sized as fractions of it.
type Sizes struct {
	Total int // nominal capacity; L3 gets all of it
	Hot   int // L1, defaults to 10% of Total if zero
	Warm  int // L2, defaults to 50% of Total if zero
}

func (s Sizes) normalize() Sizes {
	if s.Total <= 0 {
		s.Total = 10000
	}
	if s.Hot <= 0 {
		s.Hot = max(1, s.Total/10)
	}
	if s.Warm <= 0 {
		s.Warm = max(1, s.Total/2)
	}
	return s
}

// Cache is the three-tier (hot/warm/cold) response cache described in
// spec Section 4.3. A single fingerprint may live in multiple tiers
// simultaneously: promotion copies an entry up a tier on hit rather than
// moving it atomically.
type Cache struct {
	hot, warm, cold *tier
	freq            *frequencySketch
}

// New builds a Cache with the given tier sizes. Tiers share no state
// across instances; multiple Cache instances are fully independent.
func New(sizes Sizes) *Cache {
	sizes = sizes.normalize()
	key := randomHashKey()
	return &Cache{
		hot:  newTier(sizes.Hot, key),
		warm: newTier(sizes.Warm, key),
		cold: newTier(sizes.Total, key),
		freq: newFrequencySketch(key),
	}
}

func randomHashKey() hashKey {
	var k hashKey
	_, _ = rand.Read(k[:])
	return k
}

// Get searches L1, then L2, then L3. An expired hit in any tier visited is
// removed from that tier before the search continues; the first
// non-expired hit is returned and promoted. A hit in L2 is copied into L1;
// a hit in L3 is copied into L2. The promote-on-hit copy never fails the
// lookup, but it is an ordinary insert into the higher tier: it waits for
// that tier's shard lock and is not skipped when the lock is contended.
func (c *Cache) Get(fp Fingerprint, now time.Time) (Entry, bool) {
	c.freq.touch(fp)

	if e, ok := c.hot.get(fp, now); ok {
		return *e, true
	}
	if e, ok := c.warm.get(fp, now); ok {
		c.hot.put(fp, cloneEntry(e))
		return *e, true
	}
	if e, ok := c.cold.get(fp, now); ok {
		c.warm.put(fp, cloneEntry(e))
		return *e, true
	}
	return Entry{}, false
}

func cloneEntry(e *Entry) *Entry {
	cp := *e
	return &cp
}

// Put inserts entry into the tier indicated by PredictedTier, falling back
// to "warm" (L2). Insertion into a full tier evicts an approximate-LRU
// victim from that tier only; promotion never evicts the tier it copies
// from.
func (c *Cache) Put(fp Fingerprint, entry Entry, now time.Time) {
	entry.Fingerprint = fp
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = now
	}
	if entry.LastAccess.IsZero() {
		entry.LastAccess = now
	}

	switch c.PredictedTier(fp) {
	case tierHot:
		c.hot.put(fp, &entry)
	case tierCold:
		c.cold.put(fp, &entry)
	default:
		c.warm.put(fp, &entry)
	}
}

type predictedTier int

const (
	tierWarm predictedTier = iota
	tierHot
	tierCold
)

// PredictedTier is the hierarchical cache predictor, driven by the bounded
// frequency sketch: a very-high-frequency fingerprint is seeded straight into
// hot, a very-low-frequency one into cold, and everything else (including a
// fingerprint with no observations yet) into warm. It is kept separate from
// Get/Put so a richer predictor can replace it without touching tier
// mechanics.
func (c *Cache) PredictedTier(fp Fingerprint) predictedTier {
	switch c.freq.bucket(fp) {
	case freqVeryHigh:
		return tierHot
	case freqVeryLow:
		return tierCold
	default:
		return tierWarm
	}
}

// AdjustTTL scales baseTTL by the fingerprint's observed query frequency and
// entry type. Positive answers follow the bucketed formula in spec Section
// 4.3; negative answers (RFC 2308) are capped far lower regardless of
// frequency, since a wrong or stale negative caches a failure, not a result.
func (c *Cache) AdjustTTL(fp Fingerprint, baseTTL uint32, et EntryType) uint32 {
	switch et {
	case CacheSERVFAIL:
		return min(max(baseTTL, 5), servfailMaxTTL)
	case CacheNXDOMAIN, CacheNODATA:
		return min(max(baseTTL, 30), negativeMaxTTL)
	}

	switch c.freq.bucket(fp) {
	case freqVeryHigh:
		return min(baseTTL*2, 86400)
	case freqHigh:
		return min(baseTTL+1800, 43200)
	case freqLow:
		return max(baseTTL/2, 300)
	case freqVeryLow:
		return max(baseTTL/4, 60)
	default:
		return baseTTL
	}
}

// negativeMaxTTL is the RFC 2308 Section 5 recommended ceiling on how long a
// negative (NXDOMAIN/NODATA) response may be cached.
const negativeMaxTTL = 10800

// servfailMaxTTL bounds how long a SERVFAIL passthrough is held, long enough
// to shed a retry storm against a name whose upstream keeps failing, short
// enough that a transient failure clears itself quickly.
const servfailMaxTTL = 30

// Len reports the live entry count in each tier, for diagnostics.
func (c *Cache) Len() (hot, warm, cold int) {
	return c.hot.len(), c.warm.len(), c.cold.len()
}
