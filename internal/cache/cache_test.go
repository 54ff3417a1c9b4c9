package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(data string, ttl time.Duration, now time.Time) Entry {
	return Entry{
		Data:      []byte(data),
		ExpiresAt: now.Add(ttl),
	}
}

func TestCacheGetMiss(t *testing.T) {
	c := New(Sizes{Total: 100})
	fp := NewFingerprint("example.com", 1, 1)

	_, ok := c.Get(fp, time.Now())
	assert.False(t, ok)
}

func TestCachePutGetRoundTrip(t *testing.T) {
	c := New(Sizes{Total: 100})
	now := time.Now()
	fp := NewFingerprint("Example.COM", 1, 1)

	c.Put(fp, testEntry("answer", time.Minute, now), now)

	e, ok := c.Get(fp, now)
	require.True(t, ok)
	assert.Equal(t, []byte("answer"), e.Data)
}

func TestCacheExpiredEntryRemoved(t *testing.T) {
	c := New(Sizes{Total: 100})
	now := time.Now()
	fp := NewFingerprint("example.com", 1, 1)

	c.Put(fp, testEntry("answer", time.Millisecond, now), now)

	later := now.Add(time.Hour)
	_, ok := c.Get(fp, later)
	assert.False(t, ok, "expired entry must not be returned")

	hot, warm, cold := c.Len()
	assert.Equal(t, 0, hot+warm+cold, "expired entry should be evicted from whichever tier held it")
}

func TestCacheFingerprintNormalizesCase(t *testing.T) {
	fpLower := NewFingerprint("example.com", 1, 1)
	fpUpper := NewFingerprint("EXAMPLE.COM", 1, 1)
	assert.Equal(t, fpLower, fpUpper)
}

func TestCacheFingerprintDistinguishesQType(t *testing.T) {
	a := NewFingerprint("example.com", 1, 1)
	b := NewFingerprint("example.com", 28, 1)
	assert.NotEqual(t, a, b)
}

func TestCachePromotionWarmToHot(t *testing.T) {
	c := New(Sizes{Total: 100})
	now := time.Now()
	fp := NewFingerprint("example.com", 1, 1)

	c.warm.put(fp, &Entry{Data: []byte("warm-hit"), ExpiresAt: now.Add(time.Hour)})

	_, inHot := c.hot.get(fp, now)
	require.False(t, inHot, "precondition: entry starts out of hot tier")

	e, ok := c.Get(fp, now)
	require.True(t, ok)
	assert.Equal(t, []byte("warm-hit"), e.Data)

	_, inHot = c.hot.get(fp, now)
	assert.True(t, inHot, "a warm-tier hit should be promoted into hot")
}

func TestCachePromotionColdToWarm(t *testing.T) {
	c := New(Sizes{Total: 100})
	now := time.Now()
	fp := NewFingerprint("example.com", 1, 1)

	c.cold.put(fp, &Entry{Data: []byte("cold-hit"), ExpiresAt: now.Add(time.Hour)})

	e, ok := c.Get(fp, now)
	require.True(t, ok)
	assert.Equal(t, []byte("cold-hit"), e.Data)

	_, inWarm := c.warm.get(fp, now)
	assert.True(t, inWarm, "a cold-tier hit should be promoted into warm")
}

func TestAdjustTTLDefaultsToBaseWithNoHistory(t *testing.T) {
	c := New(Sizes{Total: 100})
	fp := NewFingerprint("example.com", 1, 1)

	assert.Equal(t, uint32(300), c.AdjustTTL(fp, 300, CachePositive))
}

func TestAdjustTTLScalesWithFrequency(t *testing.T) {
	c := New(Sizes{Total: 100})
	fp := NewFingerprint("hot.example.com", 1, 1)

	for i := 0; i < 120; i++ {
		c.freq.touch(fp)
	}

	got := c.AdjustTTL(fp, 1000, CachePositive)
	assert.Equal(t, uint32(2000), got, "very-high frequency should double the base TTL")
}

func TestAdjustTTLVeryHighCapsAt86400(t *testing.T) {
	c := New(Sizes{Total: 100})
	fp := NewFingerprint("hot.example.com", 1, 1)

	for i := 0; i < 120; i++ {
		c.freq.touch(fp)
	}

	got := c.AdjustTTL(fp, 50000, CachePositive)
	assert.LessOrEqual(t, got, uint32(86400))
}

func TestAdjustTTLLowFrequencyFloorsAt300(t *testing.T) {
	c := New(Sizes{Total: 100})
	fp := NewFingerprint("rare.example.com", 1, 1)

	c.freq.touch(fp)
	c.freq.touch(fp)
	c.freq.touch(fp)

	got := c.AdjustTTL(fp, 200, CachePositive)
	assert.GreaterOrEqual(t, got, uint32(300))
}

func TestAdjustTTLVeryLowFrequencyFloorsAt60(t *testing.T) {
	c := New(Sizes{Total: 100})
	fp := NewFingerprint("once.example.com", 1, 1)

	c.freq.touch(fp)

	got := c.AdjustTTL(fp, 40, CachePositive)
	assert.GreaterOrEqual(t, got, uint32(60))
}

func TestAdjustTTLNegativeIgnoresFrequencyAndCaps(t *testing.T) {
	c := New(Sizes{Total: 100})
	fp := NewFingerprint("hot.example.com", 1, 1)

	for i := 0; i < 120; i++ {
		c.freq.touch(fp)
	}

	gotNX := c.AdjustTTL(fp, 50000, CacheNXDOMAIN)
	assert.Equal(t, uint32(negativeMaxTTL), gotNX, "negative caching must not be amplified by query frequency")

	gotNoData := c.AdjustTTL(fp, 50000, CacheNODATA)
	assert.Equal(t, uint32(negativeMaxTTL), gotNoData)
}

func TestAdjustTTLNegativeFloorsAt30(t *testing.T) {
	c := New(Sizes{Total: 100})
	fp := NewFingerprint("example.com", 1, 1)

	got := c.AdjustTTL(fp, 1, CacheNXDOMAIN)
	assert.GreaterOrEqual(t, got, uint32(30))
}

func TestAdjustTTLServfailCapsShort(t *testing.T) {
	c := New(Sizes{Total: 100})
	fp := NewFingerprint("flaky.example.com", 1, 1)

	got := c.AdjustTTL(fp, 3600, CacheSERVFAIL)
	assert.LessOrEqual(t, got, uint32(servfailMaxTTL))
}

func TestTierEvictsApproximateLRUOnOverflow(t *testing.T) {
	tr := newTier(4, randomHashKey())
	now := time.Now()

	for i := 0; i < 4; i++ {
		fp := NewFingerprint(string(rune('a'+i))+".example.com", 1, 1)
		tr.put(fp, &Entry{Data: []byte{byte(i)}, ExpiresAt: now.Add(time.Hour)})
	}
	require.Equal(t, 4, tr.len())

	overflow := NewFingerprint("overflow.example.com", 1, 1)
	tr.put(overflow, &Entry{Data: []byte("new"), ExpiresAt: now.Add(time.Hour)})

	assert.LessOrEqual(t, tr.len(), 4, "tier must not grow past its nominal capacity")

	_, ok := tr.get(overflow, now)
	assert.True(t, ok, "the just-inserted entry must survive its own insertion")
}

func TestFrequencySketchBucketsAreAllReachable(t *testing.T) {
	key := randomHashKey()
	s := newFrequencySketch(key)

	fp := NewFingerprint("example.com", 1, 1)
	assert.Equal(t, freqNormal, s.bucket(fp), "no observations yet means normal")

	s.touch(fp)
	assert.Equal(t, freqVeryLow, s.bucket(fp))

	s.touch(fp)
	s.touch(fp)
	assert.Equal(t, freqLow, s.bucket(fp))

	for i := 0; i < 3; i++ {
		s.touch(fp)
	}
	assert.Equal(t, freqNormal, s.bucket(fp))

	for i := 0; i < 14; i++ {
		s.touch(fp)
	}
	assert.Equal(t, freqHigh, s.bucket(fp))

	for i := 0; i < 40; i++ {
		s.touch(fp)
	}
	assert.Equal(t, freqVeryHigh, s.bucket(fp))
}
