package cache

import (
	"math/bits"
	"time"
)

// tier is one independent store (hot, warm, or cold), sharded for
// concurrent access. Each shard owns its own lock and approximate-LRU list;
// lookup, insertion and eviction all take the write lock on the shard they
// visit, since a lookup also moves the entry in the LRU list and updates its
// access counters.
type tier struct {
	shards    []*shard
	shardMask uint64
	key       hashKey
}

const defaultShardCount = 16

// minShardCapacity is the fewest entries a shard is given before a tier is
// split further, so a small tier is not spread over one-slot shards whose
// colliding keys evict each other while the tier is still below capacity.
const minShardCapacity = 16

func newTier(totalCapacity int, key hashKey) *tier {
	shardCount := defaultShardCount
	for shardCount > 1 && totalCapacity/shardCount < minShardCapacity {
		shardCount >>= 1
	}
	shardCount = nextPowerOfTwo(shardCount)

	perShard := totalCapacity / shardCount
	if perShard < 1 {
		perShard = 1
	}

	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = newShard(perShard)
	}
	return &tier{shards: shards, shardMask: uint64(shardCount - 1), key: key}
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

func (t *tier) shardFor(fp Fingerprint) *shard {
	return t.shards[fp.hash(t.key)&t.shardMask]
}

func (t *tier) get(fp Fingerprint, now time.Time) (*Entry, bool) {
	return t.shardFor(fp).get(fp, now)
}

func (t *tier) put(fp Fingerprint, e *Entry) {
	t.shardFor(fp).put(fp, e)
}

func (t *tier) remove(fp Fingerprint) {
	t.shardFor(fp).remove(fp)
}

func (t *tier) len() int {
	n := 0
	for _, s := range t.shards {
		n += s.len()
	}
	return n
}
