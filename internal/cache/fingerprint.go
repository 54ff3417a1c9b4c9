// Package cache implements the resolver's three-tier (hot/warm/cold)
// response cache: independent maps from fingerprint to CacheEntry, each
// with a bounded capacity, promotion on hit, and TTL-honouring expiry.
package cache

import (
	"strings"

	"github.com/dchest/siphash"
)

// Fingerprint is the cache key: the normalised lowercase dotted qname plus
// qtype and qclass. Responses for different qtypes on the same name are
// distinct cache entries.
type Fingerprint struct {
	Name   string
	QType  uint16
	QClass uint16
}

// NewFingerprint normalises name to lowercase before building the key.
func NewFingerprint(name string, qtype, qclass uint16) Fingerprint {
	return Fingerprint{Name: strings.ToLower(name), QType: qtype, QClass: qclass}
}

// hashKey is a process-lifetime keyed hash seed. Using a keyed hash (rather
// than Go's map hash) for shard selection means an attacker who can observe
// which shard a name lands in can't use that to predict other names' shard
// placement without also knowing the key.
type hashKey [16]byte

// hash computes the shard-selection hash for a fingerprint under key.
func (f Fingerprint) hash(key hashKey) uint64 {
	h := siphash.New(key[:])
	_, _ = h.Write([]byte(f.Name))
	var tail [4]byte
	tail[0] = byte(f.QType >> 8)
	tail[1] = byte(f.QType)
	tail[2] = byte(f.QClass >> 8)
	tail[3] = byte(f.QClass)
	_, _ = h.Write(tail[:])
	return h.Sum64()
}
