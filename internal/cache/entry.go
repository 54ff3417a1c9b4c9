package cache

import "time"

// EntryType distinguishes a cached positive answer from the three negative
// outcomes RFC 2308 says are cacheable in their own right, each with its own
// TTL-adjustment policy.
type EntryType int

const (
	// CachePositive is an ordinary answer-bearing response.
	CachePositive EntryType = iota
	// CacheNXDOMAIN is a cached "name does not exist" response.
	CacheNXDOMAIN
	// CacheNODATA is a cached "name exists, no records of this type" response
	// (NOERROR with zero answers).
	CacheNODATA
	// CacheSERVFAIL is a cached upstream failure, held only briefly to damp
	// retry storms against a consistently failing name.
	CacheSERVFAIL
)

// Entry is a CacheEntry: a complete well-formed DNS response ready to copy
// onto the wire after rewriting its id field to match the current query.
type Entry struct {
	Fingerprint Fingerprint
	Type        EntryType
	Data        []byte // raw response bytes owned by the entry
	ExpiresAt   time.Time
	InsertedAt  time.Time
	AccessCount uint64
	LastAccess  time.Time
}

// expired reports whether the entry's TTL has elapsed as of now.
func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}
