package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/ghostferry/resolver/internal/altnaming"
	"github.com/ghostferry/resolver/internal/blocklist"
	"github.com/ghostferry/resolver/internal/cache"
	"github.com/ghostferry/resolver/internal/upstream"
	"github.com/ghostferry/resolver/internal/wire"
)

// defaultTTL is the TTL assigned to responses the pipeline synthesizes
// itself (alt-naming hits), since those never carry an upstream-issued
// TTL of their own.
const defaultTTL = 300

// negativeBaseTTL seeds AdjustTTL for a negative (NXDOMAIN/NODATA) upstream
// reply when there's no SOA record to take a minimum TTL from, per RFC 2308
// Section 5's default guidance.
const negativeBaseTTL = 300

// Pipeline implements the query-processing sequence: parse, alt-naming
// dispatch, blocklist check, cache lookup, upstream execute. Each stage can
// terminate the request; only an upstream execute falls through to
// SERVFAIL on failure.
type Pipeline struct {
	Blocklist *blocklist.Blocklist
	AltNaming *altnaming.Dispatcher
	Cache     *cache.Cache
	Upstream  *upstream.Balancer
	Logger    *slog.Logger
}

// Outcome names the pipeline stage that produced a result; it is carried in
// Result.Outcome and HandleResult.Outcome and used for logging and stats
// attribution.
type Outcome string

const (
	OutcomeParseError Outcome = "parse-error"
	OutcomeAltNaming  Outcome = "alt-naming"
	OutcomeBlocked    Outcome = "blocked"
	OutcomeCacheHit   Outcome = "cache-hit"
	OutcomeUpstream   Outcome = "upstream"
	OutcomeServfail   Outcome = "servfail"
)

// Result is what Handle returns to the caller: the bytes ready to put on
// the wire (nil means drop silently) and which stage produced them.
type Result struct {
	ResponseBytes []byte
	Outcome       Outcome
	QName         string
	QType         uint16
}

// Processor is the capability QueryHandler drives; Pipeline is the
// production implementation, a stand-in is useful in tests that want to
// exercise timeout/cancellation behavior without a real cache/upstream.
type Processor interface {
	Handle(ctx context.Context, reqBytes []byte) Result
}

// Handle runs reqBytes through the five-step pipeline and returns the
// response to send, or a nil ResponseBytes to indicate the request should
// be dropped without a reply (malformed query).
func (p *Pipeline) Handle(ctx context.Context, reqBytes []byte) Result {
	view, err := wire.Parse(reqBytes)
	if err != nil {
		return Result{Outcome: OutcomeParseError}
	}

	if p.AltNaming != nil {
		if scheme, ok := altnaming.Classify(view.QName); ok {
			if resp, ok := p.resolveAltNaming(ctx, view, scheme); ok {
				return Result{ResponseBytes: resp, Outcome: OutcomeAltNaming, QName: view.QName, QType: view.QType}
			}
			// A classified scheme with no registered resolver, or a genuine
			// resolver miss, is authoritative: the name belongs to this
			// scheme and it has no answer, so the core answers NXDOMAIN
			// rather than falling through to the conventional path. Only an
			// unclassified TLD (Classify returning ok=false, above) falls
			// through.
			resp := wire.BuildNXDomainInPlace(reqBytes)
			return Result{ResponseBytes: resp, Outcome: OutcomeAltNaming, QName: view.QName, QType: view.QType}
		}
	}

	if p.Blocklist != nil && p.Blocklist.Blocked(view.QName) {
		resp := wire.BuildNXDomainInPlace(reqBytes)
		return Result{ResponseBytes: resp, Outcome: OutcomeBlocked, QName: view.QName, QType: view.QType}
	}

	fp := cache.NewFingerprint(view.QName, view.QType, view.QClass)
	now := time.Now()
	if p.Cache != nil {
		if entry, ok := p.Cache.Get(fp, now); ok {
			resp := append([]byte(nil), entry.Data...)
			wire.RewriteID(resp, view.ID)
			return Result{ResponseBytes: resp, Outcome: OutcomeCacheHit, QName: view.QName, QType: view.QType}
		}
	}

	qctx := upstream.QueryContext{QType: view.QType, RecursionWanted: view.Flags&wire.RDFlag != 0}
	resp, err := p.Upstream.Execute(ctx, reqBytes, qctx)
	if err != nil {
		if p.Logger != nil {
			p.Logger.WarnContext(ctx, "upstream execute failed", "qname", view.QName, "qtype", view.QType, "err", err)
		}
		return Result{ResponseBytes: wire.BuildServfailInPlace(reqBytes), Outcome: OutcomeServfail, QName: view.QName, QType: view.QType}
	}

	if p.Cache != nil {
		entryType := classifyReply(resp)
		baseTTL := uint32(negativeBaseTTL)
		if entryType == cache.CachePositive {
			if ttl, ok := wire.FirstAnswerTTL(resp); ok {
				baseTTL = ttl
			} else {
				// ANCOUNT claimed answers but the record couldn't be
				// walked; treat it as NODATA rather than cache garbage.
				entryType = cache.CacheNODATA
			}
		}
		adjusted := p.Cache.AdjustTTL(fp, baseTTL, entryType)
		p.Cache.Put(fp, cache.Entry{
			Type:      entryType,
			Data:      append([]byte(nil), resp...),
			ExpiresAt: now.Add(time.Duration(adjusted) * time.Second),
		}, now)
	}

	return Result{ResponseBytes: resp, Outcome: OutcomeUpstream, QName: view.QName, QType: view.QType}
}

// resolveAltNaming resolves qname through the classified alt-naming scheme
// and, on a hit, synthesizes an A-record response and caches it under the
// same fingerprint the rest of the pipeline would have used.
func (p *Pipeline) resolveAltNaming(ctx context.Context, view wire.QueryView, scheme altnaming.Scheme) ([]byte, bool) {
	res, err := p.AltNaming.Resolve(ctx, view.QName)
	if err != nil || res == nil || len(res.Addresses) == 0 {
		return nil, false
	}

	ttl := res.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	resp, err := wire.BuildARecordResponse(view.Raw, res.Addresses[0], ttl)
	if err != nil {
		return nil, false
	}

	if p.Cache != nil {
		// Hardcoded to (qname, A, IN): the synthesized response is always an
		// A record, regardless of what qtype/qclass the triggering query
		// used, so a later AAAA (or any non-A/IN) query for the same name
		// must not shadow the entry a subsequent A query needs.
		fp := cache.NewFingerprint(view.QName, wire.TypeA, wire.ClassIN)
		now := time.Now()
		p.Cache.Put(fp, cache.Entry{
			Type:      cache.CachePositive,
			Data:      append([]byte(nil), resp...),
			ExpiresAt: now.Add(time.Duration(ttl) * time.Second),
		}, now)
	}

	if p.Logger != nil {
		p.Logger.DebugContext(ctx, "alt-naming resolved", "qname", view.QName, "scheme", string(scheme))
	}
	return resp, true
}

// classifyReply sorts an upstream reply into the cache.EntryType RFC 2308
// uses to decide how long a negative answer may be held: NOERROR with
// answers is positive, NOERROR with none is NODATA, NXDOMAIN is NXDOMAIN,
// and every other RCODE is treated as a SERVFAIL worth damping briefly.
func classifyReply(resp []byte) cache.EntryType {
	switch wire.ResponseCode(resp) {
	case wire.RCodeNXDomain:
		return cache.CacheNXDOMAIN
	case wire.RCodeNoError:
		if wire.AnswerCount(resp) == 0 {
			return cache.CacheNODATA
		}
		return cache.CachePositive
	default:
		return cache.CacheSERVFAIL
	}
}
