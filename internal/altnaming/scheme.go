// Package altnaming dispatches queries for non-ICANN "blockchain" top-level
// labels to pluggable alternative-naming resolvers, keyed on TLD.
//
// Modelled as a lookup from TLD to a scheme handle, each implementing a
// uniform Resolver capability, rather than a tagged union with a TLD
// if-cascade: schemes are pluggable, and the dispatcher depends only on the
// capability.
package altnaming

import (
	"context"
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// Scheme identifies an alternative-naming family.
type Scheme string

const (
	SchemeENS Scheme = "ENS"
	SchemeUNS Scheme = "UNS"
	SchemeZNS Scheme = "ZNS"
	SchemeCNS Scheme = "CNS"
)

// Resolution is the outcome of a successful alt-naming resolve.
type Resolution struct {
	Addresses []net.IP
	TTL       uint32
	Kind      Scheme
}

// Resolver is the capability every alt-naming scheme handle implements.
// The dispatcher treats it as an opaque collaborator; it does not prescribe
// the underlying blockchain mechanism.
type Resolver interface {
	Resolve(ctx context.Context, qname string) (*Resolution, error)
}

// tldScheme maps each recognised TLD label to its naming scheme.
var tldScheme = map[string]Scheme{
	"eth": SchemeENS,

	"crypto":     SchemeUNS,
	"nft":        SchemeUNS,
	"blockchain": SchemeUNS,
	"bitcoin":    SchemeUNS,
	"wallet":     SchemeUNS,
	"888":        SchemeUNS,
	"dao":        SchemeUNS,
	"x":          SchemeUNS,

	"ghost": SchemeZNS,
	"zns":   SchemeZNS,

	"cns": SchemeCNS,
}

// Dispatcher classifies qnames by TLD and routes recognised ones to the
// registered Resolver for their scheme.
type Dispatcher struct {
	resolvers map[Scheme]Resolver
}

// NewDispatcher builds a Dispatcher with no resolvers registered; Register
// must be called for each scheme a deployment wants to serve.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{resolvers: make(map[Scheme]Resolver)}
}

// Register associates a Resolver implementation with a scheme.
func (d *Dispatcher) Register(scheme Scheme, r Resolver) {
	d.resolvers[scheme] = r
}

// Classify selects a scheme by exact TLD match against the fixed dispatch
// table. A non-match returns ok=false and the query falls through to the
// conventional path.
func Classify(qname string) (Scheme, bool) {
	tld := lastLabel(qname)
	if tld == "" {
		return "", false
	}
	scheme, ok := tldScheme[tld]
	return scheme, ok
}

// lastLabel extracts the final dot-separated label of qname, IDN-normalised
// via punycode so names like "café.eth" classify by their ASCII-compatible
// TLD the same way "xn--caf-dma.eth" would.
func lastLabel(qname string) string {
	qname = strings.TrimSuffix(qname, ".")
	if qname == "" {
		return ""
	}
	idx := strings.LastIndexByte(qname, '.')
	label := qname
	if idx >= 0 {
		label = qname[idx+1:]
	}
	ascii, err := idna.Lookup.ToASCII(label)
	if err != nil {
		return strings.ToLower(label)
	}
	return strings.ToLower(ascii)
}

// Resolve dispatches qname to its scheme's Resolver, if one is classified
// and registered. A nil Resolution with a nil error is returned in three
// cases: the qname is not classified, the scheme has no registered
// resolver, or the registered resolver itself had no record. Resolve does
// not tell these apart; a caller that answers a classified miss differently
// from an unclassified name must call Classify itself first.
func (d *Dispatcher) Resolve(ctx context.Context, qname string) (*Resolution, error) {
	scheme, ok := Classify(qname)
	if !ok {
		return nil, nil
	}
	r, ok := d.resolvers[scheme]
	if !ok {
		return nil, nil
	}
	return r.Resolve(ctx, qname)
}
