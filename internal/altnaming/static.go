package altnaming

import (
	"context"
	"net"
	"strings"
)

// StaticResolver answers alt-naming queries from a fixed name-to-address
// table loaded from configuration. It is the opaque collaborator the core
// dispatches to; the specification does not prescribe the underlying
// blockchain mechanism behind a scheme, so this implementation is
// necessarily a stand-in rather than a real ENS/UNS/ZNS/CNS client.
type StaticResolver struct {
	scheme    Scheme
	addresses map[string][]net.IP
	ttl       uint32
}

// NewStaticResolver builds a StaticResolver for scheme from a qname ->
// IPv4-address-list table. TTL applies to every resolution this instance
// returns.
func NewStaticResolver(scheme Scheme, addresses map[string][]string, ttl uint32) *StaticResolver {
	r := &StaticResolver{scheme: scheme, addresses: make(map[string][]net.IP, len(addresses)), ttl: ttl}
	for name, ips := range addresses {
		normalized := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
		var parsed []net.IP
		for _, ip := range ips {
			if v4 := net.ParseIP(ip); v4 != nil {
				parsed = append(parsed, v4.To4())
			}
		}
		if len(parsed) > 0 {
			r.addresses[normalized] = parsed
		}
	}
	return r
}

// Resolve looks up qname in the static table. A miss returns a nil
// Resolution and nil error (AltNamingMiss), not an error.
func (r *StaticResolver) Resolve(_ context.Context, qname string) (*Resolution, error) {
	qname = strings.ToLower(strings.TrimSuffix(qname, "."))
	addrs, ok := r.addresses[qname]
	if !ok {
		return nil, nil
	}
	return &Resolution{Addresses: addrs, TTL: r.ttl, Kind: r.scheme}, nil
}
