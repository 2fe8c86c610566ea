// Package policy implements the optional pluggable hooks spec.md section
// 6 names but leaves as external collaborators: import/export prefix
// filtering, a kernel FIB installer, and an IGP cost lookup for the
// decision process's tie-breaker. None of these are required for the
// core to run; every session and agent call site treats a nil hook as a
// permissive no-op.
package policy

import (
	"fmt"
	"net"

	"github.com/transitorykris/bgpd/bgp"
	"github.com/transitorykris/bgpd/message"
	"github.com/transitorykris/bgpd/radix"
	"github.com/transitorykris/bgpd/rib"
)

// RouteFilter is the shape of both import-policy and export-policy in
// spec.md section 6: given a route, return a (possibly rewritten) route
// to keep, or ok=false to drop it.
type RouteFilter func(peerKey string, r rib.Route) (rib.Route, bool)

// PrefixList is a permit-list of networks backed by the radix package's
// longest-prefix-match trie, the simplest import/export policy spec.md
// section 6 calls for. A prefix is permitted if it falls within (is
// equal to or more specific than) a listed network. When listed networks
// nest, only the most specific one containing the prefix's address is
// checked, so a prefix shorter than that one is dropped even if a less
// specific listed network covers it.
type PrefixList struct {
	allow *radix.Radix
}

// NewPrefixList builds a PrefixList from a set of CIDR strings.
func NewPrefixList(cidrs []string) (*PrefixList, error) {
	t := radix.New()
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("policy: invalid prefix-list entry %q: %w", c, err)
		}
		t.Insert(*n, n.IP)
	}
	return &PrefixList{allow: t}, nil
}

// Filter is a RouteFilter: it keeps the route unchanged when its prefix
// matches an entry in the list, and drops it (spec.md section 7's
// "policy rejection: silently drop, do not alarm") otherwise.
func (p *PrefixList) Filter(_ string, r rib.Route) (rib.Route, bool) {
	_, bits, err := net.ParseCIDR(r.Prefix.String())
	if err != nil {
		return r, false
	}
	listed, _, err := p.allow.Lookup(*bits)
	if err != nil {
		return r, false
	}
	if ones, _ := listed.Mask.Size(); ones > r.Prefix.Length {
		return r, false
	}
	return r, true
}

// KernelInstaller is spec.md section 6's "kernel-route-installer(prefix,
// next-hop, protocol)" hook: it is consulted once per Loc-RIB install or
// removal, and is free to push the route into a forwarding plane this
// speaker doesn't otherwise know about. The kernel FIB installer itself
// is named in spec.md section 1 as an out-of-scope collaborator; this
// interface is the seam it plugs into.
type KernelInstaller interface {
	Install(prefix bgp.Prefix, nextHop net.IP, protocol string) error
	Remove(prefix bgp.Prefix) error
}

// NoopKernel is the default KernelInstaller: it does nothing, matching
// spec.md section 6's "absent = no-op" rule for every pluggable hook.
type NoopKernel struct{}

func (NoopKernel) Install(bgp.Prefix, net.IP, string) error { return nil }
func (NoopKernel) Remove(bgp.Prefix) error                  { return nil }

// RadixIGPCost is a small igp-cost-lookup (spec.md section 6) backed by
// the same radix trie the prefix lists use, repurposing its "network to
// IP" storage to hold a cost instead of a forwarding next hop: the cost
// is packed big-endian into the 4 bytes an IPv4 next hop would occupy.
// A real deployment would wire this hook to an actual IGP's SPF table;
// this implementation is a static table an operator loads once at
// startup, useful for testing the decision process's tie-breaker without
// a real IGP.
type RadixIGPCost struct {
	costs *radix.Radix
}

// NewRadixIGPCost builds a RadixIGPCost from a map of CIDR next-hop
// network to cost.
func NewRadixIGPCost(costByNextHop map[string]uint32) (*RadixIGPCost, error) {
	t := radix.New()
	for cidr, cost := range costByNextHop {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("policy: invalid igp-cost entry %q: %w", cidr, err)
		}
		t.Insert(*n, packCost(cost))
	}
	return &RadixIGPCost{costs: t}, nil
}

func packCost(cost uint32) net.IP {
	return net.IPv4(byte(cost>>24), byte(cost>>16), byte(cost>>8), byte(cost))
}

func unpackCost(ip net.IP) uint32 {
	v4 := ip.To4()
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}

// Lookup has the shape of rib.IGPCostLookup; wire it in as
// rib.Decider{IGPCost: cost.Lookup}.
func (r *RadixIGPCost) Lookup(nextHop message.NextHopAttribute) (uint32, bool) {
	host := net.IPNet{IP: nextHop.IP, Mask: net.CIDRMask(32, 32)}
	_, cost, err := r.costs.Lookup(host)
	if err != nil {
		return 0, false
	}
	return unpackCost(cost), true
}
