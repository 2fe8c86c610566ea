package rib

import (
	"net"

	"github.com/transitorykris/bgpd/bgp"
	"github.com/transitorykris/bgpd/message"
)

// PeerView is the small slice of a session's configuration the
// advertisement policy needs to decide what, and how, to advertise.
type PeerView struct {
	IP                   string
	AS                   bgp.ASN
	RouterID             bgp.Identifier
	RouteReflectorClient bool
	// LocalIP is this speaker's own address on the session being
	// advertised over, used as NEXT_HOP when local describes the
	// speaker itself (spec.md section 4.4: "Rewrite NEXT_HOP to the
	// local interface address of the outgoing session"). Falls back to
	// RouterID when a session has no dedicated local address configured.
	LocalIP net.IP
}

func (p PeerView) localIP() net.IP {
	if p.LocalIP != nil {
		return p.LocalIP
	}
	return p.RouterID.IP()
}

// ReflectionHook decides whether an iBGP-learned route should be
// re-advertised to another iBGP peer, the one case standard BGP split
// horizon forbids on its own. Route Reflection (RFC 4456) and its
// cluster-list bookkeeping are out of scope here; this is the seam a
// caller wires a reflector implementation into.
type ReflectionHook interface {
	ShouldReflect(route Route, from, to PeerView) bool
}

type noReflection struct{}

func (noReflection) ShouldReflect(Route, PeerView, PeerView) bool { return false }

// NoReflection is the default ReflectionHook: standard BGP rules, no
// iBGP-to-iBGP reflection.
var NoReflection ReflectionHook = noReflection{}

// ShouldAdvertise decides whether route should be sent to the peer
// described by to, given this speaker's own configuration in local
// (RFC 4271 section 9.2, and the split-horizon/iBGP-mesh conventions
// every implementation layers on top of it).
func ShouldAdvertise(route Route, local, to PeerView, reflect ReflectionHook) bool {
	// Split horizon: never advertise a route back to the peer it came from.
	if route.PeerIP != "" && route.PeerIP == to.IP {
		return false
	}

	sourceIsIBGP := route.PeerAS != 0 && route.PeerAS == local.AS
	destIsIBGP := to.AS == local.AS
	if sourceIsIBGP && destIsIBGP {
		if reflect == nil {
			reflect = NoReflection
		}
		return reflect.ShouldReflect(route, local, to)
	}
	return true
}

// PrepareForAdvertisement returns the attribute set to send for route
// when advertising it to the peer described by to, applying the
// transformations RFC 4271 requires at the eBGP/iBGP boundary:
// AS_PATH gains a leading copy of the local AS when crossing into eBGP,
// NEXT_HOP is rewritten to this speaker's own address, and LOCAL_PREF is
// stripped outbound to eBGP and added with the default value outbound to
// iBGP when the route has none.
//
// The route's own attribute order is kept. Attributes the route lacks are
// appended after the existing ones: AS_PATH (toward eBGP only; toward iBGP
// a missing AS_PATH stays missing), then LOCAL_PREF, then NEXT_HOP. A
// missing ORIGIN is not added.
func PrepareForAdvertisement(route Route, local, to PeerView) []message.PathAttribute {
	toEBGP := to.AS != local.AS

	out := make([]message.PathAttribute, 0, len(route.Attributes)+1)
	var sawASPath, sawLocalPref bool

	for _, a := range route.Attributes {
		switch attr := a.(type) {
		case message.OriginAttribute:
			out = append(out, attr)
		case message.ASPathAttribute:
			sawASPath = true
			if toEBGP {
				attr = attr.Prepend(local.AS)
			}
			out = append(out, attr)
		case message.NextHopAttribute:
			// Next-hop-self: this speaker always advertises itself as
			// the next hop rather than forwarding along the one it
			// learned, the simplest correct policy absent a configured
			// forwarding plane to consult.
			out = append(out, message.NextHopAttribute{IP: local.localIP()})
		case message.LocalPrefAttribute:
			sawLocalPref = true
			if !toEBGP {
				out = append(out, attr)
			}
			// else: LOCAL_PREF has no meaning over eBGP and is dropped.
		default:
			out = append(out, a)
		}
	}

	if !sawASPath && toEBGP {
		out = append(out, message.ASPathAttribute{Segments: []message.ASPathSegment{
			{Type: message.ASPathSequence, ASNs: []bgp.ASN{local.AS}},
		}})
	}
	if !sawLocalPref && !toEBGP {
		out = append(out, message.LocalPrefAttribute{Value: message.DefaultLocalPref})
	}
	if _, ok := route.NextHop(); !ok {
		out = append(out, message.NextHopAttribute{IP: local.localIP()})
	}

	return out
}
