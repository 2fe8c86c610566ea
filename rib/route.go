// Package rib implements the Adj-RIB-In / Loc-RIB / Adj-RIB-Out triplet,
// the best-path decision process, and the advertisement policy that
// decides what a route looks like once it leaves toward a given peer
// (RFC 4271 sections 3.2 and 9).
package rib

import (
	"time"

	"github.com/transitorykris/bgpd/bgp"
	"github.com/transitorykris/bgpd/message"
)

// Route is one candidate path to a prefix: the attributes a peer
// advertised, plus the bookkeeping the decision process and the
// advertisement policy need that isn't itself a wire attribute.
type Route struct {
	Prefix     bgp.Prefix
	Attributes []message.PathAttribute

	// PeerIP identifies which session this route arrived on ("" for a
	// locally originated route). Used for split-horizon and as the final
	// decision-process tiebreaker (RFC 4271 section 9.1.2.2 f).
	PeerIP string
	// PeerAS is the AS the route was learned from; 0 for a route
	// originated locally, which therefore counts as neither eBGP- nor
	// iBGP-learned.
	PeerAS bgp.ASN
	// RouterID is the BGP Identifier of the speaker that advertised this
	// route, the decision process's second-to-last tiebreaker.
	RouterID bgp.Identifier
	// ReceivedAt orders otherwise-tied routes by age (older wins), per
	// RFC 4271 section 9.1.2.2 e.
	ReceivedAt time.Time
}

// Origin, ASPath, NextHop, MED, and LocalPref pull the well-known
// attributes out of the route's attribute set, defaulting sensibly when
// an attribute is legitimately absent (MED and LOCAL_PREF are optional).

func (r Route) Origin() (message.OriginAttribute, bool) {
	return message.FindOrigin(r.Attributes)
}

func (r Route) ASPath() (message.ASPathAttribute, bool) {
	return message.FindASPath(r.Attributes)
}

func (r Route) NextHop() (message.NextHopAttribute, bool) {
	return message.FindNextHop(r.Attributes)
}

// MED returns the route's MULTI_EXIT_DISC value, defaulting to 0 (the
// most-preferred value) when absent, matching common practice for
// comparisons within the same neighboring AS.
func (r Route) MED() uint32 {
	if m, ok := message.FindMED(r.Attributes); ok {
		return m.Value
	}
	return 0
}

// LocalPref returns the route's LOCAL_PREF value, defaulting to
// message.DefaultLocalPref when absent (always the case for a route
// learned over eBGP, which carries no LOCAL_PREF on the wire).
func (r Route) LocalPref() uint32 {
	if l, ok := message.FindLocalPref(r.Attributes); ok {
		return l.Value
	}
	return message.DefaultLocalPref
}

// Key identifies a route by destination only; AdjRIBIn/LocRIB store at
// most one Route per Key per peer.
type Key = bgp.Prefix
