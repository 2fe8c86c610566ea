package rib

import (
	"bytes"
	"net"

	"github.com/transitorykris/bgpd/message"
)

// IGPCostLookup resolves the interior cost to a route's NEXT_HOP, used as
// one tiebreaker in the decision process (RFC 4271 section 9.1.2.2 d).
// This speaker has no IGP of its own to consult, so callers that don't
// care can pass nil and the step is skipped as a tie.
type IGPCostLookup func(nextHop message.NextHopAttribute) (cost uint32, ok bool)

// Decider runs the nine-step best-path comparison of RFC 4271 section
// 9.1.2.2 over the candidate routes for a single prefix, learned from
// possibly many peers, and returns the one best-path.
type Decider struct {
	// LocalAS is this speaker's own AS number, used to tell eBGP routes
	// from iBGP routes in step 5.
	LocalAS uint32
	// IGPCost is consulted in step 6; nil skips the step.
	IGPCost IGPCostLookup
}

// Best returns the most preferred route among candidates. candidates must
// be non-empty.
func (d Decider) Best(candidates []Route) Route {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if d.Better(c, best) {
			best = c
		}
	}
	return best
}

// Better reports whether a is strictly preferred over b.
func (d Decider) Better(a, b Route) bool {
	// 1. Highest LOCAL_PREF.
	if a.LocalPref() != b.LocalPref() {
		return a.LocalPref() > b.LocalPref()
	}

	// 2. Shortest AS_PATH. A route with no AS_PATH attribute at all is
	// treated as length 0, the same as an empty one.
	if al, bl := asPathLength(a), asPathLength(b); al != bl {
		return al < bl
	}

	// 3. Lowest ORIGIN type: IGP < EGP < INCOMPLETE.
	if ao, bo := originRank(a), originRank(b); ao != bo {
		return ao < bo
	}

	// 4. Lowest MULTI_EXIT_DISC, only meaningful when both routes came
	// from the same neighboring AS (RFC 4271 section 9.1.2.2 c).
	if a.PeerAS != 0 && a.PeerAS == b.PeerAS && a.MED() != b.MED() {
		return a.MED() < b.MED()
	}

	// 5. Prefer routes learned over eBGP to routes learned over iBGP.
	if ae, be := d.isEBGP(a), d.isEBGP(b); ae != be {
		return ae
	}

	// 6. Lowest interior cost to NEXT_HOP, when a cost function is wired.
	if d.IGPCost != nil {
		anh, aok := a.NextHop()
		bnh, bok := b.NextHop()
		if aok && bok {
			ac, acOk := d.IGPCost(anh)
			bc, bcOk := d.IGPCost(bnh)
			if acOk && bcOk && ac != bc {
				return ac < bc
			}
		}
	}

	// 7. Oldest route wins (only meaningful among eBGP routes, but
	// applying it uniformly is harmless: ties from here on are broken by
	// identity, not recency).
	if !a.ReceivedAt.Equal(b.ReceivedAt) {
		return a.ReceivedAt.Before(b.ReceivedAt)
	}

	// 8. Lowest BGP Identifier.
	if a.RouterID != b.RouterID {
		return a.RouterID < b.RouterID
	}

	// 9. Lowest peer IP address, the final deterministic tiebreaker.
	// Addresses are compared numerically; a PeerIP that does not parse as
	// an address falls back to a string comparison.
	if aip, bip := net.ParseIP(a.PeerIP), net.ParseIP(b.PeerIP); aip != nil && bip != nil {
		return bytes.Compare(aip.To16(), bip.To16()) < 0
	}
	return a.PeerIP < b.PeerIP
}

func (d Decider) isEBGP(r Route) bool {
	return r.PeerAS != 0 && uint32(r.PeerAS) != d.LocalAS
}

func asPathLength(r Route) int {
	p, ok := r.ASPath()
	if !ok {
		return 0
	}
	return p.Length()
}

// originRank orders ORIGIN values IGP < EGP < INCOMPLETE, matching their
// numeric wire values, so a bare subtraction would do; spelled out for
// clarity and to default a missing ORIGIN to the worst rank rather than
// the best one.
func originRank(r Route) int {
	o, ok := r.Origin()
	if !ok {
		return int(message.OriginIncomplete) + 1
	}
	return int(o.Value)
}

// Equal reports whether two routes carry identical attributes for the
// same prefix, used to tell a genuine change from a no-op re-advertisement.
func Equal(a, b Route) bool {
	if !a.Prefix.Equal(b.Prefix) || len(a.Attributes) != len(b.Attributes) {
		return false
	}
	for i := range a.Attributes {
		if !bytes.Equal(encodeForCompare(a.Attributes[i]), encodeForCompare(b.Attributes[i])) {
			return false
		}
	}
	return true
}

func encodeForCompare(a message.PathAttribute) []byte {
	// PathAttribute has no exported encoder; round-trip through an
	// UpdateMessage to get a stable byte representation for comparison.
	u := &message.UpdateMessage{PathAttributes: []message.PathAttribute{a}}
	return u.Encode()
}
