package rib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/transitorykris/bgpd/bgp"
	"github.com/transitorykris/bgpd/message"
)

func route(prefix string, peerAS bgp.ASN, localPref uint32, asPathLen int, med uint32, age time.Time) Route {
	segs := make([]bgp.ASN, asPathLen)
	for i := range segs {
		segs[i] = bgp.ASN(65100 + i)
	}
	return Route{
		Prefix: bgp.MustPrefix(prefix),
		Attributes: []message.PathAttribute{
			message.OriginAttribute{Value: message.OriginIGP},
			message.ASPathAttribute{Segments: []message.ASPathSegment{{Type: message.ASPathSequence, ASNs: segs}}},
			message.LocalPrefAttribute{Value: localPref},
			message.MEDAttribute{Value: med},
		},
		PeerAS:     peerAS,
		ReceivedAt: age,
	}
}

func TestDecisionPrefersHigherLocalPref(t *testing.T) {
	d := Decider{LocalAS: 65000}
	now := time.Unix(1000, 0)
	a := route("10.0.0.0/24", 65001, 200, 1, 0, now)
	b := route("10.0.0.0/24", 65001, 100, 1, 0, now)
	assert.True(t, d.Better(a, b))
	assert.False(t, d.Better(b, a))
}

func TestDecisionPrefersShorterASPath(t *testing.T) {
	d := Decider{LocalAS: 65000}
	now := time.Unix(1000, 0)
	a := route("10.0.0.0/24", 65001, 100, 1, 0, now)
	b := route("10.0.0.0/24", 65001, 100, 3, 0, now)
	assert.True(t, d.Better(a, b))
}

func TestDecisionComparesMEDOnlyWithinSameNeighborAS(t *testing.T) {
	d := Decider{LocalAS: 65000}
	now := time.Unix(1000, 0)

	lowerMED := route("10.0.0.0/24", 65001, 100, 1, 10, now)
	higherMED := route("10.0.0.0/24", 65001, 100, 1, 20, now)
	assert.True(t, d.Better(lowerMED, higherMED))

	// MED isn't comparable across different neighboring ASes. With
	// everything else tied, comparison skips the MED step and every later
	// step (eBGP/iBGP, route age, router ID, peer IP) ties too, so neither
	// route is preferred over the other.
	differentNeighborHigherMED := route("10.0.0.0/24", 65002, 100, 1, 999, now)
	assert.False(t, d.Better(differentNeighborHigherMED, lowerMED))
	assert.False(t, d.Better(lowerMED, differentNeighborHigherMED))
}

func TestDecisionPrefersEBGPOverIBGP(t *testing.T) {
	d := Decider{LocalAS: 65000}
	now := time.Unix(1000, 0)
	ebgp := route("10.0.0.0/24", 65001, 100, 1, 0, now)
	ibgp := route("10.0.0.0/24", 65000, 100, 1, 0, now)
	assert.True(t, d.Better(ebgp, ibgp))
}

func TestDecisionPrefersOlderRoute(t *testing.T) {
	d := Decider{LocalAS: 65000}
	older := route("10.0.0.0/24", 65001, 100, 1, 0, time.Unix(500, 0))
	newer := route("10.0.0.0/24", 65001, 100, 1, 0, time.Unix(1000, 0))
	assert.True(t, d.Better(older, newer))
}

func TestDecisionTiebreaksOnRouterIDThenPeerIP(t *testing.T) {
	d := Decider{LocalAS: 65000}
	now := time.Unix(1000, 0)
	a := route("10.0.0.0/24", 65001, 100, 1, 0, now)
	a.RouterID = 1
	a.PeerIP = "10.0.0.1"
	b := route("10.0.0.0/24", 65001, 100, 1, 0, now)
	b.RouterID = 2
	b.PeerIP = "10.0.0.2"
	assert.True(t, d.Better(a, b))
}

func TestBestPicksTopCandidate(t *testing.T) {
	d := Decider{LocalAS: 65000}
	now := time.Unix(1000, 0)
	candidates := []Route{
		route("10.0.0.0/24", 65001, 100, 3, 0, now),
		route("10.0.0.0/24", 65001, 200, 1, 0, now),
		route("10.0.0.0/24", 65001, 50, 1, 0, now),
	}
	best := d.Best(candidates)
	assert.EqualValues(t, 200, best.LocalPref())
}

func TestEqualDetectsAttributeChanges(t *testing.T) {
	now := time.Unix(1000, 0)
	a := route("10.0.0.0/24", 65001, 100, 1, 0, now)
	b := route("10.0.0.0/24", 65001, 100, 1, 0, now)
	assert.True(t, Equal(a, b))

	c := route("10.0.0.0/24", 65001, 150, 1, 0, now)
	assert.False(t, Equal(a, c))
}
