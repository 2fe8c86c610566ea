package rib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitorykris/bgpd/bgp"
	"github.com/transitorykris/bgpd/message"
)

func mkRoute(peerIP string, peerAS bgp.ASN, attrs ...message.PathAttribute) Route {
	return Route{Prefix: bgp.MustPrefix("10.0.0.0/24"), PeerIP: peerIP, PeerAS: peerAS, Attributes: attrs}
}

func TestShouldAdvertiseSplitHorizon(t *testing.T) {
	local := PeerView{AS: 65000}
	r := mkRoute("10.0.0.1", 65001)
	to := PeerView{IP: "10.0.0.1", AS: 65001}
	assert.False(t, ShouldAdvertise(r, local, to, nil))
}

func TestShouldAdvertiseSuppressesIBGPToIBGP(t *testing.T) {
	local := PeerView{AS: 65000}
	r := mkRoute("10.0.0.1", 65000) // learned from an iBGP peer
	to := PeerView{IP: "10.0.0.2", AS: 65000}
	assert.False(t, ShouldAdvertise(r, local, to, nil))
}

func TestShouldAdvertiseReflectionHookOverridesSuppression(t *testing.T) {
	local := PeerView{AS: 65000}
	r := mkRoute("10.0.0.1", 65000)
	to := PeerView{IP: "10.0.0.2", AS: 65000, RouteReflectorClient: true}
	always := reflectAlways{}
	assert.True(t, ShouldAdvertise(r, local, to, always))
}

func TestShouldAdvertiseEBGPLearnedToIBGPAlwaysAllowed(t *testing.T) {
	local := PeerView{AS: 65000}
	r := mkRoute("10.0.0.1", 65001) // learned over eBGP
	to := PeerView{IP: "10.0.0.2", AS: 65000}
	assert.True(t, ShouldAdvertise(r, local, to, nil))
}

type reflectAlways struct{}

func (reflectAlways) ShouldReflect(Route, PeerView, PeerView) bool { return true }

func TestPrepareForAdvertisementPrependsASForEBGP(t *testing.T) {
	id, _ := bgp.NewIdentifier(bgp.MustPrefix("192.0.2.1/32").Addr)
	local := PeerView{AS: 65000, RouterID: id}
	to := PeerView{AS: 65001}
	r := mkRoute("", 0,
		message.OriginAttribute{Value: message.OriginIGP},
		message.ASPathAttribute{Segments: []message.ASPathSegment{{Type: message.ASPathSequence, ASNs: []bgp.ASN{65002}}}},
		message.NextHopAttribute{IP: bgp.MustPrefix("198.51.100.1/32").Addr},
	)

	out := PrepareForAdvertisement(r, local, to)
	asPath, ok := message.FindASPath(out)
	require.True(t, ok)
	assert.Equal(t, []bgp.ASN{65000, 65002}, asPath.Segments[0].ASNs)

	nh, ok := message.FindNextHop(out)
	require.True(t, ok)
	assert.True(t, nh.IP.Equal(id.IP()))
}

func TestPrepareForAdvertisementStripsLocalPrefForEBGP(t *testing.T) {
	id, _ := bgp.NewIdentifier(bgp.MustPrefix("192.0.2.1/32").Addr)
	local := PeerView{AS: 65000, RouterID: id}
	to := PeerView{AS: 65001}
	r := mkRoute("", 0, message.LocalPrefAttribute{Value: 200})

	out := PrepareForAdvertisement(r, local, to)
	_, ok := message.FindLocalPref(out)
	assert.False(t, ok)
}

func TestPrepareForAdvertisementDefaultsLocalPrefForIBGP(t *testing.T) {
	id, _ := bgp.NewIdentifier(bgp.MustPrefix("192.0.2.1/32").Addr)
	local := PeerView{AS: 65000, RouterID: id}
	to := PeerView{AS: 65000}
	r := mkRoute("", 0, message.OriginAttribute{Value: message.OriginIGP})

	out := PrepareForAdvertisement(r, local, to)
	lp, ok := message.FindLocalPref(out)
	require.True(t, ok)
	assert.EqualValues(t, message.DefaultLocalPref, lp.Value)
}
