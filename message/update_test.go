package message

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitorykris/bgpd/bgp"
)

func TestUpdateRoundTrip(t *testing.T) {
	u := &UpdateMessage{
		WithdrawnRoutes: []bgp.Prefix{bgp.MustPrefix("10.0.0.0/24")},
		PathAttributes: []PathAttribute{
			OriginAttribute{Value: OriginIGP},
			ASPathAttribute{Segments: []ASPathSegment{{Type: ASPathSequence, ASNs: []bgp.ASN{65001, 65002}}}},
			NextHopAttribute{IP: bgp.MustPrefix("192.0.2.1/32").Addr},
		},
		NLRI: []bgp.Prefix{bgp.MustPrefix("172.16.0.0/16"), bgp.MustPrefix("172.17.1.0/25")},
	}

	encoded := u.Encode()
	msg, err := ReadMessage(bytes.NewReader(encoded))
	require.NoError(t, err)

	got, ok := msg.(*UpdateMessage)
	require.True(t, ok)
	require.Len(t, got.WithdrawnRoutes, 1)
	assert.True(t, got.WithdrawnRoutes[0].Equal(bgp.MustPrefix("10.0.0.0/24")))
	require.Len(t, got.NLRI, 2)
	assert.True(t, got.NLRI[0].Equal(bgp.MustPrefix("172.16.0.0/16")))
	assert.True(t, got.NLRI[1].Equal(bgp.MustPrefix("172.17.1.0/25")))

	origin, ok := FindOrigin(got.PathAttributes)
	require.True(t, ok)
	assert.Equal(t, byte(OriginIGP), origin.Value)

	asPath, ok := FindASPath(got.PathAttributes)
	require.True(t, ok)
	assert.Equal(t, 2, asPath.Length())

	nextHop, ok := FindNextHop(got.PathAttributes)
	require.True(t, ok)
	assert.True(t, nextHop.IP.Equal(bgp.MustPrefix("192.0.2.1/32").Addr))
}

func TestUpdateEndOfRIB(t *testing.T) {
	u := &UpdateMessage{}
	assert.True(t, u.EndOfRIB())

	u.NLRI = []bgp.Prefix{bgp.MustPrefix("10.0.0.0/8")}
	assert.False(t, u.EndOfRIB())
}

func TestASPathPrepend(t *testing.T) {
	a := ASPathAttribute{Segments: []ASPathSegment{{Type: ASPathSequence, ASNs: []bgp.ASN{65002}}}}
	prepended := a.Prepend(65001)
	assert.Equal(t, []bgp.ASN{65001, 65002}, prepended.Segments[0].ASNs)
}

func TestASPathPrependOntoEmptyPath(t *testing.T) {
	a := ASPathAttribute{}
	prepended := a.Prepend(65001)
	require.Len(t, prepended.Segments, 1)
	assert.Equal(t, []bgp.ASN{65001}, prepended.Segments[0].ASNs)
}

func TestDecodePrefixesRejectsOversizedLength(t *testing.T) {
	_, err := decodePrefixes([]byte{33})
	assert.Error(t, err)
}
