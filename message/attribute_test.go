package message

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/transitorykris/bgpd/bgp"
)

func TestASPathLengthCountsSetOnce(t *testing.T) {
	a := ASPathAttribute{Segments: []ASPathSegment{
		{Type: ASPathSet, ASNs: []bgp.ASN{65001, 65002, 65003}},
		{Type: ASPathSequence, ASNs: []bgp.ASN{65004, 65005}},
	}}
	assert.Equal(t, 3, a.Length())
}

func TestUnknownAttributeGainsPartialBit(t *testing.T) {
	u := UnknownAttribute{TypeCode: 99, RawFlags: flagOptional | flagTransitive, Value: []byte{0x01}}
	assert.NotZero(t, u.flags()&flagPartial)
}

func TestUnknownAttributeNonTransitiveKeepsFlags(t *testing.T) {
	u := UnknownAttribute{TypeCode: 99, RawFlags: flagOptional, Value: []byte{0x01}}
	assert.Equal(t, flagOptional, u.flags())
}

func TestDecodeAttributesRoundTrip(t *testing.T) {
	attrs := []PathAttribute{
		OriginAttribute{Value: OriginEGP},
		LocalPrefAttribute{Value: 200},
		MEDAttribute{Value: 10},
	}
	var encoded []byte
	for _, a := range attrs {
		encoded = append(encoded, encodeAttribute(a)...)
	}
	decoded, err := decodeAttributes(encoded)
	assert.NoError(t, err)
	assert.Len(t, decoded, 3)

	origin, ok := FindOrigin(decoded)
	assert.True(t, ok)
	assert.Equal(t, byte(OriginEGP), origin.Value)

	lp, ok := FindLocalPref(decoded)
	assert.True(t, ok)
	assert.EqualValues(t, 200, lp.Value)

	med, ok := FindMED(decoded)
	assert.True(t, ok)
	assert.EqualValues(t, 10, med.Value)
}

func TestDecodeAttributesRejectsTruncatedList(t *testing.T) {
	_, err := decodeAttributes([]byte{flagTransitive, AttrOrigin})
	assert.Error(t, err)
}
