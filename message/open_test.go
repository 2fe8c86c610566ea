package message

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitorykris/bgpd/bgp"
)

func TestOpenRoundTrip(t *testing.T) {
	id, err := bgp.NewIdentifier(bgp.MustPrefix("10.0.0.1/32").Addr)
	require.NoError(t, err)

	o := NewOpen(65001, 180, id)
	msg, err := ReadMessage(bytes.NewReader(o.Encode()))
	require.NoError(t, err)

	got, ok := msg.(*OpenMessage)
	require.True(t, ok)
	assert.Equal(t, bgp.ASN(65001), got.MyAS())
	assert.EqualValues(t, 180, got.HoldTime)
	assert.Equal(t, id, got.Identifier)
}

func TestOpenFourOctetAS(t *testing.T) {
	id, _ := bgp.NewIdentifier(bgp.MustPrefix("10.0.0.1/32").Addr)
	o := NewOpen(bgp.ASN(400000), 180, id)
	assert.EqualValues(t, ASTrans, o.AS2)

	msg, err := ReadMessage(bytes.NewReader(o.Encode()))
	require.NoError(t, err)
	got := msg.(*OpenMessage)
	assert.Equal(t, bgp.ASN(400000), got.MyAS())
}

func TestOpenValidateRejectsWrongAS(t *testing.T) {
	id, _ := bgp.NewIdentifier(bgp.MustPrefix("10.0.0.1/32").Addr)
	o := NewOpen(65001, 180, id)
	err := o.Validate(65099, 180)
	require.Error(t, err)
	assert.Equal(t, BadPeerAS, err.Subcode)
}

func TestOpenValidateRejectsLowHoldTime(t *testing.T) {
	id, _ := bgp.NewIdentifier(bgp.MustPrefix("10.0.0.1/32").Addr)
	o := NewOpen(65001, 1, id)
	err := o.Validate(65001, 180)
	require.Error(t, err)
	assert.Equal(t, UnacceptableHoldTime, err.Subcode)
}

func TestOpenValidateAcceptsMatching(t *testing.T) {
	id, _ := bgp.NewIdentifier(bgp.MustPrefix("10.0.0.1/32").Addr)
	o := NewOpen(65001, 180, id)
	assert.Nil(t, o.Validate(65001, 180))
}

func TestNegotiatedHoldTime(t *testing.T) {
	assert.EqualValues(t, 90, NegotiatedHoldTime(90, 180))
	assert.EqualValues(t, 90, NegotiatedHoldTime(180, 90))
}
