package rib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/transitorykris/bgpd/bgp"
	"github.com/transitorykris/bgpd/message"
)

func TestAdjRIBInUpdateAndWithdraw(t *testing.T) {
	a := NewAdjRIBIn()
	r := Route{Prefix: bgp.MustPrefix("10.0.0.0/24")}
	a.Update(r)
	assert.Equal(t, 1, a.Len())

	got, ok := a.Get(r.Prefix)
	assert.True(t, ok)
	assert.True(t, got.Prefix.Equal(r.Prefix))

	assert.True(t, a.Withdraw(r.Prefix))
	assert.Equal(t, 0, a.Len())
	assert.False(t, a.Withdraw(r.Prefix))
}

func TestAdjRIBInClearReturnsAllPrefixes(t *testing.T) {
	a := NewAdjRIBIn()
	a.Update(Route{Prefix: bgp.MustPrefix("10.0.0.0/24")})
	a.Update(Route{Prefix: bgp.MustPrefix("10.0.1.0/24")})
	cleared := a.Clear()
	assert.Len(t, cleared, 2)
	assert.Equal(t, 0, a.Len())
}

func TestAdjRIBOutTracksAdvertisedRoutes(t *testing.T) {
	out := NewAdjRIBOut()
	r := Route{Prefix: bgp.MustPrefix("10.0.0.0/24")}
	out.Set(r)
	_, ok := out.Get(r.Prefix)
	assert.True(t, ok)
	assert.Len(t, out.Prefixes(), 1)
	out.Remove(r.Prefix)
	assert.Equal(t, 0, out.Len())
}

func TestLocRIBInstallReportsChange(t *testing.T) {
	l := NewLocRIB()
	r := Route{
		Prefix:     bgp.MustPrefix("10.0.0.0/24"),
		Attributes: []message.PathAttribute{message.OriginAttribute{Value: message.OriginIGP}},
		ReceivedAt: time.Unix(1, 0),
	}
	assert.True(t, l.Install(r))
	assert.False(t, l.Install(r), "re-installing an identical route should not report a change")

	r.Attributes = []message.PathAttribute{message.OriginAttribute{Value: message.OriginEGP}}
	assert.True(t, l.Install(r), "changed attributes should report a change")
}

func TestLocRIBRemove(t *testing.T) {
	l := NewLocRIB()
	r := Route{Prefix: bgp.MustPrefix("10.0.0.0/24")}
	l.Install(r)
	assert.True(t, l.Remove(r.Prefix))
	assert.False(t, l.Remove(r.Prefix))
	assert.Equal(t, 0, l.Len())
}
