package session

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitorykris/bgpd/bgp"
	"github.com/transitorykris/bgpd/fsm"
	"github.com/transitorykris/bgpd/message"
	"github.com/transitorykris/bgpd/rib"
)

func TestConfigDefaults(t *testing.T) {
	c := Config{}
	assert.Equal(t, DefaultHoldTime, c.holdTime())
	assert.Equal(t, DefaultConnectRetryInterval, c.connectRetryInterval())
	assert.Equal(t, DefaultPort, c.port())
}

func TestConfigOverridesDefaults(t *testing.T) {
	c := Config{HoldTime: 30 * time.Second, ConnectRetryInterval: 5 * time.Second, Port: 1179}
	assert.Equal(t, 30*time.Second, c.holdTime())
	assert.Equal(t, 5*time.Second, c.connectRetryInterval())
	assert.Equal(t, 1179, c.port())
}

func TestJitterStaysWithinQuarterBounds(t *testing.T) {
	d := 120 * time.Second
	for i := 0; i < 20; i++ {
		j := jitter(d)
		assert.GreaterOrEqual(t, j, d-d/4)
		assert.LessOrEqual(t, j, d+d/4)
	}
}

func TestGroupByAttributesBatchesIdenticalAttributeSets(t *testing.T) {
	attrsA := []message.PathAttribute{message.OriginAttribute{Value: message.OriginIGP}}
	attrsB := []message.PathAttribute{message.OriginAttribute{Value: message.OriginEGP}}

	routes := []rib.Route{
		{Prefix: bgp.MustPrefix("10.0.0.0/24"), Attributes: attrsA},
		{Prefix: bgp.MustPrefix("10.0.1.0/24"), Attributes: attrsA},
		{Prefix: bgp.MustPrefix("10.0.2.0/24"), Attributes: attrsB},
	}

	groups := groupByAttributes(routes)
	assert.Len(t, groups, 2)

	total := 0
	for _, g := range groups {
		total += len(g.prefixes)
	}
	assert.Equal(t, 3, total)
}

func TestNewSessionStartsInIdle(t *testing.T) {
	s := New(Config{Key: "peer-a"}, rib.NewLocRIB(), Hooks{}, nil)
	assert.Equal(t, fsm.Idle, s.Snapshot().State)
	assert.Equal(t, 0, s.AdjRIBIn().Len())
	assert.Equal(t, 0, s.AdjRIBOut().Len())
	snap := s.Snapshot()
	assert.Equal(t, "peer-a", snap.Key)
	assert.Zero(t, snap.Uptime)
}

// TestIncomingConnectionWinsCollisionWithHigherIdentifier reproduces
// spec.md's connection collision scenario (f): both sides are actively
// connecting, this session is sitting in OpenSent on its own outbound
// connection, and an incoming connection arrives carrying a higher BGP
// Identifier than this speaker's own RouterID. RFC 4271 section 6.8 says
// the connection initiated by the higher-identifier speaker is kept.
func TestIncomingConnectionWinsCollisionWithHigherIdentifier(t *testing.T) {
	s := New(Config{Key: "peer-a", RouterID: bgp.Identifier(1)}, rib.NewLocRIB(), Hooks{}, nil)
	s.machine.Step(fsm.ManualStart)
	s.machine.Step(fsm.TcpConnectionConfirmed)
	require.Equal(t, fsm.OpenSent, s.machine.State())

	oldConn, oldRemote := net.Pipe()
	defer oldRemote.Close()
	s.conn = oldConn

	inConn, inRemote := net.Pipe()
	defer inRemote.Close()
	go io.Copy(io.Discard, inRemote)

	open := &message.OpenMessage{Identifier: bgp.Identifier(2)}
	accepted := s.AttachIncoming(context.Background(), inConn, open)

	assert.True(t, accepted)
	assert.Same(t, inConn, s.conn)
	assert.Equal(t, fsm.OpenSent, s.machine.State())

	_, err := oldConn.Write([]byte{0})
	assert.Error(t, err, "the losing connection should have been closed")
}

// TestIncomingConnectionLosesCollisionWithLowerIdentifier is the mirror
// case: the incoming connection's Identifier is lower than this speaker's
// own RouterID, so the existing outbound connection in OpenSent is kept
// and the incoming one is rejected.
func TestIncomingConnectionLosesCollisionWithLowerIdentifier(t *testing.T) {
	s := New(Config{Key: "peer-a", RouterID: bgp.Identifier(9)}, rib.NewLocRIB(), Hooks{}, nil)
	s.machine.Step(fsm.ManualStart)
	s.machine.Step(fsm.TcpConnectionConfirmed)
	require.Equal(t, fsm.OpenSent, s.machine.State())

	oldConn, oldRemote := net.Pipe()
	defer oldRemote.Close()
	defer oldConn.Close()
	s.conn = oldConn

	inConn, inRemote := net.Pipe()
	defer inRemote.Close()

	open := &message.OpenMessage{Identifier: bgp.Identifier(2)}
	accepted := s.AttachIncoming(context.Background(), inConn, open)

	assert.False(t, accepted)
	assert.Same(t, oldConn, s.conn)
	assert.Equal(t, fsm.OpenSent, s.machine.State())

	_, err := inConn.Write([]byte{0})
	assert.Error(t, err, "the rejected incoming connection should have been closed")
}

// TestHoldTimerExpirySendsHoldTimerExpiredNotification asserts the wire
// NOTIFICATION code for hold-timer expiry is HoldTimerExpired (4), not
// the generic FiniteStateMachineError (5) every other FSM-detected error
// path uses.
func TestHoldTimerExpirySendsHoldTimerExpiredNotification(t *testing.T) {
	s := New(Config{Key: "peer-a", RouterID: bgp.Identifier(1)}, rib.NewLocRIB(), Hooks{}, nil)
	s.machine.Step(fsm.ManualStart)
	s.machine.Step(fsm.TcpConnectionConfirmed)
	s.machine.Step(fsm.BGPOpen)
	s.machine.Step(fsm.KeepAliveMsg)
	require.Equal(t, fsm.Established, s.machine.State())

	conn, remote := net.Pipe()
	defer conn.Close()
	defer remote.Close()
	s.conn = conn

	done := make(chan message.Message, 1)
	go func() {
		msg, err := message.ReadMessage(remote)
		assert.NoError(t, err)
		done <- msg
	}()

	s.dispatch(context.Background(), fsm.HoldTimerExpires, signal{})

	select {
	case msg := <-done:
		notif, ok := msg.(*message.NotificationMessage)
		require.True(t, ok, "expected a NOTIFICATION message")
		assert.Equal(t, message.HoldTimerExpired, notif.Code)
		assert.Equal(t, message.NoErrorSubcode, notif.Subcode)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the NOTIFICATION")
	}
}
