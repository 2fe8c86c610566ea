package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActiveSpeakerDialsOnManualStart(t *testing.T) {
	m := New(false)
	assert.Equal(t, Idle, m.State())

	actions := m.Step(ManualStart)
	assert.Equal(t, Connect, m.State())
	assert.Equal(t, []Action{StartConnectRetryTimer, InitiateTCP}, actions)
}

func TestPassiveSpeakerWaitsInActive(t *testing.T) {
	m := New(true)
	actions := m.Step(ManualStart)
	assert.Equal(t, Active, m.State())
	assert.Equal(t, []Action{StartConnectRetryTimer}, actions)
}

func TestFullHandshakeReachesEstablished(t *testing.T) {
	m := New(false)
	m.Step(ManualStart)
	m.Step(TcpConnectionConfirmed)
	assert.Equal(t, OpenSent, m.State())

	m.Step(BGPOpen)
	assert.Equal(t, OpenConfirm, m.State())

	actions := m.Step(KeepAliveMsg)
	assert.Equal(t, Established, m.State())
	assert.Equal(t, []Action{NotifyEstablished}, actions)
}

func TestKeepaliveTimerFiresWithoutLeavingEstablished(t *testing.T) {
	m := New(false)
	m.Step(ManualStart)
	m.Step(TcpConnectionConfirmed)
	m.Step(BGPOpen)
	m.Step(KeepAliveMsg)
	require := assert.Equal
	require(t, Established, m.State())

	actions := m.Step(KeepaliveTimerExpires)
	assert.Equal(t, Established, m.State())
	assert.Equal(t, []Action{SendKeepalive}, actions)
}

func TestKeepaliveTimerFiresInOpenConfirmWithoutLeavingIt(t *testing.T) {
	m := New(false)
	m.Step(ManualStart)
	m.Step(TcpConnectionConfirmed)
	m.Step(BGPOpen)
	assert.Equal(t, OpenConfirm, m.State())

	actions := m.Step(KeepaliveTimerExpires)
	assert.Equal(t, OpenConfirm, m.State())
	assert.Equal(t, []Action{SendKeepalive}, actions)
}

func TestHoldTimerExpiryDropsToIdle(t *testing.T) {
	m := New(false)
	m.Step(ManualStart)
	m.Step(TcpConnectionConfirmed)
	m.Step(BGPOpen)
	m.Step(KeepAliveMsg)

	actions := m.Step(HoldTimerExpires)
	assert.Equal(t, Idle, m.State())
	assert.Contains(t, actions, SendNotifHoldTimerExpired)
	assert.Contains(t, actions, DropTCP)
	assert.Contains(t, actions, StopKeepaliveTimer)
}

func TestHeaderErrorInEstablishedTearsDownImmediately(t *testing.T) {
	m := New(false)
	m.Step(ManualStart)
	m.Step(TcpConnectionConfirmed)
	m.Step(BGPOpen)
	m.Step(KeepAliveMsg)
	assert.Equal(t, Established, m.State())

	actions := m.Step(BGPHeaderErr)
	assert.Equal(t, Idle, m.State())
	assert.Contains(t, actions, DropTCP)
	assert.Contains(t, actions, StopKeepaliveTimer)
	assert.NotContains(t, actions, SendNotifFSMError)
}

func TestManualStopAlwaysReturnsToIdle(t *testing.T) {
	for _, from := range []State{Idle, Connect, Active, OpenSent, OpenConfirm, Established} {
		m := &Machine{state: from}
		actions := m.Step(ManualStop)
		assert.Equal(t, Idle, m.State(), "from state %s", from)
		assert.Contains(t, actions, DropTCP)
	}
}

func TestUndefinedEventInCurrentStateIsANoOp(t *testing.T) {
	m := New(false)
	actions := m.Step(KeepAliveMsg) // Idle never expects this
	assert.Equal(t, Idle, m.State())
	assert.Nil(t, actions)
}

func TestForceIdleBypassesTheTransitionTable(t *testing.T) {
	m := New(false)
	m.Step(ManualStart)
	m.Step(TcpConnectionConfirmed)
	assert.Equal(t, OpenSent, m.State())

	m.ForceIdle()
	assert.Equal(t, Idle, m.State())
}

func TestStateAndEventStringersCoverEveryValue(t *testing.T) {
	for s := Idle; s <= Established; s++ {
		assert.NotContains(t, s.String(), "State(")
	}
	for e := ManualStart; e <= OpenCollisionDump; e++ {
		assert.NotContains(t, e.String(), "Event(")
	}
}
