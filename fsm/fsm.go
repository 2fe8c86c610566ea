// Package fsm implements the per-peer BGP state machine of RFC 4271
// section 8 as a pure transition table: states and events are tagged
// variants, and stepping the machine returns the actions the caller must
// carry out rather than performing any I/O itself. The session package
// owns the timers, the socket, and the RIBs; this package only owns
// "what state comes next, and what do we do about it."
package fsm

import "fmt"

// State is one of the six states a BGP connection passes through.
type State int

const (
	Idle State = iota
	Connect
	Active
	OpenSent
	OpenConfirm
	Established
)

var stateName = map[State]string{
	Idle:        "Idle",
	Connect:     "Connect",
	Active:      "Active",
	OpenSent:    "OpenSent",
	OpenConfirm: "OpenConfirm",
	Established: "Established",
}

func (s State) String() string {
	if n, ok := stateName[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Event is one of the RFC 4271 section 8.1 events this speaker acts on.
// Events that subsection lists but this speaker never generates (the
// delay-open and idle-hold-timer family, automatic start/stop variants)
// are left out; they're optional session attributes this speaker doesn't
// set.
type Event int

const (
	ManualStart Event = iota
	ManualStop
	ConnectRetryTimerExpires
	HoldTimerExpires
	KeepaliveTimerExpires
	TcpConnectionConfirmed
	TcpConnectionFails
	BGPOpen
	BGPHeaderErr
	BGPOpenMsgErr
	NotifMsg
	KeepAliveMsg
	UpdateMsg
	UpdateMsgErr
	OpenCollisionDump
)

var eventName = map[Event]string{
	ManualStart:              "ManualStart",
	ManualStop:               "ManualStop",
	ConnectRetryTimerExpires: "ConnectRetryTimerExpires",
	HoldTimerExpires:         "HoldTimerExpires",
	KeepaliveTimerExpires:    "KeepaliveTimerExpires",
	TcpConnectionConfirmed:   "TcpConnectionConfirmed",
	TcpConnectionFails:       "TcpConnectionFails",
	BGPOpen:                  "BGPOpen",
	BGPHeaderErr:             "BGPHeaderErr",
	BGPOpenMsgErr:            "BGPOpenMsgErr",
	NotifMsg:                 "NotifMsg",
	KeepAliveMsg:             "KeepAliveMsg",
	UpdateMsg:                "UpdateMsg",
	UpdateMsgErr:             "UpdateMsgErr",
	OpenCollisionDump:        "OpenCollisionDump",
}

func (e Event) String() string {
	if n, ok := eventName[e]; ok {
		return n
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Action is one side effect a transition requires of its caller. Actions
// are returned in the order they should be carried out.
type Action int

const (
	InitiateTCP Action = iota
	DropTCP
	StartConnectRetryTimer
	StopConnectRetryTimer
	ResetConnectRetryTimer
	IncrementConnectRetryCounter
	SendOpen
	SendKeepalive
	SendNotifFSMError
	StartLargeHoldTimer // 4 minutes, per RFC 4271 section 8.2.2, while no hold time is negotiated yet
	NegotiateHoldTime   // min(local, remote) from the just-received OPEN
	StartHoldTimer
	StopHoldTimer
	StartKeepaliveTimer
	StopKeepaliveTimer
	ReleaseResources
	FeedUpdate
	NotifyEstablished
	NotifyIdle
	SendNotifHoldTimerExpired
)

var actionName = map[Action]string{
	InitiateTCP:                  "InitiateTCP",
	DropTCP:                      "DropTCP",
	StartConnectRetryTimer:       "StartConnectRetryTimer",
	StopConnectRetryTimer:        "StopConnectRetryTimer",
	ResetConnectRetryTimer:       "ResetConnectRetryTimer",
	IncrementConnectRetryCounter: "IncrementConnectRetryCounter",
	SendOpen:                     "SendOpen",
	SendKeepalive:                "SendKeepalive",
	SendNotifFSMError:            "SendNotifFSMError",
	StartLargeHoldTimer:          "StartLargeHoldTimer",
	NegotiateHoldTime:            "NegotiateHoldTime",
	StartHoldTimer:               "StartHoldTimer",
	StopHoldTimer:                "StopHoldTimer",
	StartKeepaliveTimer:          "StartKeepaliveTimer",
	StopKeepaliveTimer:           "StopKeepaliveTimer",
	ReleaseResources:             "ReleaseResources",
	FeedUpdate:                   "FeedUpdate",
	NotifyEstablished:            "NotifyEstablished",
	NotifyIdle:                   "NotifyIdle",
	SendNotifHoldTimerExpired:    "SendNotifHoldTimerExpired",
}

func (a Action) String() string {
	if n, ok := actionName[a]; ok {
		return n
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Machine is one peer connection's FSM. It holds only the current state;
// everything else a real session needs (timers, sockets, counters) lives
// in the session package, driven by the Actions a Step returns.
type Machine struct {
	state   State
	passive bool
}

// New creates a machine in Idle. passive marks a peer that never
// initiates TCP itself (spec.md section 4.3's passive accept and mesh
// peers, which section 3's invariant 4 requires be passive).
func New(passive bool) *Machine {
	return &Machine{state: Idle, passive: passive}
}

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

// ForceIdle resets the machine to Idle outside of the normal transition
// table. A conforming implementation could instead run a second,
// short-lived FSM for a not-yet-identified incoming connection and let the
// losing FSM's own OpenCollisionDump transition (see below) retire it; a
// single FSM per configured peer has no second machine to deliver that
// event to, so the runtime resets this one directly instead where a full
// teardown is wanted.
func (m *Machine) ForceIdle() { m.state = Idle }

// ForceReconnecting resets the machine to Connect (or Active, for a
// passive peer) outside of the normal transition table. It exists for RFC
// 4271 section 6.8 connection collision: when an incoming connection wins
// against an outgoing one this same session is already using in
// OpenSent/OpenConfirm, the runtime needs to replay the winning
// connection through the ordinary Connect/Active -> OpenSent transition
// (send OPEN, start the large hold timer) rather than through Idle, which
// has no transition for TcpConnectionConfirmed at all.
func (m *Machine) ForceReconnecting() {
	if m.passive {
		m.state = Active
	} else {
		m.state = Connect
	}
}

// idleActions is what every active-state error path converges to: drop
// the TCP connection, release per-connection resources, and land back in
// Idle ready for another attempt.
func idleActions(extra ...Action) []Action {
	return append(append([]Action{}, extra...), DropTCP, ReleaseResources, NotifyIdle)
}

// Step applies ev to the machine and returns the actions the caller must
// perform, in order. An event with no defined transition in the current
// state is a no-op: RFC 4271 section 8.2.2 leaves "Optional Session
// Attributes" events undefined outside the states that use them, and this
// speaker treats any other unexpected event as ignorable rather than
// fatal. This includes BGPOpen and UpdateMsg received outside the states
// that expect them: no FSM Error NOTIFICATION is sent for those.
func (m *Machine) Step(ev Event) []Action {
	from := m.state
	actions, to := m.transition(from, ev)
	m.state = to
	return actions
}

func (m *Machine) transition(from State, ev Event) ([]Action, State) {
	switch from {
	case Idle:
		switch ev {
		case ManualStart:
			if m.passive {
				return []Action{StartConnectRetryTimer}, Active
			}
			return []Action{StartConnectRetryTimer, InitiateTCP}, Connect
		}

	case Connect:
		switch ev {
		case ConnectRetryTimerExpires:
			return []Action{ResetConnectRetryTimer, InitiateTCP}, Connect
		case TcpConnectionConfirmed:
			return []Action{StopConnectRetryTimer, SendOpen, StartLargeHoldTimer}, OpenSent
		case TcpConnectionFails:
			return []Action{ResetConnectRetryTimer}, Active
		case ManualStop:
			return idleActions(StopConnectRetryTimer), Idle
		}

	case Active:
		switch ev {
		case ConnectRetryTimerExpires:
			return []Action{ResetConnectRetryTimer, InitiateTCP}, Connect
		case TcpConnectionConfirmed:
			return []Action{StopConnectRetryTimer, SendOpen, StartLargeHoldTimer}, OpenSent
		case TcpConnectionFails:
			return []Action{ResetConnectRetryTimer, IncrementConnectRetryCounter}, Idle
		case ManualStop:
			return idleActions(StopConnectRetryTimer), Idle
		}

	case OpenSent:
		switch ev {
		case BGPOpen:
			return []Action{StopConnectRetryTimer, NegotiateHoldTime, SendKeepalive, StartKeepaliveTimer, StartHoldTimer}, OpenConfirm
		case BGPHeaderErr, BGPOpenMsgErr:
			// The specific NOTIFICATION (header error or OPEN error) is
			// already sent by the caller before this event is dispatched
			// (session.handle/startReader); sending SendNotifFSMError here
			// too would put a second NOTIFICATION on the wire before the
			// connection closes.
			return idleActions(), Idle
		case TcpConnectionFails:
			return idleActions(), Active
		case NotifMsg:
			return idleActions(), Idle
		case OpenCollisionDump:
			return idleActions(SendNotifFSMError), Idle
		case ManualStop:
			return idleActions(StopConnectRetryTimer), Idle
		}

	case OpenConfirm:
		switch ev {
		case KeepAliveMsg:
			return []Action{NotifyEstablished}, Established
		case KeepaliveTimerExpires:
			return []Action{SendKeepalive}, OpenConfirm
		case HoldTimerExpires:
			return idleActions(SendNotifHoldTimerExpired, StopKeepaliveTimer), Idle
		case BGPHeaderErr, BGPOpenMsgErr:
			// See the matching OpenSent case: the specific NOTIFICATION was
			// already sent by the caller.
			return idleActions(StopKeepaliveTimer), Idle
		case NotifMsg:
			return idleActions(StopKeepaliveTimer), Idle
		case TcpConnectionFails:
			return idleActions(StopKeepaliveTimer), Idle
		case OpenCollisionDump:
			return idleActions(SendNotifFSMError, StopKeepaliveTimer), Idle
		case ManualStop:
			return idleActions(StopConnectRetryTimer, StopKeepaliveTimer), Idle
		}

	case Established:
		switch ev {
		case KeepAliveMsg:
			return []Action{StartHoldTimer}, Established
		case UpdateMsg:
			return []Action{StartHoldTimer, FeedUpdate}, Established
		case KeepaliveTimerExpires:
			return []Action{SendKeepalive}, Established
		case UpdateMsgErr:
			// The specific NOTIFICATION was already sent by the caller
			// (session.handle's applyUpdate path); no second one here.
			return idleActions(StopKeepaliveTimer), Idle
		case BGPHeaderErr, BGPOpenMsgErr:
			// A framing error on the established connection's reader, or a
			// re-sent OPEN that fails validation: tear down immediately
			// rather than leaving the FSM claiming Established against a
			// connection whose reader has already returned. The specific
			// NOTIFICATION was already sent by the caller.
			return idleActions(StopKeepaliveTimer), Idle
		case HoldTimerExpires:
			return idleActions(SendNotifHoldTimerExpired, StopKeepaliveTimer), Idle
		case NotifMsg:
			return idleActions(StopKeepaliveTimer), Idle
		case TcpConnectionFails:
			return idleActions(StopKeepaliveTimer), Idle
		case OpenCollisionDump:
			// RFC 4271 section 6.8: a collision detected once Established
			// is kept unconditionally; the caller never actually raises
			// this event from Established (see the session/agent
			// collision handling), but treat it identically to NotifMsg
			// rather than panic if it ever does.
			return idleActions(StopKeepaliveTimer), Idle
		case ManualStop:
			return idleActions(StopConnectRetryTimer, StopKeepaliveTimer), Idle
		}
	}

	// Any state: ManualStop always tears down to Idle even if not listed
	// explicitly above for states not yet handled by a case.
	if ev == ManualStop {
		return idleActions(StopConnectRetryTimer, StopKeepaliveTimer), Idle
	}

	return nil, from
}
