// Package session implements the runtime half of a peer connection: TCP
// connect and accept, message framing, the keepalive/hold/connect-retry
// timers, and the per-peer Adj-RIB-In/Adj-RIB-Out pair (RFC 4271 section
// 8's Session runtime, spec.md section 4.3). It drives an fsm.Machine with
// the events those timers and the socket produce, and executes the
// actions the machine returns.
package session

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/transitorykris/bgpd/bgp"
	"github.com/transitorykris/bgpd/counter"
	"github.com/transitorykris/bgpd/fsm"
	"github.com/transitorykris/bgpd/message"
	"github.com/transitorykris/bgpd/rib"
	"github.com/transitorykris/bgpd/timer"
)

// DefaultPort is the standard BGP TCP port.
const DefaultPort = 179

// Defaults mirror RFC 4271 section 10 and spec.md section 5.
const (
	DefaultHoldTime            = 90 * time.Second
	DefaultConnectRetryInterval = 120 * time.Second
	largeHoldTime              = 4 * time.Minute
)

// Config is everything a session needs to know about one configured peer
// (spec.md section 3's "Peer configuration").
type Config struct {
	Key string // peer-ip, or a synthetic key for a mesh peer with no fixed source

	PeerIP   string
	Hostname bool // resolve PeerIP by DNS at each connect attempt
	Port     int
	PeerAS   bgp.ASN // 0 for a mesh peer identified only by AS at OPEN time

	LocalAS  bgp.ASN
	LocalIP  net.IP // advertised as NEXT_HOP to this peer
	RouterID bgp.Identifier

	HoldTime             time.Duration
	ConnectRetryInterval time.Duration

	Passive              bool
	AcceptAnySource      bool // mesh peer: identified by AS in OPEN, never dialed
	RouteReflectorClient bool
}

func (c Config) holdTime() time.Duration {
	if c.HoldTime == 0 {
		return DefaultHoldTime
	}
	return c.HoldTime
}

func (c Config) connectRetryInterval() time.Duration {
	if c.ConnectRetryInterval == 0 {
		return DefaultConnectRetryInterval
	}
	return c.ConnectRetryInterval
}

func (c Config) port() int {
	if c.Port == 0 {
		return DefaultPort
	}
	return c.Port
}

// Hooks are the optional collaborators a Session calls out to; every
// field may be left nil (spec.md section 6's pluggable hooks).
type Hooks struct {
	// Import applies a peer's import policy to a just-received route,
	// returning ok=false to drop it silently (spec.md section 7's
	// "policy rejection: silently drop, do not alarm").
	Import func(peerKey string, r rib.Route) (rib.Route, bool)
	// OnRIBChange is called with the prefixes an Adj-RIB-In update or
	// withdrawal touched, letting the agent drive an event-driven
	// decision cycle in addition to its periodic one.
	OnRIBChange func(s *Session, touched []bgp.Prefix)
	// OnEstablished fires once, when the FSM reaches Established; the
	// agent responds by dumping the current Loc-RIB to this peer.
	OnEstablished func(s *Session)
	// OnStateChange fires on every FSM transition, for get_peers()/metrics.
	OnStateChange func(s *Session, from, to fsm.State)
	// Kernel route installation is not a session hook: the agent calls
	// its own KernelInstaller when Loc-RIB changes.
}

// Session owns one peer's FSM, its one TCP connection, its timers, and
// its Adj-RIB-In/Adj-RIB-Out pair.
type Session struct {
	cfg    Config
	hooks  Hooks
	log    *zap.Logger
	locRIB *rib.LocRIB

	adjIn  *rib.AdjRIBIn
	adjOut *rib.AdjRIBOut

	mu       sync.Mutex
	machine  *fsm.Machine
	conn     net.Conn
	dialGen  int // invalidates stale async dial results after Stop/collision
	remoteID bgp.Identifier

	connectRetryTimer *timer.Timer
	holdTimer         *timer.Timer
	keepaliveTimer    *timer.Timer
	negotiatedHold    time.Duration
	keepaliveInterval time.Duration

	signals chan signal
	cancel  context.CancelFunc
	started bool
	stopped bool

	establishedAt time.Time
	lastNotif     *message.NotificationError

	counters Counters
}

// Counters are the per-kind, per-direction message counts spec.md
// section 6's statistics() exposes.
type Counters struct {
	OpenSent, OpenRecv             counter.Counter
	UpdateSent, UpdateRecv         counter.Counter
	KeepaliveSent, KeepaliveRecv   counter.Counter
	NotificationSent, NotifRecv    counter.Counter
}

type signalKind int

const (
	sigEvent signalKind = iota
	sigDialResult
)

type signal struct {
	kind     signalKind
	ev       fsm.Event
	msg      message.Message
	notifErr *message.NotificationError
	dialGen  int
	conn     net.Conn
	dialErr  error
}

// New creates a Session in the Idle state. It does nothing until Start
// is called.
func New(cfg Config, locRIB *rib.LocRIB, hooks Hooks, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		cfg:     cfg,
		hooks:   hooks,
		log:     log.With(zap.String("peer", cfg.Key)),
		locRIB:  locRIB,
		adjIn:   rib.NewAdjRIBIn(),
		adjOut:  rib.NewAdjRIBOut(),
		machine: fsm.New(cfg.Passive || cfg.AcceptAnySource),
		signals: make(chan signal, 64),
	}
	s.connectRetryTimer = timer.New(cfg.connectRetryInterval(), func() { s.enqueue(fsm.ConnectRetryTimerExpires) })
	s.connectRetryTimer.Stop()
	s.holdTimer = timer.New(largeHoldTime, func() { s.enqueue(fsm.HoldTimerExpires) })
	s.holdTimer.Stop()
	s.keepaliveTimer = timer.New(cfg.holdTime()/3, func() { s.enqueue(fsm.KeepaliveTimerExpires) })
	s.keepaliveTimer.Stop()
	return s
}

// Config returns the session's peer configuration.
func (s *Session) Config() Config { return s.cfg }

// State returns the FSM's current state.
func (s *Session) State() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// AdjRIBIn returns this peer's Adj-RIB-In.
func (s *Session) AdjRIBIn() *rib.AdjRIBIn { return s.adjIn }

// AdjRIBOut returns this peer's Adj-RIB-Out.
func (s *Session) AdjRIBOut() *rib.AdjRIBOut { return s.adjOut }

// RemoteIdentifier returns the peer's BGP Identifier once known (zero
// before the first OPEN is processed).
func (s *Session) RemoteIdentifier() bgp.Identifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteID
}

// Counters returns the session's message counters.
func (s *Session) Counters() *Counters { return &s.counters }

// Status is the snapshot spec.md section 6's get_peers() reports.
type Status struct {
	Key              string
	PeerAS           bgp.ASN
	State            fsm.State
	PrefixesReceived int
	PrefixesSent     int
	Uptime           time.Duration
	LastNotification *message.NotificationError
}

// Snapshot returns the session's current status for the control API.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Key:              s.cfg.Key,
		PeerAS:           s.cfg.PeerAS,
		State:            s.machine.State(),
		PrefixesReceived: s.adjIn.Len(),
		PrefixesSent:     s.adjOut.Len(),
		LastNotification: s.lastNotif,
	}
	if st.State == fsm.Established && !s.establishedAt.IsZero() {
		st.Uptime = time.Since(s.establishedAt)
	}
	return st
}

// Start launches the session's event loop and issues ManualStart. Only the
// first call has an effect; a later call, including one after Stop, does
// nothing.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.loop(runCtx)
	s.enqueue(fsm.ManualStart)
}

// Stop tears the session down (spec.md section 5's "Cancellation").
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()
	s.enqueue(fsm.ManualStop)
	if cancel != nil {
		cancel()
	}
}

func (s *Session) enqueue(ev fsm.Event) {
	select {
	case s.signals <- signal{kind: sigEvent, ev: ev}:
	default:
		s.log.Warn("signal queue full, dropping event", zap.Stringer("event", ev))
	}
}

func (s *Session) enqueueMsg(ev fsm.Event, msg message.Message) {
	select {
	case s.signals <- signal{kind: sigEvent, ev: ev, msg: msg}:
	default:
		s.log.Warn("signal queue full, dropping message event", zap.Stringer("event", ev))
	}
}

func (s *Session) enqueueNotifErr(ev fsm.Event, e *message.NotificationError) {
	select {
	case s.signals <- signal{kind: sigEvent, ev: ev, notifErr: e}:
	default:
	}
}

// loop is the session's single-threaded event processor: every FSM step,
// every timer fire, and every socket read is serialized through s.signals
// so Adj-RIB-In writes and state transitions never race (spec.md section
// 5's ordering guarantee).
func (s *Session) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.closeConn()
			return
		case sig := <-s.signals:
			s.handle(ctx, sig)
			if s.State() == fsm.Idle && s.stoppedFlag() {
				return
			}
		}
	}
}

func (s *Session) stoppedFlag() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Session) handle(ctx context.Context, sig signal) {
	if sig.kind == sigDialResult {
		s.mu.Lock()
		stale := sig.dialGen != s.dialGen
		s.mu.Unlock()
		if stale {
			if sig.conn != nil {
				sig.conn.Close()
			}
			return
		}
		if sig.dialErr != nil {
			s.log.Debug("connect attempt failed", zap.Error(sig.dialErr))
			s.dispatch(ctx, fsm.TcpConnectionFails, sig)
			return
		}
		s.mu.Lock()
		s.conn = sig.conn
		s.mu.Unlock()
		go s.startReader(ctx, sig.conn)
		s.dispatch(ctx, fsm.TcpConnectionConfirmed, sig)
		return
	}

	if sig.ev == fsm.BGPOpen {
		open := sig.msg.(*message.OpenMessage)
		if nerr := open.Validate(s.cfg.PeerAS, uint16(s.cfg.holdTime()/time.Second)); nerr != nil {
			s.sendNotification(nerr)
			s.dispatch(ctx, fsm.BGPOpenMsgErr, sig)
			return
		}
		s.mu.Lock()
		s.remoteID = open.Identifier
		negotiated := message.NegotiatedHoldTime(uint16(s.cfg.holdTime()/time.Second), open.HoldTime)
		s.negotiatedHold = time.Duration(negotiated) * time.Second
		if negotiated == 0 {
			s.keepaliveInterval = 0
		} else {
			s.keepaliveInterval = s.negotiatedHold / 3
		}
		s.mu.Unlock()
		s.counters.OpenRecv.Increment()
	}
	if sig.ev == fsm.UpdateMsg {
		u := sig.msg.(*message.UpdateMessage)
		if nerr := s.applyUpdate(u); nerr != nil {
			s.sendNotification(nerr)
			s.dispatch(ctx, fsm.UpdateMsgErr, sig)
			return
		}
		s.counters.UpdateRecv.Increment()
	}
	if sig.ev == fsm.KeepAliveMsg {
		s.counters.KeepaliveRecv.Increment()
	}
	if sig.ev == fsm.NotifMsg {
		n := sig.msg.(*message.NotificationMessage)
		s.mu.Lock()
		s.lastNotif = n.Err()
		s.mu.Unlock()
		s.counters.NotifRecv.Increment()
	}

	s.dispatch(ctx, sig.ev, sig)
}

func (s *Session) dispatch(ctx context.Context, ev fsm.Event, sig signal) {
	s.mu.Lock()
	from := s.machine.State()
	actions := s.machine.Step(ev)
	to := s.machine.State()
	s.mu.Unlock()

	if from != to {
		s.log.Debug("state transition", zap.Stringer("from", from), zap.Stringer("to", to), zap.Stringer("event", ev))
		if s.hooks.OnStateChange != nil {
			s.hooks.OnStateChange(s, from, to)
		}
	}

	for _, a := range actions {
		s.perform(ctx, a, sig)
	}
}

func (s *Session) perform(ctx context.Context, a fsm.Action, sig signal) {
	switch a {
	case fsm.InitiateTCP:
		s.startDial(ctx)
	case fsm.DropTCP:
		s.closeConn()
	case fsm.StartConnectRetryTimer:
		s.connectRetryTimer.Reset(jitter(s.cfg.connectRetryInterval()))
	case fsm.StopConnectRetryTimer:
		s.connectRetryTimer.Stop()
	case fsm.ResetConnectRetryTimer:
		s.connectRetryTimer.Reset(jitter(s.cfg.connectRetryInterval()))
	case fsm.IncrementConnectRetryCounter:
		// not counted or logged; no externally visible counter is
		// specified for this in spec.md section 6.
	case fsm.SendOpen:
		s.sendOpen()
	case fsm.SendKeepalive:
		s.sendKeepalive()
		if s.keepaliveInterval > 0 {
			s.keepaliveTimer.Reset(s.keepaliveInterval)
		}
	case fsm.SendNotifFSMError:
		s.sendNotification(&message.NotificationError{Code: message.FiniteStateMachineError, Subcode: message.NoErrorSubcode})
	case fsm.SendNotifHoldTimerExpired:
		s.sendNotification(&message.NotificationError{Code: message.HoldTimerExpired, Subcode: message.NoErrorSubcode})
	case fsm.StartLargeHoldTimer:
		s.holdTimer.Reset(largeHoldTime)
	case fsm.NegotiateHoldTime:
		// negotiation already computed in handle() when BGPOpen arrived
	case fsm.StartHoldTimer:
		s.mu.Lock()
		hold := s.negotiatedHold
		s.mu.Unlock()
		if hold > 0 {
			s.holdTimer.Reset(hold)
		} else {
			s.holdTimer.Stop()
		}
	case fsm.StopHoldTimer:
		s.holdTimer.Stop()
	case fsm.StartKeepaliveTimer:
		s.mu.Lock()
		ivl := s.keepaliveInterval
		s.mu.Unlock()
		if ivl > 0 {
			s.keepaliveTimer.Reset(ivl)
		}
	case fsm.StopKeepaliveTimer:
		s.keepaliveTimer.Stop()
	case fsm.ReleaseResources:
		s.release()
	case fsm.FeedUpdate:
		// the Adj-RIB-In write already happened in handle(); nothing
		// further to do once the FSM has accepted the transition.
	case fsm.NotifyEstablished:
		s.mu.Lock()
		s.establishedAt = time.Now()
		s.mu.Unlock()
		if s.hooks.OnEstablished != nil {
			s.hooks.OnEstablished(s)
		}
	case fsm.NotifyIdle:
		s.mu.Lock()
		s.establishedAt = time.Time{}
		s.mu.Unlock()
	}
	_ = sig
}

// release flushes this peer's Adj-RIB-In (spec.md section 3's "all
// routes from a peer are flushed when its session leaves Established")
// and notifies the agent so the decision process can recompute Loc-RIB.
func (s *Session) release() {
	touched := s.adjIn.Clear()
	s.adjOut = rib.NewAdjRIBOut()
	if len(touched) > 0 && s.hooks.OnRIBChange != nil {
		s.hooks.OnRIBChange(s, touched)
	}
}

func jitter(d time.Duration) time.Duration {
	// +/-25%, per spec.md section 4.3.
	n := time.Now().UnixNano()
	frac := float64(n%1000) / 1000.0 // deterministic-enough spread without math/rand
	return d - d/4 + time.Duration(float64(d/2)*frac)
}

func (s *Session) startDial(ctx context.Context) {
	s.mu.Lock()
	s.dialGen++
	gen := s.dialGen
	cfg := s.cfg
	s.mu.Unlock()

	go func() {
		host := cfg.PeerIP
		if cfg.Hostname {
			addrs, err := net.DefaultResolver.LookupHost(ctx, cfg.PeerIP)
			if err != nil || len(addrs) == 0 {
				s.enqueueDialResult(gen, nil, fmt.Errorf("session: resolving %s: %w", cfg.PeerIP, err))
				return
			}
			host = addrs[0]
		}
		d := net.Dialer{Timeout: 10 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(cfg.port())))
		if err != nil {
			s.enqueueDialResult(gen, nil, err)
			return
		}
		s.enqueueDialResult(gen, conn, nil)
	}()
}

func (s *Session) enqueueDialResult(gen int, conn net.Conn, err error) {
	select {
	case s.signals <- signal{kind: sigDialResult, dialGen: gen, conn: conn, dialErr: err}:
	default:
		if conn != nil {
			conn.Close()
		}
	}
}

func (s *Session) closeConn() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.dialGen++ // invalidate any in-flight dial result
	s.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

func (s *Session) setConnLocked(conn net.Conn) {
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.dialGen++
}

// AttachIncoming hands an already-accepted TCP connection to this session,
// applying RFC 4271 section 6.8's collision resolution. open is the OPEN
// message the agent pre-read from the new connection (spec.md section 4.5
// requires reading it before dispatch can even route the connection to a
// session, so collision resolution always has a BGP Identifier to compare
// against). Returns whether the connection was accepted.
func (s *Session) AttachIncoming(ctx context.Context, conn net.Conn, open *message.OpenMessage) bool {
	s.mu.Lock()
	state := s.machine.State()
	switch state {
	case fsm.Idle, fsm.Connect, fsm.Active:
		s.connectRetryTimer.Stop()
		s.setConnLocked(conn)
		s.mu.Unlock()
		go s.startReader(ctx, conn)
		s.dispatch(ctx, fsm.TcpConnectionConfirmed, signal{})
		s.enqueueMsg(fsm.BGPOpen, open)
		return true
	case fsm.OpenSent, fsm.OpenConfirm:
		// Both BGP Identifiers are always available here regardless of
		// whether this session's own outbound connection has had its OPEN
		// processed yet: ours from configuration, the incoming
		// connection's from the pre-read open parameter. Gating on
		// s.remoteID having already been set (i.e. waiting for our own
		// connection's OPEN) would keep the lower-identifier connection in
		// the common "both actively connecting" case (spec.md scenario f),
		// the reverse of RFC 4271 section 6.8's tie-break.
		if open.Identifier > s.cfg.RouterID {
			old := s.conn
			s.machine.ForceReconnecting()
			s.conn = conn
			s.dialGen++
			s.mu.Unlock()
			if old != nil {
				old.Close()
			}
			s.connectRetryTimer.Stop()
			s.holdTimer.Stop()
			s.keepaliveTimer.Stop()
			go s.startReader(ctx, conn)
			s.dispatch(ctx, fsm.TcpConnectionConfirmed, signal{})
			s.enqueueMsg(fsm.BGPOpen, open)
			return true
		}
		s.mu.Unlock()
		conn.Close()
		return false
	default: // Established
		s.mu.Unlock()
		conn.Close()
		return false
	}
}

// startReader owns one connection end-to-end: it keeps reading framed
// messages and translating them into FSM events until the connection
// errors, carries a NOTIFICATION, or is superseded by a newer one
// (a reconnect or a collision winner).
func (s *Session) startReader(ctx context.Context, conn net.Conn) {
	for {
		msg, err := message.ReadMessage(conn)
		if err != nil {
			s.mu.Lock()
			current := s.conn
			s.mu.Unlock()
			if current != conn {
				return // superseded; this connection's demise is expected
			}
			if nerr, ok := err.(*message.NotificationError); ok {
				s.sendNotification(nerr)
				s.enqueueNotifErr(fsm.BGPHeaderErr, nerr)
				return
			}
			s.enqueue(fsm.TcpConnectionFails)
			return
		}
		s.mu.Lock()
		current := s.conn
		s.mu.Unlock()
		if current != conn {
			return
		}
		switch m := msg.(type) {
		case *message.OpenMessage:
			s.enqueueMsg(fsm.BGPOpen, m)
		case *message.UpdateMessage:
			s.enqueueMsg(fsm.UpdateMsg, m)
		case *message.KeepaliveMessage:
			s.enqueue(fsm.KeepAliveMsg)
		case *message.NotificationMessage:
			s.enqueueMsg(fsm.NotifMsg, m)
			return
		}
	}
}

func (s *Session) writeMessage(m message.Message) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("session: no connection")
	}
	_, err := conn.Write(m.Encode())
	return err
}

func (s *Session) sendOpen() {
	open := message.NewOpen(s.cfg.LocalAS, uint16(s.cfg.holdTime()/time.Second), s.cfg.RouterID)
	if err := s.writeMessage(open); err != nil {
		s.log.Warn("failed to send OPEN", zap.Error(err))
		s.enqueue(fsm.TcpConnectionFails)
		return
	}
	s.counters.OpenSent.Increment()
}

func (s *Session) sendKeepalive() {
	if err := s.writeMessage(&message.KeepaliveMessage{}); err != nil {
		s.log.Debug("failed to send KEEPALIVE", zap.Error(err))
		s.enqueue(fsm.TcpConnectionFails)
		return
	}
	s.counters.KeepaliveSent.Increment()
}

func (s *Session) sendNotification(e *message.NotificationError) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	conn.Write(message.NewNotification(e).Encode())
	s.counters.NotificationSent.Increment()
}

// applyUpdate validates the three well-known mandatory attributes
// (spec.md section 4.1), applies the peer's import policy, and writes
// the result into Adj-RIB-In, notifying the agent of every prefix touched.
func (s *Session) applyUpdate(u *message.UpdateMessage) *message.NotificationError {
	var touched []bgp.Prefix

	for _, p := range u.WithdrawnRoutes {
		if s.adjIn.Withdraw(p) {
			touched = append(touched, p)
		}
	}

	if len(u.NLRI) > 0 {
		if _, ok := message.FindOrigin(u.PathAttributes); !ok {
			return &message.NotificationError{Code: message.UpdateMessageError, Subcode: message.MissingWellKnownAttribute, Data: []byte{message.AttrOrigin}}
		}
		if _, ok := message.FindASPath(u.PathAttributes); !ok {
			return &message.NotificationError{Code: message.UpdateMessageError, Subcode: message.MissingWellKnownAttribute, Data: []byte{message.AttrASPath}}
		}
		if _, ok := message.FindNextHop(u.PathAttributes); !ok {
			return &message.NotificationError{Code: message.UpdateMessageError, Subcode: message.MissingWellKnownAttribute, Data: []byte{message.AttrNextHop}}
		}

		peerAS := s.cfg.PeerAS
		s.mu.Lock()
		remoteID := s.remoteID
		s.mu.Unlock()

		for _, p := range u.NLRI {
			r := rib.Route{
				Prefix:     p,
				Attributes: u.PathAttributes,
				PeerIP:     s.cfg.PeerIP,
				PeerAS:     peerAS,
				RouterID:   remoteID,
				ReceivedAt: time.Now(),
			}
			if s.hooks.Import != nil {
				var ok bool
				r, ok = s.hooks.Import(s.cfg.Key, r)
				if !ok {
					continue
				}
			}
			s.adjIn.Update(r)
			touched = append(touched, p)
		}
	}

	if len(touched) > 0 && s.hooks.OnRIBChange != nil {
		s.hooks.OnRIBChange(s, touched)
	}
	return nil
}

// Advertise sends one UPDATE carrying withdraws (when there are any), then
// one UPDATE per group of adds sharing an identical attribute set
// (spec.md section 4.4's "Delta computation"), and records the result in
// Adj-RIB-Out (spec.md section 3's invariant 5). Each route in adds
// carries its already policy-adjusted attribute set in its Attributes
// (see rib.PrepareForAdvertisement).
func (s *Session) Advertise(adds []rib.Route, withdraws []bgp.Prefix) error {
	if len(withdraws) > 0 {
		u := &message.UpdateMessage{WithdrawnRoutes: withdraws}
		if err := s.writeMessage(u); err != nil {
			return fmt.Errorf("session: sending withdrawals: %w", err)
		}
		s.counters.UpdateSent.Increment()
		for _, p := range withdraws {
			s.adjOut.Remove(p)
		}
	}

	groups := groupByAttributes(adds)
	for _, g := range groups {
		u := &message.UpdateMessage{PathAttributes: g.attrs, NLRI: g.prefixes}
		if err := s.writeMessage(u); err != nil {
			return fmt.Errorf("session: sending update: %w", err)
		}
		s.counters.UpdateSent.Increment()
		for _, r := range g.routes {
			s.adjOut.Set(r)
		}
	}
	return nil
}

type attrGroup struct {
	attrs    []message.PathAttribute
	prefixes []bgp.Prefix
	routes   []rib.Route
}

// groupByAttributes batches routes that share byte-identical attribute
// sets into a single UPDATE, per spec.md section 4.4: "advertise a single
// shared attribute set per batch of equal-attribute prefixes."
func groupByAttributes(routes []rib.Route) []attrGroup {
	var groups []attrGroup
	for _, r := range routes {
		placed := false
		for i := range groups {
			if rib.Equal(rib.Route{Prefix: r.Prefix, Attributes: groups[i].attrs}, rib.Route{Prefix: r.Prefix, Attributes: r.Attributes}) {
				groups[i].prefixes = append(groups[i].prefixes, r.Prefix)
				groups[i].routes = append(groups[i].routes, r)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, attrGroup{attrs: r.Attributes, prefixes: []bgp.Prefix{r.Prefix}, routes: []rib.Route{r}})
		}
	}
	return groups
}
