// Package agent implements the orchestrator spec.md section 4.5
// describes: it owns every configured peer's Session, the single shared
// Loc-RIB, the passive TCP listener, incoming-connection dispatch
// (including RFC 4271 section 6.8 collision resolution and mesh-peer
// identification by AS number), the periodic decision loop, the outbound
// advertisement pipeline, and the control API of spec.md section 6.
package agent

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/transitorykris/bgpd/bgp"
	"github.com/transitorykris/bgpd/fsm"
	"github.com/transitorykris/bgpd/message"
	"github.com/transitorykris/bgpd/metrics"
	"github.com/transitorykris/bgpd/network"
	"github.com/transitorykris/bgpd/policy"
	"github.com/transitorykris/bgpd/rib"
	"github.com/transitorykris/bgpd/session"
)

// DefaultDecisionInterval is how often the agent re-runs the decision
// process over every prefix touched since the last cycle, independent of
// the event-driven trigger a session's OnRIBChange hook fires (spec.md
// section 4.5's "periodic, plus event-driven").
const DefaultDecisionInterval = 5 * time.Second

// DefaultMeshOpenTimeout bounds how long the agent waits for an OPEN on
// an incoming connection it can't yet match to a configured peer by
// source IP, before giving up (spec.md section 4.5 step 2, grounded in
// original_source/mcp-servers/protocol-mcp/bgp/agent.py's
// _read_open_message timeout).
const DefaultMeshOpenTimeout = 30 * time.Second

// Config is the agent-wide configuration (spec.md section 6's
// "router ID, local AS, listen address" plus the tuning knobs this
// implementation adds).
type Config struct {
	RouterID bgp.Identifier
	LocalAS  bgp.ASN

	// ListenAddr is the host:port the passive listener binds, e.g.
	// ":179". A bind failure is logged and downgraded to active-only
	// mode rather than treated as fatal (spec.md section 4.5).
	ListenAddr string

	DecisionInterval time.Duration
	MeshOpenTimeout  time.Duration
}

func (c Config) listenAddr() string {
	if c.ListenAddr == "" {
		return fmt.Sprintf(":%d", session.DefaultPort)
	}
	return c.ListenAddr
}

func (c Config) decisionInterval() time.Duration {
	if c.DecisionInterval == 0 {
		return DefaultDecisionInterval
	}
	return c.DecisionInterval
}

func (c Config) meshOpenTimeout() time.Duration {
	if c.MeshOpenTimeout == 0 {
		return DefaultMeshOpenTimeout
	}
	return c.MeshOpenTimeout
}

// PeerSpec is what AddPeer needs for one configured peer: the session
// configuration plus this peer's import/export policy (spec.md section 6,
// implemented by the policy package).
type PeerSpec struct {
	session.Config
	Import policy.RouteFilter
	Export policy.RouteFilter
}

// Hooks are the agent-wide pluggable collaborators spec.md section 6
// names: a kernel FIB installer and an IGP cost lookup for the decision
// process's step 6 tiebreaker. Both default to a no-op when left nil.
type Hooks struct {
	Kernel  policy.KernelInstaller
	IGPCost rib.IGPCostLookup
	Reflect rib.ReflectionHook
}

// Agent owns every session this process runs and the Loc-RIB they share.
type Agent struct {
	cfg     Config
	log     *zap.Logger
	kernel  policy.KernelInstaller
	reflect rib.ReflectionHook
	decider rib.Decider

	locRIB      *rib.LocRIB
	localRoutes *rib.AdjRIBIn // locally originated routes, keyed like any Adj-RIB-In

	mu       sync.RWMutex
	sessions map[string]*session.Session
	export   map[string]policy.RouteFilter
	meshByAS map[bgp.ASN]*session.Session

	touchedMu sync.Mutex
	touched   map[bgp.Prefix]struct{}
	kick      chan struct{}

	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates an Agent. It does nothing until Start is called.
func New(cfg Config, hooks Hooks, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	kernel := hooks.Kernel
	if kernel == nil {
		kernel = policy.NoopKernel{}
	}
	reflect := hooks.Reflect
	if reflect == nil {
		reflect = rib.NoReflection
	}
	return &Agent{
		cfg:         cfg,
		log:         log.With(zap.String("component", "agent")),
		kernel:      kernel,
		reflect:     reflect,
		decider:     rib.Decider{LocalAS: uint32(cfg.LocalAS), IGPCost: hooks.IGPCost},
		locRIB:      rib.NewLocRIB(),
		localRoutes: rib.NewAdjRIBIn(),
		sessions:    make(map[string]*session.Session),
		export:      make(map[string]policy.RouteFilter),
		meshByAS:    make(map[bgp.ASN]*session.Session),
		touched:     make(map[bgp.Prefix]struct{}),
		kick:        make(chan struct{}, 1),
	}
}

// AddPeer registers a new configured peer. The session is constructed but
// not started; call StartPeer (or Start, for config-loaded peers whose
// main wiring starts them immediately) to bring it up.
func (a *Agent) AddPeer(spec PeerSpec) (*session.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.sessions[spec.Key]; exists {
		return nil, fmt.Errorf("agent: peer %q already exists", spec.Key)
	}
	if spec.AcceptAnySource && !spec.Passive {
		return nil, fmt.Errorf("agent: mesh peer %q must be passive", spec.Key)
	}

	spec.Config.LocalAS = a.cfg.LocalAS
	spec.Config.RouterID = a.cfg.RouterID

	hooks := session.Hooks{
		Import:        spec.Import,
		OnRIBChange:   a.onRIBChange,
		OnEstablished: a.onEstablished,
		OnStateChange: a.onStateChange,
	}
	sess := session.New(spec.Config, a.locRIB, hooks, a.log)
	a.sessions[spec.Key] = sess
	if spec.Export != nil {
		a.export[spec.Key] = spec.Export
	}
	if spec.AcceptAnySource {
		a.meshByAS[spec.PeerAS] = sess
	}
	return sess, nil
}

// RemovePeer stops and forgets a configured peer.
func (a *Agent) RemovePeer(key string) error {
	a.mu.Lock()
	sess, ok := a.sessions[key]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("agent: peer %q not found", key)
	}
	delete(a.sessions, key)
	delete(a.export, key)
	for as, s := range a.meshByAS {
		if s == sess {
			delete(a.meshByAS, as)
		}
	}
	a.mu.Unlock()
	sess.Stop()
	return nil
}

// StartPeer brings a configured peer's FSM out of Idle. It has no effect
// on a peer that has been started before, including one stopped since
// with StopPeer (see session.Session.Start).
func (a *Agent) StartPeer(ctx context.Context, key string) error {
	sess, ok := a.session(key)
	if !ok {
		return fmt.Errorf("agent: peer %q not found", key)
	}
	sess.Start(ctx)
	return nil
}

// StopPeer tears a peer's session down without forgetting its
// configuration.
func (a *Agent) StopPeer(key string) error {
	sess, ok := a.session(key)
	if !ok {
		return fmt.Errorf("agent: peer %q not found", key)
	}
	sess.Stop()
	return nil
}

func (a *Agent) session(key string) (*session.Session, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.sessions[key]
	return s, ok
}

func (a *Agent) snapshotSessions() []*session.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*session.Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		out = append(out, s)
	}
	return out
}

// Start binds the passive listener (downgrading to active-only mode with
// a warning on failure, per spec.md section 4.5) and launches the
// decision loop. It starts every already-added peer's session.
func (a *Agent) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	addr := a.cfg.listenAddr()
	l, err := net.Listen("tcp", addr)
	if err != nil {
		a.log.Warn("listener bind failed, continuing in active-only mode",
			zap.String("addr", addr), zap.Error(err))
	} else {
		a.listener = l
		a.wg.Add(1)
		go a.acceptLoop(runCtx)
	}

	a.wg.Add(1)
	go a.decisionLoop(runCtx)

	for _, s := range a.snapshotSessions() {
		s.Start(runCtx)
	}
	return nil
}

// Stop cancels the listener, decision loop, and every session, and
// blocks until their goroutines have returned.
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.listener != nil {
		a.listener.Close()
	}
	for _, s := range a.snapshotSessions() {
		s.Stop()
	}
	a.wg.Wait()
}

func (a *Agent) acceptLoop(ctx context.Context) {
	defer a.wg.Done()
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				a.log.Warn("accept failed", zap.Error(err))
				continue
			}
		}
		go a.handleIncoming(ctx, conn)
	}
}

// handleIncoming implements spec.md section 4.5 step 2: every incoming
// connection is pre-read for exactly one OPEN (bounded by
// meshOpenTimeout), matched first by source IP against a configured
// peer, then by the OPEN's AS number against a mesh peer, and otherwise
// closed with no message sent back — there's no session yet to send a
// NOTIFICATION from.
func (a *Agent) handleIncoming(ctx context.Context, conn net.Conn) {
	host, _ := network.SplitHostPort(conn.RemoteAddr())

	conn.SetReadDeadline(time.Now().Add(a.cfg.meshOpenTimeout()))
	msg, err := message.ReadMessage(conn)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		a.log.Debug("incoming connection dropped before a valid OPEN arrived", zap.String("remote", host), zap.Error(err))
		conn.Close()
		return
	}
	open, ok := msg.(*message.OpenMessage)
	if !ok {
		conn.Close()
		return
	}

	a.mu.RLock()
	var sess *session.Session
	found := false
	for _, s := range a.sessions {
		if s.Config().PeerIP == host {
			sess, found = s, true
			break
		}
	}
	a.mu.RUnlock()
	if found {
		if !sess.AttachIncoming(ctx, conn, open) {
			conn.Close()
		}
		return
	}

	a.mu.RLock()
	sess, found = a.meshByAS[open.MyAS()]
	a.mu.RUnlock()
	if found {
		if !sess.AttachIncoming(ctx, conn, open) {
			conn.Close()
		}
		return
	}

	a.log.Debug("incoming connection matched no configured or mesh peer", zap.String("remote", host), zap.Uint32("peer-as", uint32(open.MyAS())))
	conn.Close()
}

// onStateChange keeps the per-peer FSM-state gauge current.
func (a *Agent) onStateChange(s *session.Session, from, to fsm.State) {
	cfg := s.Config()
	metrics.PeerState.WithLabelValues(cfg.Key, fmt.Sprint(cfg.PeerAS), from.String()).Set(0)
	metrics.PeerState.WithLabelValues(cfg.Key, fmt.Sprint(cfg.PeerAS), to.String()).Set(1)
}

// onEstablished dumps the full current Loc-RIB to a newly established
// peer, spec.md section 4.2's on-Established callback.
func (a *Agent) onEstablished(s *session.Session) {
	prefixes := make(map[bgp.Prefix]struct{})
	for _, r := range a.locRIB.All() {
		prefixes[r.Prefix] = struct{}{}
	}
	a.advertiseTo(s, prefixes)
}

// onRIBChange is a session's Adj-RIB-In hook: it marks every touched
// prefix dirty and wakes the decision loop without blocking the session
// that called it.
func (a *Agent) onRIBChange(_ *session.Session, touched []bgp.Prefix) {
	a.markTouched(touched)
}

func (a *Agent) markTouched(prefixes []bgp.Prefix) {
	if len(prefixes) == 0 {
		return
	}
	a.touchedMu.Lock()
	for _, p := range prefixes {
		a.touched[p] = struct{}{}
	}
	a.touchedMu.Unlock()
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

func (a *Agent) decisionLoop(ctx context.Context) {
	defer a.wg.Done()
	t := time.NewTicker(a.cfg.decisionInterval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.runDecision()
		case <-a.kick:
			a.runDecision()
		}
	}
}

// runDecision implements spec.md section 4.4's decision process, run
// over every prefix touched since the last cycle: for each, gather every
// peer's Adj-RIB-In candidate plus any locally originated route, pick the
// best with the decision process, install it into Loc-RIB, and push the
// resulting deltas to every established peer.
func (a *Agent) runDecision() {
	start := time.Now()
	defer func() { metrics.DecisionCycleDuration.Observe(time.Since(start).Seconds()) }()

	a.touchedMu.Lock()
	touched := a.touched
	a.touched = make(map[bgp.Prefix]struct{})
	a.touchedMu.Unlock()
	if len(touched) == 0 {
		return
	}

	sessions := a.snapshotSessions()

	for prefix := range touched {
		var candidates []rib.Route
		for _, s := range sessions {
			if r, ok := s.AdjRIBIn().Get(prefix); ok {
				candidates = append(candidates, r)
			}
		}
		if r, ok := a.localRoutes.Get(prefix); ok {
			candidates = append(candidates, r)
		}

		if len(candidates) == 0 {
			if a.locRIB.Remove(prefix) {
				if err := a.kernel.Remove(prefix); err != nil {
					a.log.Warn("kernel route removal failed", zap.Stringer("prefix", prefix), zap.Error(err))
				}
			}
			continue
		}

		best := a.decider.Best(candidates)
		if a.locRIB.Install(best) {
			nh, _ := best.NextHop()
			if err := a.kernel.Install(prefix, nh.IP, "bgp"); err != nil {
				a.log.Warn("kernel route install failed", zap.Stringer("prefix", prefix), zap.Error(err))
			}
		}
	}

	metrics.LocRIBSize.Set(float64(a.locRIB.Len()))
	a.advertise(touched, sessions)
}

// localViewFor describes this speaker to the given session's peer, using
// that session's own local interface address as NEXT_HOP when configured
// (spec.md section 4.4: "Rewrite NEXT_HOP to the local interface address
// of the outgoing session") and falling back to the router ID otherwise.
func (a *Agent) localViewFor(s *session.Session) rib.PeerView {
	return rib.PeerView{
		IP:       a.cfg.RouterID.IP().String(),
		AS:       a.cfg.LocalAS,
		RouterID: a.cfg.RouterID,
		LocalIP:  s.Config().LocalIP,
	}
}

func (a *Agent) peerView(s *session.Session) rib.PeerView {
	cfg := s.Config()
	return rib.PeerView{
		IP:                   cfg.PeerIP,
		AS:                   cfg.PeerAS,
		RouterID:             s.RemoteIdentifier(),
		RouteReflectorClient: cfg.RouteReflectorClient,
	}
}

// advertise pushes the delta for every touched prefix to every
// established session (spec.md section 4.4's advertisement policy).
func (a *Agent) advertise(touched map[bgp.Prefix]struct{}, sessions []*session.Session) {
	for _, s := range sessions {
		if s.State() != fsm.Established {
			continue
		}
		local := a.localViewFor(s)
		to := a.peerView(s)
		exportFilter := a.exportFilterFor(s.Config().Key)

		var adds []rib.Route
		var withdraws []bgp.Prefix
		for prefix := range touched {
			best, ok := a.locRIB.Get(prefix)
			_, hadOut := s.AdjRIBOut().Get(prefix)
			if !ok || !rib.ShouldAdvertise(best, local, to, a.reflect) {
				if hadOut {
					withdraws = append(withdraws, prefix)
				}
				continue
			}
			if exportFilter != nil {
				var keep bool
				best, keep = exportFilter(s.Config().Key, best)
				if !keep {
					if hadOut {
						withdraws = append(withdraws, prefix)
					}
					continue
				}
			}
			best.Attributes = rib.PrepareForAdvertisement(best, local, to)
			adds = append(adds, best)
		}
		if len(adds) == 0 && len(withdraws) == 0 {
			continue
		}
		if err := s.Advertise(adds, withdraws); err != nil {
			a.log.Warn("advertisement failed", zap.String("peer", s.Config().Key), zap.Error(err))
		}
	}
	a.refreshRIBSizeMetrics(sessions)
}

// advertiseTo is advertise narrowed to a single, just-established session
// (the onEstablished Loc-RIB dump).
func (a *Agent) advertiseTo(s *session.Session, prefixes map[bgp.Prefix]struct{}) {
	a.advertise(prefixes, []*session.Session{s})
}

func (a *Agent) exportFilterFor(key string) policy.RouteFilter {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.export[key]
}

func (a *Agent) refreshRIBSizeMetrics(sessions []*session.Session) {
	for _, s := range sessions {
		key := s.Config().Key
		metrics.AdjRIBInSize.WithLabelValues(key).Set(float64(s.AdjRIBIn().Len()))
		metrics.AdjRIBOutSize.WithLabelValues(key).Set(float64(s.AdjRIBOut().Len()))

		c := s.Counters()
		metrics.MessagesTotal.WithLabelValues(key, "open", "sent").Set(float64(c.OpenSent.Value()))
		metrics.MessagesTotal.WithLabelValues(key, "open", "recv").Set(float64(c.OpenRecv.Value()))
		metrics.MessagesTotal.WithLabelValues(key, "update", "sent").Set(float64(c.UpdateSent.Value()))
		metrics.MessagesTotal.WithLabelValues(key, "update", "recv").Set(float64(c.UpdateRecv.Value()))
		metrics.MessagesTotal.WithLabelValues(key, "keepalive", "sent").Set(float64(c.KeepaliveSent.Value()))
		metrics.MessagesTotal.WithLabelValues(key, "keepalive", "recv").Set(float64(c.KeepaliveRecv.Value()))
		metrics.MessagesTotal.WithLabelValues(key, "notification", "sent").Set(float64(c.NotificationSent.Value()))
		metrics.MessagesTotal.WithLabelValues(key, "notification", "recv").Set(float64(c.NotifRecv.Value()))
	}
}

// Originate installs a locally originated route directly as a Loc-RIB
// candidate, bypassing the decision process's peer input stage (spec.md
// section 9's Open Question, resolved in SPEC_FULL.md: Originate/Withdraw
// write through the same Loc-RIB install path the decision process uses,
// not a separate shadow RIB). nextHop defaults to the router ID, matching
// original_source/mcp-servers/protocol-mcp/bgp/agent.py's
// originate_route default.
func (a *Agent) Originate(prefix bgp.Prefix, nextHop net.IP, localPref *uint32, origin byte) {
	if nextHop == nil {
		nextHop = a.cfg.RouterID.IP()
	}
	lp := uint32(message.DefaultLocalPref)
	if localPref != nil {
		lp = *localPref
	}
	r := rib.Route{
		Prefix: prefix,
		Attributes: []message.PathAttribute{
			message.OriginAttribute{Value: origin},
			message.ASPathAttribute{},
			message.NextHopAttribute{IP: nextHop},
			message.LocalPrefAttribute{Value: lp},
		},
		RouterID:   a.cfg.RouterID,
		ReceivedAt: time.Now(),
	}
	a.localRoutes.Update(r)
	a.markTouched([]bgp.Prefix{prefix})
}

// Withdraw removes a locally originated route. It reports whether one had
// been originated for prefix.
func (a *Agent) Withdraw(prefix bgp.Prefix) bool {
	ok := a.localRoutes.Withdraw(prefix)
	if ok {
		a.markTouched([]bgp.Prefix{prefix})
	}
	return ok
}

// RouteInfo is the shape GetRIB() returns: a flattened view of a Loc-RIB
// entry for the control API, without exposing the message package's
// attribute types to callers that just want to print a table.
type RouteInfo struct {
	Prefix    bgp.Prefix
	NextHop   net.IP
	ASPath    []bgp.ASN
	LocalPref uint32
	MED       uint32
	Origin    byte
}

// GetRIB returns a snapshot of the current Loc-RIB.
func (a *Agent) GetRIB() []RouteInfo {
	routes := a.locRIB.All()
	out := make([]RouteInfo, 0, len(routes))
	for _, r := range routes {
		info := RouteInfo{Prefix: r.Prefix, LocalPref: r.LocalPref(), MED: r.MED()}
		if nh, ok := r.NextHop(); ok {
			info.NextHop = nh.IP
		}
		if asp, ok := r.ASPath(); ok {
			for _, seg := range asp.Segments {
				info.ASPath = append(info.ASPath, seg.ASNs...)
			}
		}
		if o, ok := r.Origin(); ok {
			info.Origin = o.Value
		}
		out = append(out, info)
	}
	return out
}

// GetPeers returns every configured peer's current status snapshot.
func (a *Agent) GetPeers() []session.Status {
	sessions := a.snapshotSessions()
	out := make([]session.Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// Stats is the aggregate, agent-wide counter set spec.md section 6's
// statistics() reports, summed across every session — grounded in
// original_source/mcp-servers/protocol-mcp/bgp/agent.py's BGPAgent.stats.
type Stats struct {
	OpenSent, OpenRecv                 uint64
	UpdateSent, UpdateRecv             uint64
	KeepaliveSent, KeepaliveRecv       uint64
	NotificationSent, NotificationRecv uint64
	EstablishedPeers, ConfiguredPeers  int
}

// Statistics aggregates every session's message counters.
func (a *Agent) Statistics() Stats {
	var s Stats
	sessions := a.snapshotSessions()
	s.ConfiguredPeers = len(sessions)
	for _, sess := range sessions {
		c := sess.Counters()
		s.OpenSent += c.OpenSent.Value()
		s.OpenRecv += c.OpenRecv.Value()
		s.UpdateSent += c.UpdateSent.Value()
		s.UpdateRecv += c.UpdateRecv.Value()
		s.KeepaliveSent += c.KeepaliveSent.Value()
		s.KeepaliveRecv += c.KeepaliveRecv.Value()
		s.NotificationSent += c.NotificationSent.Value()
		s.NotificationRecv += c.NotifRecv.Value()
		if sess.State() == fsm.Established {
			s.EstablishedPeers++
		}
	}
	return s
}
