// Package metrics registers the Prometheus collectors the agent updates:
// per-peer FSM state and message counts, and Loc-RIB/Adj-RIB sizes. There
// is no HTTP exporter here — the out-of-scope HTTP control daemon
// (spec.md section 1) mounts /metrics against the Registry this package
// exposes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// PeerState is 1 for the peer's current FSM state, 0 for every other
	// state, so a PromQL sum(bgpd_peer_state{state="Established"}) counts
	// established sessions.
	PeerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_peer_state",
			Help: "1 if the peer is currently in this FSM state, 0 otherwise.",
		},
		[]string{"peer", "peer_as", "state"},
	)

	MessagesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_messages_total",
			Help: "Cumulative message count per peer, kind, and direction.",
		},
		[]string{"peer", "kind", "direction"},
	)

	AdjRIBInSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_adj_rib_in_routes",
			Help: "Routes currently held in a peer's Adj-RIB-In.",
		},
		[]string{"peer"},
	)

	AdjRIBOutSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_adj_rib_out_routes",
			Help: "Routes currently advertised to a peer (Adj-RIB-Out).",
		},
		[]string{"peer"},
	)

	LocRIBSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bgpd_loc_rib_routes",
			Help: "Routes currently selected into Loc-RIB.",
		},
	)

	DecisionCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bgpd_decision_cycle_seconds",
			Help:    "Wall time spent running the decision process per cycle.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// NewRegistry returns a registry holding every collector this package
// defines, for an external HTTP daemon to mount, without this package
// reaching for the global prometheus.DefaultRegisterer itself.
func NewRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		PeerState,
		MessagesTotal,
		AdjRIBInSize,
		AdjRIBOutSize,
		LocRIBSize,
		DecisionCycleDuration,
	)
	return r
}
