package rib

import (
	"sync"

	"github.com/transitorykris/bgpd/bgp"
)

// AdjRIBIn stores the routes a single peer has most recently advertised,
// unprocessed by any local policy. It is the decision process's input
// (RFC 4271 section 3.2 a).
type AdjRIBIn struct {
	mu     sync.RWMutex
	routes map[bgp.Prefix]Route
}

// NewAdjRIBIn creates an empty Adj-RIB-In.
func NewAdjRIBIn() *AdjRIBIn {
	return &AdjRIBIn{routes: make(map[bgp.Prefix]Route)}
}

// Update installs or replaces the route for r.Prefix.
func (a *AdjRIBIn) Update(r Route) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[r.Prefix] = r
}

// Withdraw removes any route stored for prefix, reporting whether one was
// present.
func (a *AdjRIBIn) Withdraw(prefix bgp.Prefix) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.routes[prefix]; !ok {
		return false
	}
	delete(a.routes, prefix)
	return true
}

// Get returns the route stored for prefix, if any.
func (a *AdjRIBIn) Get(prefix bgp.Prefix) (Route, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.routes[prefix]
	return r, ok
}

// All returns a snapshot of every route currently stored.
func (a *AdjRIBIn) All() []Route {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Route, 0, len(a.routes))
	for _, r := range a.routes {
		out = append(out, r)
	}
	return out
}

// Clear empties the table, used when a session drops: RFC 4271 requires
// treating every route the peer had advertised as implicitly withdrawn.
func (a *AdjRIBIn) Clear() []bgp.Prefix {
	a.mu.Lock()
	defer a.mu.Unlock()
	prefixes := make([]bgp.Prefix, 0, len(a.routes))
	for p := range a.routes {
		prefixes = append(prefixes, p)
	}
	a.routes = make(map[bgp.Prefix]Route)
	return prefixes
}

// Len returns the number of routes currently stored.
func (a *AdjRIBIn) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.routes)
}
