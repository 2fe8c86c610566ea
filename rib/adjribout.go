package rib

import (
	"sync"

	"github.com/transitorykris/bgpd/bgp"
)

// AdjRIBOut stores the routes most recently advertised to a single peer,
// used to compute the delta (new/changed/withdrawn) the next advertisement
// pass needs to send (RFC 4271 section 3.2 c).
type AdjRIBOut struct {
	mu     sync.RWMutex
	routes map[bgp.Prefix]Route
}

// NewAdjRIBOut creates an empty Adj-RIB-Out.
func NewAdjRIBOut() *AdjRIBOut {
	return &AdjRIBOut{routes: make(map[bgp.Prefix]Route)}
}

// Get returns the route last advertised for prefix, if any.
func (a *AdjRIBOut) Get(prefix bgp.Prefix) (Route, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.routes[prefix]
	return r, ok
}

// Set records that route was (or is about to be) advertised for its
// prefix.
func (a *AdjRIBOut) Set(r Route) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[r.Prefix] = r
}

// Remove deletes the record of having advertised prefix.
func (a *AdjRIBOut) Remove(prefix bgp.Prefix) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.routes, prefix)
}

// Prefixes returns every prefix currently believed advertised to the peer.
func (a *AdjRIBOut) Prefixes() []bgp.Prefix {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]bgp.Prefix, 0, len(a.routes))
	for p := range a.routes {
		out = append(out, p)
	}
	return out
}

// Len returns the number of routes currently recorded as advertised.
func (a *AdjRIBOut) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.routes)
}
