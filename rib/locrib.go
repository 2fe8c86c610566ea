package rib

import (
	"sync"

	"github.com/transitorykris/bgpd/bgp"
)

// LocRIB holds the routes this speaker has selected, by applying its
// local policy and the decision process, as the ones it will use and
// advertise (RFC 4271 section 3.2 b). There is exactly one Loc-RIB per
// speaker, shared by every session.
type LocRIB struct {
	mu     sync.RWMutex
	routes map[bgp.Prefix]Route
}

// NewLocRIB creates an empty Loc-RIB.
func NewLocRIB() *LocRIB {
	return &LocRIB{routes: make(map[bgp.Prefix]Route)}
}

// Install replaces the selected route for its prefix, reporting whether
// this changed anything observable (a new prefix, or different
// attributes for an existing one).
func (l *LocRIB) Install(r Route) (changed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old, existed := l.routes[r.Prefix]
	if existed && Equal(old, r) {
		return false
	}
	l.routes[r.Prefix] = r
	return true
}

// Remove deletes the selected route for prefix, reporting whether one was
// present.
func (l *LocRIB) Remove(prefix bgp.Prefix) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.routes[prefix]; !ok {
		return false
	}
	delete(l.routes, prefix)
	return true
}

// Get returns the selected route for prefix, if any.
func (l *LocRIB) Get(prefix bgp.Prefix) (Route, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.routes[prefix]
	return r, ok
}

// All returns a snapshot of every selected route.
func (l *LocRIB) All() []Route {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Route, 0, len(l.routes))
	for _, r := range l.routes {
		out = append(out, r)
	}
	return out
}

// Len returns the number of selected routes.
func (l *LocRIB) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.routes)
}
