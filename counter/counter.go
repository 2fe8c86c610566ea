// Package counter implements a thread-safe 64 bit counter, used for the
// per-peer and aggregate message statistics exposed by the session and
// agent control surfaces.
package counter

import (
	"fmt"
	"sync/atomic"
)

// Counter is a thread-safe 64 bit counter.
type Counter struct {
	count uint64
}

// New creates a new zeroed counter.
func New() *Counter {
	return new(Counter)
}

// Reset zeroes the counter.
func (c *Counter) Reset() {
	atomic.StoreUint64(&c.count, 0)
}

// Increment adds one to the counter.
func (c *Counter) Increment() {
	atomic.AddUint64(&c.count, 1)
}

// Value returns the counter's current value.
func (c *Counter) Value() uint64 {
	return atomic.LoadUint64(&c.count)
}

// String implements fmt.Stringer.
func (c *Counter) String() string {
	return fmt.Sprintf("%d", c.Value())
}
