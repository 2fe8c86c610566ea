// Package timer provides a restartable one-shot timer used for the FSM's
// ConnectRetryTimer, HoldTimer, and KeepaliveTimer.
package timer

import "time"

// Timer wraps time.Timer with a Reset that can renegotiate its duration,
// since HoldTimer and KeepaliveTimer change value on every OPEN exchange.
type Timer struct {
	timer    *time.Timer
	interval time.Duration
	running  bool
}

// New creates a new timer that will call f after d has elapsed.
func New(d time.Duration, f func()) *Timer {
	t := &Timer{
		interval: d,
		running:  true,
	}
	t.timer = time.AfterFunc(d, t.preflight(f))
	return t
}

// preflight takes care of any housekeeping before calling the user's function.
func (t *Timer) preflight(f func()) func() {
	return func() {
		t.running = false
		f()
	}
}

// Reset stops the timer if running and restarts it at d, which becomes the
// timer's new interval for any subsequent zero-argument-equivalent reuse.
//
// Timer is built on time.AfterFunc, whose Timer.C is never used (the
// standard library leaves it nil), so unlike a plain time.Timer there is
// nothing to drain here after Stop.
func (t *Timer) Reset(d time.Duration) {
	t.timer.Stop()
	t.interval = d
	t.running = true
	t.timer.Reset(d)
}

// Stop cancels the timer.
func (t *Timer) Stop() {
	t.timer.Stop()
	t.running = false
}

// Running returns true if the timer is counting down, false otherwise.
func (t *Timer) Running() bool {
	return t.running
}

// Interval returns the timer's current duration.
func (t *Timer) Interval() time.Duration {
	return t.interval
}
