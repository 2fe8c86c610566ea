package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	var ran bool
	ts := New(200*time.Millisecond, func() { ran = true })
	assert.True(t, ts.Running())
	time.Sleep(300 * time.Millisecond)
	assert.True(t, ran, "timer did not call its function")
}

func TestResetExtendsDeadline(t *testing.T) {
	var ran bool
	ts := New(200*time.Millisecond, func() { ran = true })
	time.Sleep(100 * time.Millisecond)
	ts.Reset(200 * time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.False(t, ran, "timer fired before the reset deadline")
	time.Sleep(150 * time.Millisecond)
	assert.True(t, ran, "timer did not fire after the reset deadline")
}

func TestResetChangesInterval(t *testing.T) {
	ts := New(5*time.Second, func() {})
	ts.Reset(90 * time.Millisecond)
	assert.Equal(t, 90*time.Millisecond, ts.Interval())
}

func TestStop(t *testing.T) {
	var ran bool
	ts := New(100*time.Millisecond, func() { ran = true })
	ts.Stop()
	assert.False(t, ts.Running())
	time.Sleep(200 * time.Millisecond)
	assert.False(t, ran, "stopped timer still called its function")
}

func TestRunning(t *testing.T) {
	ts := New(1*time.Second, func() {})
	assert.True(t, ts.Running())
	ts.Stop()
	assert.False(t, ts.Running())
}
