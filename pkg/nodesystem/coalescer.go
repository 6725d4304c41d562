package nodesystem

import (
	"sync"
	"time"
)

// Clock supplies the current time to coalescers.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a ManualClock reading t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Coalescer collapses bursts of triggers into a single call of fire. A burst
// settles once delay has passed since its last trigger. Nothing runs on its
// own: the owner calls Tick to fire settled bursts, or Flush to fire
// immediately. A Coalescer is not safe for concurrent use.
type Coalescer struct {
	delay    time.Duration
	clock    Clock
	fire     func()
	pending  bool
	deadline time.Time
}

// NewCoalescer creates a coalescer calling fire when a burst settles.
func NewCoalescer(delay time.Duration, clock Clock, fire func()) *Coalescer {
	if clock == nil {
		clock = systemClock{}
	}
	return &Coalescer{delay: delay, clock: clock, fire: fire}
}

// Trigger adds to the current burst, starting one if none is pending, and
// pushes the deadline out. It reports whether a new burst started.
func (c *Coalescer) Trigger() bool {
	first := !c.pending
	c.pending = true
	c.deadline = c.clock.Now().Add(c.delay)
	return first
}

// Pending reports whether a burst is waiting to fire.
func (c *Coalescer) Pending() bool { return c.pending }

// Deadline returns when the pending burst settles.
func (c *Coalescer) Deadline() time.Time { return c.deadline }

// Tick fires the pending burst if it has settled.
func (c *Coalescer) Tick() bool {
	if !c.pending || c.clock.Now().Before(c.deadline) {
		return false
	}
	return c.Flush()
}

// Flush fires the pending burst now.
func (c *Coalescer) Flush() bool {
	if !c.pending {
		return false
	}
	c.pending = false
	c.fire()
	return true
}

// Cancel drops the pending burst without firing.
func (c *Coalescer) Cancel() { c.pending = false }
