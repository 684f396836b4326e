package testutil

import (
	"sync"
	"time"
)

// TickingClock is a deterministic time source for tests: every call to
// Now advances a fixed step from a fixed start. Same test, same
// timestamps, byte-identical records.
//
// Thread-safety: Now is safe for concurrent use via internal mutex.
type TickingClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewTickingClock creates a clock whose first Now() returns start.
func NewTickingClock(start time.Time, step time.Duration) *TickingClock {
	return &TickingClock{next: start, step: step}
}

// Now returns the current instant and advances the clock one step.
func (c *TickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Reset rewinds the clock to start. After Reset, the next Now() returns
// start again.
func (c *TickingClock) Reset(start time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = start
}
