package testutil

import (
	"sync"
	"time"
)

// FixedClock is a settable clock for tests that stamp reports and snapshots.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock reading t. A zero t reads 2026-03-01T09:00:00Z.
func NewFixedClock(t time.Time) *FixedClock {
	if t.IsZero() {
		t = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	}
	return &FixedClock{now: t}
}

// Now returns the current reading.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
