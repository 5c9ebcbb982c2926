// Package testutil provides deterministic test doubles.
package testutil

import (
	"sync"
	"time"
)

// FixedClock is a thread-safe settable wall clock for tests.
//
// Hand its Now method to service.WithNow and move time explicitly with
// Advance or Set; nothing in a test then depends on the real clock.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t.UTC()}
}

// Now returns the current frozen time.
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

// AdvanceDays moves the clock forward by whole days.
func (c *FixedClock) AdvanceDays(n int) {
	c.Advance(time.Duration(n) * 24 * time.Hour)
}

// Set jumps the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
