package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first instant a DeterministicClock created with a
// zero base reports.
var DefaultEpoch = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

// DeterministicClock is a wall clock for tests that advances by a fixed
// step on every reading, so run reports carry reproducible timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	base  time.Time
	step  time.Duration
	ticks int64
}

// NewDeterministicClock creates a clock starting at base. A zero base
// starts at DefaultEpoch; a non-positive step defaults to one second.
//
// The first call to Now() returns base.
func NewDeterministicClock(base time.Time, step time.Duration) *DeterministicClock {
	if base.IsZero() {
		base = DefaultEpoch
	}
	if step <= 0 {
		step = time.Second
	}
	return &DeterministicClock{base: base, step: step}
}

// Now returns the current reading and advances the clock by one step.
// Monotonic: every reading is strictly later than the previous one.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.base.Add(time.Duration(c.ticks) * c.step)
	c.ticks++
	return t
}

// Current returns the next reading without advancing.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.Add(time.Duration(c.ticks) * c.step)
}

// Reset rewinds the clock to its base.
//
// Used for test reuse. After Reset(), the next call to Now() returns base.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
