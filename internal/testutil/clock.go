package testutil

import (
	"sync"
	"time"
)

// Epoch is the start time of clocks created without an explicit one.
var Epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// Clock is a deterministic time source for code that takes a
// func() time.Time hook. Every call to Now returns the current reading and
// then moves the clock forward by the step, so a start/end pair of readings
// measures exactly one step.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
	n    int
}

// NewClock returns a clock at Epoch that advances by step per reading. A
// zero step gives a frozen clock.
func NewClock(step time.Duration) *Clock {
	return &Clock{now: Epoch, step: step}
}

// Now returns the current reading and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	c.n++
	return t
}

// Advance moves the clock forward by d without taking a reading.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Readings reports how many times Now was called.
func (c *Clock) Readings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
