package window

import (
	"sync/atomic"
	"time"
)

// Clock supplies the monotonic nanosecond timestamps the engine expects.
type Clock interface {
	Now() int64
}

// MonotonicClock reads Go's monotonic clock relative to a base one second in
// the past, so the first reading is already strictly positive.
type MonotonicClock struct {
	base time.Time
}

// NewMonotonicClock creates a clock anchored at the current instant.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{base: time.Now().Add(-time.Second)}
}

func (c *MonotonicClock) Now() int64 {
	return int64(time.Since(c.base))
}

// ManualClock is a settable clock used by replays and tests.
type ManualClock struct {
	now atomic.Int64
}

func NewManualClock(start int64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

func (c *ManualClock) Now() int64 { return c.now.Load() }

// Set moves the clock to now.
func (c *ManualClock) Set(now int64) { c.now.Store(now) }

// Add moves the clock forward by d.
func (c *ManualClock) Add(d time.Duration) { c.now.Add(int64(d)) }
