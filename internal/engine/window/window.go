package window

import (
	"sync/atomic"
	"time"
)

// Timer tracks the start of the current measurement window in host
// nanoseconds. A start of 0 means the window has not been initialised yet.
type Timer struct {
	start    atomic.Int64
	duration int64
}

// NewTimer creates a timer for windows of length d.
func NewTimer(d time.Duration) *Timer {
	return &Timer{duration: int64(d)}
}

// Duration returns the window length.
func (t *Timer) Duration() time.Duration {
	return time.Duration(t.duration)
}

// Start returns the current window start, 0 if uninitialised.
func (t *Timer) Start() int64 {
	return t.start.Load()
}

// Init starts the first window at now. Only one caller wins; the others see
// false. now must be strictly positive.
func (t *Timer) Init(now int64) bool {
	return t.start.CompareAndSwap(0, now)
}

// Elapsed returns the time since the window started. A clock that reads
// behind the stored start yields a negative value.
func (t *Timer) Elapsed(now int64) time.Duration {
	return time.Duration(now - t.start.Load())
}

// Expired reports whether an initialised window has run its full length.
func (t *Timer) Expired(now int64) bool {
	s := t.start.Load()
	return s != 0 && now-s >= t.duration
}

// Advance moves the window start forward to now. It never moves backwards.
// Only the gate holder calls it.
func (t *Timer) Advance(now int64) bool {
	if now <= t.start.Load() {
		return false
	}
	t.start.Store(now)
	return true
}

// Gate elects at most one aggregation leader at a time.
type Gate struct {
	held atomic.Bool
}

// TryAcquire takes the gate without waiting.
func (g *Gate) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

// Release gives the gate back.
func (g *Gate) Release() {
	g.held.Store(false)
}

// Held reports whether some lane currently leads.
func (g *Gate) Held() bool {
	return g.held.Load()
}

// Lead is the per-frame expiry check. When the window has expired and the
// caller wins the gate, the window is moved to now and the previous start is
// returned with ok set; the caller aggregates and then must call g.Release.
// Callers that lose the race return immediately.
func Lead(t *Timer, g *Gate, now int64) (prevStart int64, ok bool) {
	if !t.Expired(now) {
		return 0, false
	}
	if !g.TryAcquire() {
		return 0, false
	}
	// Another leader may have closed this window between our check and the CAS.
	prevStart = t.Start()
	if now-prevStart < t.duration {
		g.Release()
		return 0, false
	}
	t.Advance(now)
	return prevStart, true
}
