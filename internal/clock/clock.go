package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock reads so time-of-day rules can be tested.
type Clock interface {
	Now() time.Time
}

// Real implements Clock using the local wall clock.
type Real struct{}

// Now returns the current local time. Departure times are local
// time-of-day values, so the location is kept.
func (Real) Now() time.Time {
	return time.Now()
}

// Manual provides a controllable clock for deterministic tests.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual constructs a Manual clock starting at start, location included.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves time forward by d. Negative durations are ignored.
func (m *Manual) Advance(d time.Duration) time.Time {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Set jumps to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}
