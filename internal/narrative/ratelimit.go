package narrative

import (
	"sync"
	"time"
)

// RateWindow limits generator calls to a fixed count per rolling window.
type RateWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	clock  func() time.Time
	stamps []time.Time
}

// NewRateWindow builds a rolling-window limiter. A non-positive limit
// disables limiting.
func NewRateWindow(limit int, window time.Duration) *RateWindow {
	return &RateWindow{limit: limit, window: window, clock: time.Now}
}

// WithClock replaces the time source, for tests.
func (r *RateWindow) WithClock(clock func() time.Time) *RateWindow {
	r.clock = clock
	return r
}

// Allow reports whether another call fits in the window and, when it does,
// records it.
func (r *RateWindow) Allow() bool {
	if r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	cutoff := now.Add(-r.window)
	kept := r.stamps[:0]
	for _, s := range r.stamps {
		if s.After(cutoff) {
			kept = append(kept, s)
		}
	}
	r.stamps = kept

	if len(r.stamps) >= r.limit {
		return false
	}
	r.stamps = append(r.stamps, now)
	return true
}
