package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow admits at most limit events per key within a trailing window.
// All keys share one lock; the prune, check and record for a key happen in a
// single critical section.
type SlidingWindow struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	clock    Clock
}

// NewSlidingWindow creates an empty limiter using the system clock
func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{
		requests: make(map[string][]time.Time),
		clock:    SystemClock{},
	}
}

// WithClock sets a custom clock (for testing)
func (l *SlidingWindow) WithClock(clock Clock) *SlidingWindow {
	l.clock = clock
	return l
}

// Allow reports whether key may make another request. An admitted request is
// recorded; a rejected one is not.
func (l *SlidingWindow) Allow(key string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	entries := l.requests[key]

	// entries are in arrival order, so the expired ones form a prefix
	keep := 0
	for keep < len(entries) && now.Sub(entries[keep]) >= window {
		keep++
	}
	entries = entries[keep:]

	if len(entries) >= limit {
		l.requests[key] = entries
		return false
	}

	l.requests[key] = append(entries, now)
	return true
}

// Len returns the number of timestamps held for key
func (l *SlidingWindow) Len(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests[key])
}
