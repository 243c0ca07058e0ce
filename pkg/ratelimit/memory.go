package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a fixed-window limiter held in process memory. Counters
// are reset lazily on the first check after the window elapses and are lost
// on restart, which is acceptable for a soft throttle. Suitable for
// single-instance deployments only; use RedisLimiter behind a load balancer.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window

	windowSize time.Duration
	max        int
	now        func() time.Time
}

// NewMemoryLimiter creates an in-memory fixed-window limiter. The clock is
// injectable for tests; pass nil for time.Now.
func NewMemoryLimiter(windowSize time.Duration, max int, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		windows:    make(map[string]*window),
		windowSize: windowSize,
		max:        max,
		now:        now,
	}
}

var _ Limiter = (*MemoryLimiter)(nil)

// Allow performs the check and the increment under a single lock hold, so
// concurrent requests for the same key cannot both pass at the cap.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.windowSize)}
		l.windows[key] = w
	}

	if w.count >= l.max {
		return false, nil
	}
	w.count++
	return true, nil
}
