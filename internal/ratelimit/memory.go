package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int64
}

// MemoryLimiter keeps windows in a process-local map. Suitable for a single
// server instance and for tests; swap in RedisLimiter behind the same
// interface when instances share traffic.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryLimiter creates an in-memory fixed-window limiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow increments the counter for (policy, identity) under the limiter's
// lock, starting a fresh window when the previous one has elapsed.
func (l *MemoryLimiter) Allow(_ context.Context, policy Policy, identity string) (Decision, error) {
	key := policy.Name + ":" + identity
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= policy.Window {
		w = &window{start: now}
		l.windows[key] = w
	}

	w.count++
	if w.count <= policy.Limit {
		return Decision{Allowed: true, Remaining: policy.Limit - w.count}, nil
	}

	retryAfter := policy.Window - now.Sub(w.start)
	return Decision{Allowed: false, RetryAfter: retryAfter}, nil
}

// Prune drops windows that ended before now. Called opportunistically; the
// map otherwise grows with one entry per identity seen.
func (l *MemoryLimiter) Prune(policies ...Policy) {
	maxWindow := time.Duration(0)
	for _, p := range policies {
		if p.Window > maxWindow {
			maxWindow = p.Window
		}
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if now.Sub(w.start) >= maxWindow {
			delete(l.windows, key)
		}
	}
}

var _ Limiter = (*MemoryLimiter)(nil)
