package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryLimiter keeps per-key attempt timestamps in process memory.
type InMemoryLimiter struct {
	mu      sync.Mutex
	policy  Policy
	windows map[string]*slidingWindow
}

// slidingWindow holds attempt timestamps newer than now-window.
type slidingWindow struct {
	timestamps []time.Time
}

func NewInMemoryLimiter(policy Policy) *InMemoryLimiter {
	return &InMemoryLimiter{
		policy:  policy,
		windows: make(map[string]*slidingWindow),
	}
}

// Hit records the attempt and reports whether it exceeds the policy.
func (l *InMemoryLimiter) Hit(_ context.Context, key string, now time.Time) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &slidingWindow{}
		l.windows[key] = w
	}
	w.cleanupExpired(now, l.policy.Window)
	w.timestamps = append(w.timestamps, now)

	count := len(w.timestamps)
	return Result{
		Limited: count > l.policy.Max,
		Count:   count,
		Limit:   l.policy.Max,
		ResetAt: w.timestamps[0].Add(l.policy.Window),
	}, nil
}

// Reset forgets all attempts for key.
func (l *InMemoryLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

func (w *slidingWindow) cleanupExpired(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	w.timestamps = w.timestamps[i:]
}
