// Package ratelimit implements a per-client sliding-window admission controller.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/ashureev/debatebot/internal/metrics"
)

// Limiter admits at most limit requests per key within any trailing window.
// The key is usually the client IP so that rotating session ids does not
// bypass throttling.
type Limiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a limiter. Call Start to enable the background sweep.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	l := &Limiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the configured maximum requests per window.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow records a request for key if the window has room.
// A denied request reports how many whole seconds to wait, always at least 1.
func (l *Limiter) Allow(key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := evict(l.requests[key], now.Add(-l.window))

	if len(recent) >= l.limit {
		l.requests[key] = recent
		wait := recent[0].Add(l.window).Sub(now)
		retryAfter := int(math.Ceil(wait.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return false, retryAfter
	}

	l.requests[key] = append(recent, now)
	return true, 0
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

// Start runs the periodic sweep until ctx is cancelled or Stop is called.
func (l *Limiter) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(l.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case <-ticker.C:
				l.Sweep()
				metrics.AdmissionKeys.Set(float64(l.Keys()))
			}
		}
	}()
}

// Stop ends the background sweep. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Sweep drops expired timestamps and removes keys that are empty right now.
// A key that received a request since its last expiry is kept.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	removed := 0
	for key, times := range l.requests {
		fresh := evict(times, cutoff)
		if len(fresh) == 0 {
			delete(l.requests, key)
			removed++
			continue
		}
		l.requests[key] = fresh
	}
	return removed
}

// evict returns the suffix of times newer than cutoff. Timestamps are
// appended in order so the first fresh entry ends the scan.
func evict(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	fresh := make([]time.Time, len(times)-i)
	copy(fresh, times[i:])
	return fresh
}
