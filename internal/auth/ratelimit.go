package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBurst    = 5
	defaultPerSec   = 0.2
	defaultIdleSpan = 10 * time.Minute
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter admits at most burst attempts per key, refilled lazily at
// perSecond tokens per second. Buckets start with a full allowance.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	burst   int
	refill  rate.Limit
	now     func() time.Time
}

// NewRateLimiter builds a keyed token-bucket limiter. Non-positive burst
// falls back to the default allowance.
func NewRateLimiter(burst int, perSecond float64) *RateLimiter {
	if burst <= 0 {
		burst = defaultBurst
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		burst:   burst,
		refill:  rate.Limit(perSecond),
		now:     systemNow,
	}
}

// WithClock overrides the limiter's time source (useful for tests).
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now != nil {
		l.now = now
	}
	return l
}

// Check consumes one token for key if available and reports admission.
// Denied checks consume nothing.
func (l *RateLimiter) Check(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	at := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.refill, l.burst)}
		l.buckets[key] = b
	}
	b.seen = at
	return b.lim.AllowN(at, 1)
}

// Sweep drops buckets idle for longer than idleFor, so abandoned keys do not
// accumulate forever. Zero idleFor uses the default span.
func (l *RateLimiter) Sweep(idleFor time.Duration) {
	if idleFor <= 0 {
		idleFor = defaultIdleSpan
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idleFor)
	for key, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
