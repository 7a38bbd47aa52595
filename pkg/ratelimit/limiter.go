// Package ratelimit throttles the login endpoints per client address and per
// device fingerprint. It is independent of the PIN lockout: the lockout
// blocks a device after wrong PINs, the limiter slows down any caller that
// submits too fast.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements the token bucket algorithm
type TokenBucket struct {
	capacity   int
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket. capacity is the burst size and
// refillRate the sustained rate in requests per second.
func NewTokenBucket(capacity int, refillRate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: now,
	}
}

// Allow takes a token if one is available.
func (tb *TokenBucket) Allow(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// RetryAfter is how long until the next token is available.
func (tb *TokenBucket) RetryAfter(now time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	if tb.tokens >= 1.0 || tb.refillRate <= 0 {
		return 0
	}
	return time.Duration((1.0 - tb.tokens) / tb.refillRate * float64(time.Second))
}

func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens = min(float64(tb.capacity), tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now
}

func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastRefill
}

// Limiter keeps one bucket per key.
type Limiter struct {
	capacity   int
	refillRate float64
	ttl        time.Duration
	now        func() time.Time

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// NewLimiter allows capacity requests in a burst per key and perMinute
// requests a minute after that. Buckets idle longer than ttl are dropped by
// Sweep.
func NewLimiter(capacity int, perMinute float64, ttl time.Duration) *Limiter {
	return &Limiter{
		capacity:   capacity,
		refillRate: perMinute / 60.0,
		ttl:        ttl,
		now:        time.Now,
		buckets:    make(map[string]*TokenBucket),
	}
}

func (l *Limiter) bucket(key string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = NewTokenBucket(l.capacity, l.refillRate, l.now())
		l.buckets[key] = b
	}
	return b
}

// Allow reports whether a request for key may proceed. When it may not, the
// returned duration is the suggested wait.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	b := l.bucket(key)
	now := l.now()
	if b.Allow(now) {
		return true, 0
	}
	return false, b.RetryAfter(now)
}

// Reset forgets the bucket of key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Sweep drops buckets idle longer than the ttl and returns how many it dropped.
func (l *Limiter) Sweep() int {
	if l.ttl <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.idleSince()) > l.ttl {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
