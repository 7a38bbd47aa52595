// Package lockout counts failed PIN attempts within one verification session
// and reports, exactly once, when the threshold is reached.
//
// The controller never blocks anything itself. The caller reacts to
// Outcome.Blocked by blocking the device and ending the session.
package lockout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultThreshold = 3
	// DefaultWindow is how long a counter is kept after its last failure. It
	// must exceed the lifetime of the session the counter belongs to.
	DefaultWindow = 24 * time.Hour
)

// AttemptStore holds failure counters by key.
type AttemptStore interface {
	// Increment adds one to the counter and returns the new value. Every
	// increment pushes expiry to ttl from now; ttl <= 0 keeps the counter
	// until Reset.
	Increment(ctx context.Context, key string, ttl time.Duration) (int, error)
	Count(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

// Outcome is the result of recording one failure.
type Outcome struct {
	Attempts  int
	Remaining int
	// Blocked is true only for the failure that reached the threshold.
	Blocked bool
}

// Controller counts failures for one session key.
type Controller struct {
	store     AttemptStore
	key       string
	threshold int
	window    time.Duration
	mu        sync.Mutex
}

type Option func(*Controller)

func WithThreshold(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.threshold = n
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.window = d
		}
	}
}

// NewController returns a controller counting under key in store.
func NewController(store AttemptStore, key string, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		key:       key,
		threshold: DefaultThreshold,
		window:    DefaultWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Threshold() int {
	return c.threshold
}

// RecordFailure counts one wrong PIN.
func (c *Controller) RecordFailure(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	attempts, err := c.store.Increment(ctx, c.key, c.window)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to record attempt: %w", err)
	}

	out := Outcome{
		Attempts:  attempts,
		Remaining: c.threshold - attempts,
		Blocked:   attempts == c.threshold,
	}
	if out.Remaining < 0 {
		out.Remaining = 0
	}
	slog.Debug("PIN failure recorded", "key", c.key, "attempts", attempts, "remaining", out.Remaining)
	return out, nil
}

// Exhausted reports whether the threshold was already reached.
func (c *Controller) Exhausted(ctx context.Context) (bool, error) {
	attempts, err := c.store.Count(ctx, c.key)
	if err != nil {
		return false, fmt.Errorf("failed to read attempts: %w", err)
	}
	return attempts >= c.threshold, nil
}

// Reset starts a new verification session.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Reset(ctx, c.key)
}

// MemoryStore is an AttemptStore held in process memory.
type MemoryStore struct {
	counters map[string]memoryCounter
	now      func() time.Time
	mu       sync.Mutex
}

type memoryCounter struct {
	count     int
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]memoryCounter),
		now:      time.Now,
	}
}

func (s *MemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	counter, ok := s.counters[key]
	if !ok || (!counter.expiresAt.IsZero() && now.After(counter.expiresAt)) {
		counter = memoryCounter{}
	}
	counter.count++
	counter.expiresAt = time.Time{}
	if ttl > 0 {
		counter.expiresAt = now.Add(ttl)
	}
	s.counters[key] = counter
	return counter.count, nil
}

func (s *MemoryStore) Count(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok {
		return 0, nil
	}
	if !counter.expiresAt.IsZero() && s.now().After(counter.expiresAt) {
		delete(s.counters, key)
		return 0, nil
	}
	return counter.count, nil
}

func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}
