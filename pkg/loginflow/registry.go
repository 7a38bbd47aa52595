package loginflow

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultIdleTimeout is how long an untouched flow is kept.
	DefaultIdleTimeout = 15 * time.Minute
	// DefaultMaxLifetime is how long a flow is kept however often it is used.
	// It stays below lockout.DefaultWindow so a flow's PIN attempt counter
	// cannot expire while the flow is alive.
	DefaultMaxLifetime = time.Hour
)

const releaseTimeout = 5 * time.Second

type registryEntry struct {
	flow      *Orchestrator
	createdAt time.Time
	lastSeen  time.Time
}

// Registry holds the live flows of the process, keyed by flow id. A flow
// dropped from the registry releases its attempt counter.
type Registry struct {
	mu          sync.Mutex
	flows       map[string]*registryEntry
	timeout     time.Duration
	maxLifetime time.Duration
	now         func() time.Time
}

type RegistryOption func(*Registry)

// WithMaxLifetime caps the age of a flow regardless of activity.
func WithMaxLifetime(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.maxLifetime = d
		}
	}
}

func NewRegistry(timeout time.Duration, opts ...RegistryOption) *Registry {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	r := &Registry{
		flows:       make(map[string]*registryEntry),
		timeout:     timeout,
		maxLifetime: DefaultMaxLifetime,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Add(flow *Orchestrator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.flows[flow.ID()] = &registryEntry{flow: flow, createdAt: now, lastSeen: now}
}

// Get returns the flow and marks it as used. Expired flows are not returned.
func (r *Registry) Get(id string) (*Orchestrator, bool) {
	r.mu.Lock()
	entry, ok := r.flows[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	now := r.now()
	if r.expired(entry, now) {
		delete(r.flows, id)
		r.mu.Unlock()
		release(entry.flow)
		return nil, false
	}
	entry.lastSeen = now
	r.mu.Unlock()
	return entry.flow, true
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	entry, ok := r.flows[id]
	delete(r.flows, id)
	r.mu.Unlock()
	if ok {
		release(entry.flow)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Sweep drops expired flows and returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	now := r.now()
	var dropped []*Orchestrator
	for id, entry := range r.flows {
		if r.expired(entry, now) {
			delete(r.flows, id)
			dropped = append(dropped, entry.flow)
		}
	}
	r.mu.Unlock()

	for _, flow := range dropped {
		release(flow)
	}
	return len(dropped)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				slog.Debug("Expired login flows removed", "count", n)
			}
		}
	}
}

func (r *Registry) expired(entry *registryEntry, now time.Time) bool {
	return now.Sub(entry.lastSeen) > r.timeout || now.Sub(entry.createdAt) > r.maxLifetime
}

func release(flow *Orchestrator) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	flow.Release(ctx)
}
