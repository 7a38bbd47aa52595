package loginflow

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/simple-hris/pkg/lockout"
	"github.com/tendant/simple-hris/pkg/metrics"
	"github.com/tendant/simple-hris/pkg/trust"
)

// Service creates login flows over a shared set of backends.
type Service struct {
	deps      Dependencies
	config    Config
	builders  *LoginFlowBuilders
	scheduler Scheduler
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithScheduler replaces the timer that delays the forced sign-out.
func WithScheduler(scheduler Scheduler) Option {
	return func(s *Service) {
		s.scheduler = scheduler
	}
}

func NewService(deps Dependencies, config Config, opts ...Option) *Service {
	if deps.Attempts == nil {
		deps.Attempts = lockout.NewMemoryStore()
	}
	s := &Service{
		deps:      deps,
		config:    config.withDefaults(),
		scheduler: timeScheduler{},
	}
	s.builders = NewLoginFlowBuilders(&s.deps)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective flow parameters.
func (s *Service) Config() Config {
	return s.config
}

// NewFlow starts a flow in Idle for one browser. markers holds the trust
// markers the browser presented.
func (s *Service) NewFlow(client Client, markers *trust.MemoryMarkers) *Orchestrator {
	if markers == nil {
		markers = trust.NewMemoryMarkers()
	}
	id := uuid.NewString()
	o := &Orchestrator{
		id:        id,
		client:    client,
		config:    s.config,
		deps:      &s.deps,
		builders:  s.builders,
		markers:   markers,
		scheduler: s.scheduler,
		metrics:   s.metrics,
		state:     StateIdle,
		history:   []State{StateIdle},
	}
	o.lockout = lockout.NewController(s.deps.Attempts, "flow:"+id,
		lockout.WithThreshold(s.config.MaxPinAttempts),
		lockout.WithWindow(lockout.DefaultWindow),
	)
	slog.Debug("Login flow started", "flowID", id, "fingerprint", client.Fingerprint)
	return o
}
