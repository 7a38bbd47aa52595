package loginflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/tendant/simple-hris/pkg/account"
	"github.com/tendant/simple-hris/pkg/trust"
)

// LoginFlowStep represents a single step in the login flow
type LoginFlowStep interface {
	// Name returns the unique name of this step
	Name() string

	// Order returns the execution order (lower numbers execute first)
	Order() int

	// Execute performs the step's logic
	Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error)

	// ShouldSkip determines if this step should be skipped based on current context
	ShouldSkip(ctx context.Context, flowContext *FlowContext) bool
}

// FlowContext carries state between login flow steps
type FlowContext struct {
	// Input data
	Request Request
	Client  Client

	// Set by the credential step, or by the orchestrator when resuming
	Account       account.Account
	Authenticated bool

	// NextState is where the orchestrator goes once the steps are done
	NextState State

	// Enter records a state the flow passes through
	Enter func(State)

	Markers  trust.Markers
	Config   Config
	Services *Dependencies
}

// Request holds the credentials submitted at the start of the flow
type Request struct {
	Email    string
	Password string
}

// StepResult represents the result of executing a login flow step
type StepResult struct {
	// Continue indicates whether the flow should continue to the next step
	Continue bool

	// EarlyReturn indicates the flow should stop with the current NextState
	EarlyReturn bool

	// Error indicates the step failed in a way the user must see
	Error *Error
}

// Error is a failure to show the user.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StepRegistry manages and orders login flow steps
type StepRegistry struct {
	steps []LoginFlowStep
}

// NewStepRegistry creates a new step registry
func NewStepRegistry() *StepRegistry {
	return &StepRegistry{
		steps: make([]LoginFlowStep, 0),
	}
}

// AddStep adds a step to the registry
func (r *StepRegistry) AddStep(step LoginFlowStep) *StepRegistry {
	r.steps = append(r.steps, step)
	return r
}

// GetOrderedSteps returns steps sorted by their order
func (r *StepRegistry) GetOrderedSteps() []LoginFlowStep {
	orderedSteps := make([]LoginFlowStep, len(r.steps))
	copy(orderedSteps, r.steps)

	sort.SliceStable(orderedSteps, func(i, j int) bool {
		return orderedSteps[i].Order() < orderedSteps[j].Order()
	})

	return orderedSteps
}

// FlowExecutor orchestrates the execution of login flow steps
type FlowExecutor struct {
	registry *StepRegistry
	services *Dependencies
}

// NewFlowExecutor creates a new flow executor
func NewFlowExecutor(registry *StepRegistry, services *Dependencies) *FlowExecutor {
	return &FlowExecutor{
		registry: registry,
		services: services,
	}
}

// Execute runs the steps in order. It returns the first error a step
// reports; a step returning a Go error is reported as a generic failure.
func (e *FlowExecutor) Execute(ctx context.Context, flowContext *FlowContext) *Error {
	flowContext.Services = e.services
	if flowContext.Enter == nil {
		flowContext.Enter = func(State) {}
	}

	for _, step := range e.registry.GetOrderedSteps() {
		if step.ShouldSkip(ctx, flowContext) {
			continue
		}

		stepResult, err := step.Execute(ctx, flowContext)
		if err != nil {
			return &Error{
				Kind:    ErrorKindToast,
				Message: genericFailureMessage,
				Err:     fmt.Errorf("step '%s' failed: %w", step.Name(), err),
			}
		}

		if stepResult.Error != nil {
			return stepResult.Error
		}
		if stepResult.EarlyReturn || !stepResult.Continue {
			break
		}
	}

	return nil
}

// FlowBuilder provides a fluent interface for building login flows
type FlowBuilder struct {
	registry *StepRegistry
}

// NewFlowBuilder creates a new flow builder
func NewFlowBuilder() *FlowBuilder {
	return &FlowBuilder{
		registry: NewStepRegistry(),
	}
}

// AddStep adds a step to the flow
func (b *FlowBuilder) AddStep(step LoginFlowStep) *FlowBuilder {
	b.registry.AddStep(step)
	return b
}

// Build creates a flow executor with the configured steps
func (b *FlowBuilder) Build(services *Dependencies) *FlowExecutor {
	return NewFlowExecutor(b.registry, services)
}

// Step orders
const (
	OrderCredentialAuthentication  = 100
	OrderPasswordChangeRequirement = 200
	OrderDeviceCheck               = 300
	OrderPinRequirement            = 400
)
