package loginflow

// LoginFlowBuilders provides the pre-configured flows of the orchestrator
type LoginFlowBuilders struct {
	services *Dependencies
}

// NewLoginFlowBuilders creates a new instance of LoginFlowBuilders
func NewLoginFlowBuilders(services *Dependencies) *LoginFlowBuilders {
	return &LoginFlowBuilders{
		services: services,
	}
}

// BuildCredentialFlow runs from submitted credentials to the PIN step
func (b *LoginFlowBuilders) BuildCredentialFlow() *FlowExecutor {
	return b.BuildCustomFlow([]LoginFlowStep{
		NewCredentialAuthenticationStep(),
		NewPasswordChangeRequirementStep(),
		NewDeviceCheckStep(),
		NewPinRequirementStep(),
	})
}

// BuildPostPasswordChangeFlow resumes after the password was changed
func (b *LoginFlowBuilders) BuildPostPasswordChangeFlow() *FlowExecutor {
	return b.BuildCustomFlow([]LoginFlowStep{
		NewDeviceCheckStep(),
		NewPinRequirementStep(),
	})
}

// BuildCustomFlow creates a custom flow with specified steps
func (b *LoginFlowBuilders) BuildCustomFlow(steps []LoginFlowStep) *FlowExecutor {
	builder := NewFlowBuilder()
	for _, step := range steps {
		builder.AddStep(step)
	}
	return builder.Build(b.services)
}
