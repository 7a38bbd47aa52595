// Package loginflow sequences the steps between a password check and access
// to the protected area: the forced first-login password change, device
// registration, PIN setup or verification, and the lockout that blocks a
// device after repeated wrong PINs.
//
// # States
//
//	Idle -> Authenticating -> PasswordChangeRequired -> DeviceCheck
//	                       \-> DeviceCheck -> PinSetup  -> Complete
//	                                       \-> PinVerify -> Complete
//	                                                     \-> Blocked
//
// A password change that is still pending takes precedence over every later
// step. DeviceCheck always runs before the PIN steps and a failed device
// registration never stops the flow.
//
// # Steps
//
// The automatic part of the flow is a list of LoginFlowStep values run in
// order by a FlowExecutor:
//
//	flow := loginflow.NewFlowBuilder().
//		AddStep(loginflow.NewCredentialAuthenticationStep()).
//		AddStep(loginflow.NewPasswordChangeRequirementStep()).
//		AddStep(loginflow.NewDeviceCheckStep()).
//		AddStep(loginflow.NewPinRequirementStep()).
//		Build(deps)
//
// # Orchestrator
//
// One Orchestrator holds the state of one browser's login attempt. Every
// method returns a View describing what to render next. Calls are strictly
// sequential: a call made while another is in flight fails with ErrBusy.
// Panics raised by a step are recovered and reported as a generic failure.
//
// On success the orchestrator sets the pin_verified marker, records the
// verification server-side, issues a session token and redirects once to the
// protected path. On the third wrong PIN it blocks the device, reports a
// blocking error and, after a short grace delay, signs out and redirects to
// the login path.
//
// Orchestrators live in a Registry keyed by the login_flow cookie and are
// dropped after a period of inactivity.
package loginflow
