package loginflow

import (
	hriserrors "github.com/tendant/simple-hris/pkg/errors"
)

// State is a login flow state.
type State string

const (
	StateIdle                   State = "idle"
	StateAuthenticating         State = "authenticating"
	StatePasswordChangeRequired State = "password_change_required"
	StateDeviceCheck            State = "device_check"
	StatePinSetup               State = "pin_setup"
	StatePinVerify              State = "pin_verify"
	StateComplete               State = "complete"
	StateBlocked                State = "blocked"
)

// Terminal reports whether no further input is accepted.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateBlocked
}

// SetupStep is the sub-step of PIN setup.
type SetupStep string

const (
	SetupEntry   SetupStep = "entry"
	SetupConfirm SetupStep = "confirm"
)

// ErrorKind tells the client how to present an error.
type ErrorKind string

const (
	// ErrorKindInline is shown next to the input it concerns
	ErrorKindInline ErrorKind = "inline"
	// ErrorKindToast is a transient notification
	ErrorKindToast ErrorKind = "toast"
	// ErrorKindBlocking is a modal alert that ends the session
	ErrorKindBlocking ErrorKind = "blocking"
)

// View describes what the client should render after a call.
type View struct {
	State     State     `json:"state"`
	SetupStep SetupStep `json:"setup_step,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	// Remaining is the number of PIN attempts left while verifying
	Remaining int    `json:"remaining_attempts,omitempty"`
	Redirect  string `json:"redirect,omitempty"`
	SignedOut bool   `json:"signed_out,omitempty"`
}

var (
	ErrBusy       = hriserrors.New(hriserrors.ErrCodeFlowBusy, "another request for this login is in progress")
	ErrWrongState = hriserrors.New(hriserrors.ErrCodeFlowState, "request not allowed in the current login state")
)

const (
	genericFailureMessage     = "Something went wrong. Please try again."
	invalidCredentialsMessage = "Invalid email or password."
	deviceBlockedMessage      = "This device has been blocked. Contact your administrator."
	lockoutMessage            = "Too many incorrect PIN attempts. This device has been blocked and you will be signed out."
	lockoutUnblockedMessage   = "Too many incorrect PIN attempts. You will be signed out."
	pinShapeMessage           = "PIN must be exactly 6 digits."
	weakPinMessage            = "This PIN is too easy to guess. Choose another one."
	pinMismatchMessage        = "PINs do not match. Enter the confirmation again."
	pinExistsMessage          = "A PIN has already been set for this account."
)

// LockoutBlockReason is recorded on devices blocked by the flow.
const LockoutBlockReason = "too many incorrect PIN attempts"
