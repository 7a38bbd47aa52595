package loginflow

import (
	"context"
	"log/slog"

	hriserrors "github.com/tendant/simple-hris/pkg/errors"
	"github.com/tendant/simple-hris/pkg/trust"
)

// CredentialAuthenticationStep checks the submitted email and password
type CredentialAuthenticationStep struct{}

func NewCredentialAuthenticationStep() *CredentialAuthenticationStep {
	return &CredentialAuthenticationStep{}
}

func (s *CredentialAuthenticationStep) Name() string {
	return "credential_authentication"
}

func (s *CredentialAuthenticationStep) Order() int {
	return OrderCredentialAuthentication
}

func (s *CredentialAuthenticationStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return flowContext.Authenticated
}

func (s *CredentialAuthenticationStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	acc, err := flowContext.Services.Accounts.Authenticate(ctx, flowContext.Request.Email, flowContext.Request.Password)
	if err != nil {
		if hriserrors.IsCode(err, hriserrors.ErrCodeInvalidCredentials) {
			slog.Info("Login failed", "email", flowContext.Request.Email, "ip", flowContext.Client.IPAddress)
			return &StepResult{Error: &Error{Kind: ErrorKindInline, Message: invalidCredentialsMessage, Err: err}}, nil
		}
		slog.Error("Authentication backend failed", "email", flowContext.Request.Email, "error", err)
		return &StepResult{Error: &Error{Kind: ErrorKindToast, Message: genericFailureMessage, Err: err}}, nil
	}

	flowContext.Account = acc
	flowContext.Authenticated = true
	return &StepResult{Continue: true}, nil
}

// PasswordChangeRequirementStep stops the flow when the account still has
// its initial password
type PasswordChangeRequirementStep struct{}

func NewPasswordChangeRequirementStep() *PasswordChangeRequirementStep {
	return &PasswordChangeRequirementStep{}
}

func (s *PasswordChangeRequirementStep) Name() string {
	return "password_change_requirement"
}

func (s *PasswordChangeRequirementStep) Order() int {
	return OrderPasswordChangeRequirement
}

func (s *PasswordChangeRequirementStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return false
}

func (s *PasswordChangeRequirementStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	required, err := flowContext.Services.Accounts.IsPasswordChangeRequired(ctx, flowContext.Account.ID)
	if err != nil {
		slog.Error("Failed to check password change requirement", "accountID", flowContext.Account.ID, "error", err)
		return &StepResult{Error: &Error{Kind: ErrorKindToast, Message: genericFailureMessage, Err: err}}, nil
	}
	if required {
		flowContext.NextState = StatePasswordChangeRequired
		return &StepResult{EarlyReturn: true}, nil
	}
	return &StepResult{Continue: true}, nil
}

// DeviceCheckStep refuses blocked devices and registers the current device
// when the browser has no device marker. Registration is best effort.
type DeviceCheckStep struct{}

func NewDeviceCheckStep() *DeviceCheckStep {
	return &DeviceCheckStep{}
}

func (s *DeviceCheckStep) Name() string {
	return "device_check"
}

func (s *DeviceCheckStep) Order() int {
	return OrderDeviceCheck
}

func (s *DeviceCheckStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return false
}

func (s *DeviceCheckStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	flowContext.Enter(StateDeviceCheck)

	accountID := flowContext.Account.ID
	fingerprint := flowContext.Client.Fingerprint
	devices := flowContext.Services.Devices

	blocked, err := devices.IsBlocked(ctx, fingerprint)
	if err != nil {
		slog.Error("Failed to check device status", "accountID", accountID, "fingerprint", fingerprint, "error", err)
	}
	if blocked {
		slog.Warn("Login from blocked device refused", "accountID", accountID, "fingerprint", fingerprint)
		return &StepResult{Error: &Error{Kind: ErrorKindBlocking, Message: deviceBlockedMessage}}, nil
	}

	if _, ok := flowContext.Markers.Get(trust.DeviceMarker); ok {
		return &StepResult{Continue: true}, nil
	}

	if _, err := devices.RegisterDevice(ctx, accountID, fingerprint, "", flowContext.Client.UserAgent); err != nil {
		slog.Warn("Device auto-registration failed, continuing", "accountID", accountID, "fingerprint", fingerprint, "error", err)
		return &StepResult{Continue: true}, nil
	}

	flowContext.Markers.Set(trust.DeviceMarker, fingerprint, flowContext.Config.DeviceMarkerTTL)
	slog.Info("Device registered during login", "accountID", accountID, "fingerprint", fingerprint)
	return &StepResult{Continue: true}, nil
}

// PinRequirementStep routes to PIN setup or PIN verification
type PinRequirementStep struct{}

func NewPinRequirementStep() *PinRequirementStep {
	return &PinRequirementStep{}
}

func (s *PinRequirementStep) Name() string {
	return "pin_requirement"
}

func (s *PinRequirementStep) Order() int {
	return OrderPinRequirement
}

func (s *PinRequirementStep) ShouldSkip(ctx context.Context, flowContext *FlowContext) bool {
	return false
}

func (s *PinRequirementStep) Execute(ctx context.Context, flowContext *FlowContext) (*StepResult, error) {
	hasPin, err := flowContext.Services.Pins.HasPin(ctx, flowContext.Account.ID)
	if err != nil {
		slog.Error("Failed to check PIN", "accountID", flowContext.Account.ID, "error", err)
		return &StepResult{Error: &Error{Kind: ErrorKindToast, Message: genericFailureMessage, Err: err}}, nil
	}

	if hasPin {
		flowContext.NextState = StatePinVerify
	} else {
		flowContext.NextState = StatePinSetup
	}
	return &StepResult{Continue: true}, nil
}
