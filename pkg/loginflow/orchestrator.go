package loginflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-hris/pkg/account"
	hriserrors "github.com/tendant/simple-hris/pkg/errors"
	"github.com/tendant/simple-hris/pkg/lockout"
	"github.com/tendant/simple-hris/pkg/metrics"
	"github.com/tendant/simple-hris/pkg/pin"
	"github.com/tendant/simple-hris/pkg/session"
	"github.com/tendant/simple-hris/pkg/trust"
)

const signOutTimeout = 10 * time.Second

// Orchestrator is the login state machine of one browser.
type Orchestrator struct {
	id        string
	client    Client
	config    Config
	deps      *Dependencies
	builders  *LoginFlowBuilders
	markers   *trust.MemoryMarkers
	lockout   *lockout.Controller
	scheduler Scheduler
	metrics   *metrics.Metrics

	mu         sync.Mutex
	busy       bool
	state      State
	setupStep  SetupStep
	pendingPin string
	remaining  int
	account    account.Account
	history    []State
	redirect   string
	token      *session.Token
	tokenSent  bool
	signedOut  bool
}

// ID returns the flow id.
func (o *Orchestrator) ID() string {
	return o.id
}

// Markers returns the trust markers of the flow's browser. Their pending
// changes are to be delivered with the response.
func (o *Orchestrator) Markers() *trust.MemoryMarkers {
	return o.markers
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns every state the flow has entered, in order.
func (o *Orchestrator) History() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.history...)
}

// Snapshot returns the current view. A pending redirect is delivered once.
func (o *Orchestrator) Snapshot() View {
	return o.view("", "")
}

// Release drops the flow's PIN attempt counter. It is called once the flow
// can no longer be reached.
func (o *Orchestrator) Release(ctx context.Context) {
	if err := o.lockout.Reset(ctx); err != nil {
		slog.Warn("Failed to release PIN attempts", "flowID", o.id, "error", err)
	}
}

// SignedOut reports whether the flow ended with a sign-out.
func (o *Orchestrator) SignedOut() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.signedOut
}

// TakeSession returns the session issued on completion. It returns it once.
func (o *Orchestrator) TakeSession() (session.Token, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.token == nil || o.tokenSent {
		return session.Token{}, false
	}
	o.tokenSent = true
	return *o.token, true
}

// SubmitCredentials starts the flow with an email and password.
func (o *Orchestrator) SubmitCredentials(ctx context.Context, email, password string) (View, error) {
	return o.do(ctx, "submit_credentials", inState(StateIdle), func(ctx context.Context) View {
		o.enter(StateAuthenticating)

		fc := o.flowContext(Request{Email: email, Password: password})
		if flowErr := o.builders.BuildCredentialFlow().Execute(ctx, fc); flowErr != nil {
			o.logFlowError("submit_credentials", flowErr)
			o.reset()
			o.enter(StateIdle)
			return o.view(flowErr.Kind, flowErr.Message)
		}

		o.mu.Lock()
		o.account = fc.Account
		o.mu.Unlock()
		return o.proceed(ctx, fc.NextState)
	})
}

// ChangePassword replaces the initial password and continues the flow.
func (o *Orchestrator) ChangePassword(ctx context.Context, newPassword string) (View, error) {
	return o.do(ctx, "change_password", inState(StatePasswordChangeRequired), func(ctx context.Context) View {
		acc := o.currentAccount()
		if err := o.deps.Accounts.ChangePassword(ctx, acc.ID, newPassword); err != nil {
			if hriserrors.IsCode(err, hriserrors.ErrCodePasswordComplexity) {
				return o.view(ErrorKindInline, messageOf(err))
			}
			slog.Error("Failed to change password", "flowID", o.id, "accountID", acc.ID, "error", err)
			return o.view(ErrorKindToast, genericFailureMessage)
		}
		slog.Info("Initial password changed", "flowID", o.id, "accountID", acc.ID)

		fc := o.flowContext(Request{})
		fc.Account = acc
		fc.Authenticated = true
		if flowErr := o.builders.BuildPostPasswordChangeFlow().Execute(ctx, fc); flowErr != nil {
			o.logFlowError("change_password", flowErr)
			o.reset()
			o.enter(StateIdle)
			return o.view(flowErr.Kind, flowErr.Message)
		}
		return o.proceed(ctx, fc.NextState)
	})
}

// SubmitNewPin takes the first entry of a new PIN. A malformed or weak PIN
// is refused in place.
func (o *Orchestrator) SubmitNewPin(ctx context.Context, candidate string) (View, error) {
	return o.do(ctx, "submit_new_pin", inSetupStep(o, SetupEntry), func(ctx context.Context) View {
		if err := pin.ValidateShape(candidate); err != nil {
			return o.view(ErrorKindInline, pinShapeMessage)
		}
		if pin.IsWeak(candidate) {
			return o.view(ErrorKindInline, weakPinMessage)
		}

		o.mu.Lock()
		o.pendingPin = candidate
		o.setupStep = SetupConfirm
		o.mu.Unlock()
		return o.view("", "")
	})
}

// SubmitPinConfirmation confirms the new PIN and stores it. A mismatch
// discards only the confirmation.
func (o *Orchestrator) SubmitPinConfirmation(ctx context.Context, confirm string) (View, error) {
	return o.do(ctx, "submit_pin_confirmation", inSetupStep(o, SetupConfirm), func(ctx context.Context) View {
		o.mu.Lock()
		candidate := o.pendingPin
		acc := o.account
		o.mu.Unlock()

		if !pin.Confirm(candidate, confirm) {
			return o.view(ErrorKindInline, pinMismatchMessage)
		}

		if err := o.deps.Pins.CreatePin(ctx, acc.ID, candidate); err != nil {
			switch {
			case hriserrors.IsCode(err, hriserrors.ErrCodePinWeak), hriserrors.IsCode(err, hriserrors.ErrCodePinInvalid):
				o.backToEntry()
				return o.view(ErrorKindInline, weakPinMessage)
			case errors.Is(err, pin.ErrPinExists):
				slog.Warn("PIN was set concurrently, switching to verification", "flowID", o.id, "accountID", acc.ID)
				o.backToEntry()
				o.proceed(ctx, StatePinVerify)
				return o.view(ErrorKindToast, pinExistsMessage)
			default:
				slog.Error("Failed to create PIN", "flowID", o.id, "accountID", acc.ID, "error", err)
				return o.view(ErrorKindToast, genericFailureMessage)
			}
		}

		slog.Info("PIN set during login", "flowID", o.id, "accountID", acc.ID)
		return o.complete(ctx)
	})
}

// Back returns from the confirmation to the first entry of PIN setup.
func (o *Orchestrator) Back() (View, error) {
	return o.do(context.Background(), "back", inState(StatePinSetup), func(ctx context.Context) View {
		o.backToEntry()
		return o.view("", "")
	})
}

// SubmitPin verifies the PIN. The third wrong PIN blocks the device.
func (o *Orchestrator) SubmitPin(ctx context.Context, candidate string) (View, error) {
	return o.do(ctx, "submit_pin", inState(StatePinVerify), func(ctx context.Context) View {
		if err := pin.ValidateShape(candidate); err != nil {
			return o.view(ErrorKindInline, pinShapeMessage)
		}

		acc := o.currentAccount()
		ok, err := o.deps.Pins.VerifyPin(ctx, acc.ID, candidate)
		if err != nil {
			slog.Error("Failed to verify PIN", "flowID", o.id, "accountID", acc.ID, "error", err)
			return o.view(ErrorKindToast, genericFailureMessage)
		}
		if ok {
			return o.complete(ctx)
		}

		outcome, err := o.lockout.RecordFailure(ctx)
		if err != nil {
			slog.Error("Failed to record PIN failure", "flowID", o.id, "accountID", acc.ID, "error", err)
			return o.view(ErrorKindToast, genericFailureMessage)
		}
		switch {
		case outcome.Blocked:
			return o.lockOut(ctx)
		case outcome.Remaining == 0:
			// already counted past the threshold; the device block was written then
			o.enter(StateBlocked)
			return o.view(ErrorKindBlocking, lockoutMessage)
		}

		o.mu.Lock()
		o.remaining = outcome.Remaining
		o.mu.Unlock()
		return o.view(ErrorKindInline, fmt.Sprintf("Incorrect PIN. %d attempt(s) remaining.", outcome.Remaining))
	})
}

// Logout ends the flow and revokes any session it issued.
func (o *Orchestrator) Logout(ctx context.Context) (View, error) {
	return o.do(ctx, "logout", nil, func(ctx context.Context) View {
		acc := o.currentAccount()
		o.signOut(ctx)
		o.markers.Clear(trust.PinVerifiedMarker)

		if o.deps.Verifications != nil && acc.ID != uuid.Nil {
			if err := o.deps.Verifications.Revoke(ctx, acc.ID, o.client.Fingerprint); err != nil {
				slog.Warn("Failed to revoke PIN verification", "flowID", o.id, "accountID", acc.ID, "error", err)
			}
		}

		if o.State() != StateBlocked {
			o.reset()
			o.enter(StateIdle)
		}
		o.mu.Lock()
		o.redirect = o.config.LoginPath
		o.mu.Unlock()
		return o.view("", "")
	})
}

// proceed enters the state chosen by the steps.
func (o *Orchestrator) proceed(ctx context.Context, next State) View {
	switch next {
	case StatePinSetup:
		o.mu.Lock()
		o.setupStep = SetupEntry
		o.pendingPin = ""
		o.mu.Unlock()
	case StatePinVerify:
		if err := o.lockout.Reset(ctx); err != nil {
			slog.Warn("Failed to reset PIN attempts", "flowID", o.id, "error", err)
		}
		o.mu.Lock()
		o.remaining = o.lockout.Threshold()
		o.mu.Unlock()
	}
	o.enter(next)
	return o.view("", "")
}

func (o *Orchestrator) complete(ctx context.Context) View {
	acc := o.currentAccount()
	token, err := o.deps.Sessions.Issue(session.Subject{
		AccountID:   acc.ID,
		Email:       acc.Email,
		Roles:       acc.Roles,
		Fingerprint: o.client.Fingerprint,
	})
	if err != nil {
		slog.Error("Failed to issue session", "flowID", o.id, "accountID", acc.ID, "error", err)
		return o.view(ErrorKindToast, genericFailureMessage)
	}

	if o.deps.Verifications != nil {
		if err := o.deps.Verifications.Record(ctx, acc.ID, o.client.Fingerprint); err != nil {
			slog.Error("Failed to record PIN verification", "flowID", o.id, "accountID", acc.ID, "error", err)
		}
	}
	o.markers.Set(trust.PinVerifiedMarker, "true", o.config.PinVerifiedTTL)

	o.mu.Lock()
	o.token = &token
	o.pendingPin = ""
	o.redirect = o.config.ProtectedPath
	o.mu.Unlock()

	o.enter(StateComplete)
	slog.Info("Login complete", "flowID", o.id, "accountID", acc.ID, "fingerprint", o.client.Fingerprint)
	return o.view("", "")
}

// lockOut blocks the device and schedules the forced sign-out. The block is
// written before the sign-out is scheduled.
func (o *Orchestrator) lockOut(ctx context.Context) View {
	acc := o.currentAccount()
	message := lockoutMessage
	_, err := o.deps.Devices.BlockDevice(ctx, o.client.Fingerprint, LockoutBlockReason)
	if err != nil {
		slog.Warn("Retrying device block after PIN lockout", "flowID", o.id, "fingerprint", o.client.Fingerprint, "error", err)
		_, err = o.deps.Devices.BlockDevice(ctx, o.client.Fingerprint, LockoutBlockReason)
	}
	if err != nil {
		slog.Error("Failed to block device after PIN lockout", "flowID", o.id, "accountID", acc.ID, "fingerprint", o.client.Fingerprint, "error", err)
		o.metrics.ObserveDeviceBlockFailure()
		message = lockoutUnblockedMessage
	} else {
		slog.Warn("Device blocked after PIN lockout", "flowID", o.id, "accountID", acc.ID, "fingerprint", o.client.Fingerprint)
	}

	o.markers.Clear(trust.PinVerifiedMarker)
	o.mu.Lock()
	o.remaining = 0
	o.mu.Unlock()
	o.enter(StateBlocked)

	o.scheduler.AfterFunc(o.config.BlockGrace, func() {
		ctx, cancel := context.WithTimeout(context.Background(), signOutTimeout)
		defer cancel()
		o.signOut(ctx)

		o.mu.Lock()
		o.redirect = o.config.LoginPath
		o.mu.Unlock()
	})

	return o.view(ErrorKindBlocking, message)
}

// signOut revokes the sessions known to the flow. It runs once.
func (o *Orchestrator) signOut(ctx context.Context) {
	o.mu.Lock()
	if o.signedOut {
		o.mu.Unlock()
		return
	}
	o.signedOut = true
	tokenID, expiresAt := o.client.SessionID, o.client.SessionExpiresAt
	if o.token != nil {
		tokenID, expiresAt = o.token.ID, o.token.ExpiresAt
	}
	accountID := o.account.ID
	o.mu.Unlock()

	if err := o.deps.Sessions.SignOut(ctx, tokenID, expiresAt); err != nil {
		slog.Error("Failed to sign out", "flowID", o.id, "accountID", accountID, "error", err)
	}
	if o.client.SessionID != "" && o.client.SessionID != tokenID {
		if err := o.deps.Sessions.SignOut(ctx, o.client.SessionID, o.client.SessionExpiresAt); err != nil {
			slog.Error("Failed to sign out existing session", "flowID", o.id, "accountID", accountID, "error", err)
		}
	}
	slog.Info("Signed out", "flowID", o.id, "accountID", accountID)
}

// do runs one call. It refuses concurrent calls and calls made in the wrong
// state, and turns a panic into a generic failure.
func (o *Orchestrator) do(ctx context.Context, op string, allowed func(State) bool, fn func(context.Context) View) (view View, err error) {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		slog.Debug("Login flow busy", "flowID", o.id, "operation", op)
		return View{}, ErrBusy
	}
	if allowed != nil && !allowed(o.state) {
		state := o.state
		o.mu.Unlock()
		slog.Debug("Login flow call in wrong state", "flowID", o.id, "operation", op, "state", state)
		return View{State: state}, ErrWrongState
	}
	o.busy = true
	previous := o.state
	o.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Login flow panicked", "flowID", o.id, "operation", op, "panic", r)
			switch o.State() {
			case StateAuthenticating, StateDeviceCheck:
				o.reset()
				o.enter(previous)
			}
			view = o.view(ErrorKindToast, genericFailureMessage)
			err = nil
		}
		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
	}()

	return fn(ctx), nil
}

func (o *Orchestrator) enter(state State) {
	o.mu.Lock()
	o.state = state
	o.history = append(o.history, state)
	o.mu.Unlock()

	o.metrics.ObserveTransition(string(state))
	slog.Debug("Login flow state", "flowID", o.id, "state", state)
}

func (o *Orchestrator) view(kind ErrorKind, message string) View {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := View{
		State:     o.state,
		Error:     message,
		ErrorKind: kind,
		Redirect:  o.redirect,
		SignedOut: o.signedOut,
	}
	if message == "" {
		v.ErrorKind = ""
	}
	o.redirect = ""

	switch o.state {
	case StatePinSetup:
		v.SetupStep = o.setupStep
	case StatePinVerify:
		v.Remaining = o.remaining
	}
	return v
}

func (o *Orchestrator) flowContext(req Request) *FlowContext {
	return &FlowContext{
		Request: req,
		Client:  o.client,
		Markers: o.markers,
		Config:  o.config,
		Enter:   o.enter,
	}
}

func (o *Orchestrator) logFlowError(op string, flowErr *Error) {
	if flowErr.Err != nil {
		slog.Debug("Login flow step failed", "flowID", o.id, "operation", op, "error", flowErr.Err)
	}
}

func (o *Orchestrator) currentAccount() account.Account {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.account
}

func (o *Orchestrator) backToEntry() {
	o.mu.Lock()
	o.setupStep = SetupEntry
	o.pendingPin = ""
	o.mu.Unlock()
}

// reset forgets the authenticated account.
func (o *Orchestrator) reset() {
	o.mu.Lock()
	o.account = account.Account{}
	o.pendingPin = ""
	o.setupStep = ""
	o.mu.Unlock()
}

func inState(states ...State) func(State) bool {
	return func(s State) bool {
		for _, allowed := range states {
			if s == allowed {
				return true
			}
		}
		return false
	}
}

func inSetupStep(o *Orchestrator, step SetupStep) func(State) bool {
	return func(s State) bool {
		// called with o.mu held
		return s == StatePinSetup && o.setupStep == step
	}
}

func messageOf(err error) string {
	var e *hriserrors.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
