package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-hris/pkg/client"
	"github.com/tendant/simple-hris/pkg/device"
	hriserrors "github.com/tendant/simple-hris/pkg/errors"
	"github.com/tendant/simple-hris/pkg/lockout"
	"github.com/tendant/simple-hris/pkg/permission"
	"github.com/tendant/simple-hris/pkg/pin"
)

// LockoutBlockReason is recorded on devices blocked by repeated wrong PINs.
const LockoutBlockReason = "too many incorrect PIN attempts"

// DeviceGate is the part of the device registry the verify endpoint needs.
type DeviceGate interface {
	IsBlocked(ctx context.Context, fingerprint string) (bool, error)
	BlockDevice(ctx context.Context, fingerprint, reason string) (device.RegisteredDevice, error)
}

// VerificationRecorder keeps the server-side record of a successful verification.
type VerificationRecorder interface {
	Record(ctx context.Context, accountID uuid.UUID, fingerprint string) error
}

// PinHandler handles HTTP requests for PIN management
type PinHandler struct {
	pinService    *pin.PinService
	devices       DeviceGate
	attempts      lockout.AttemptStore
	lockoutOpts   []lockout.Option
	verifications VerificationRecorder
}

type Option func(*PinHandler)

// WithLockout counts wrong PINs of the verify endpoint in store.
func WithLockout(store lockout.AttemptStore, opts ...lockout.Option) Option {
	return func(h *PinHandler) {
		h.attempts = store
		h.lockoutOpts = opts
	}
}

func WithVerificationRecorder(recorder VerificationRecorder) Option {
	return func(h *PinHandler) {
		h.verifications = recorder
	}
}

// NewPinHandler creates a new PIN handler. Without WithLockout attempts are
// counted in process memory.
func NewPinHandler(pinService *pin.PinService, devices DeviceGate, opts ...Option) *PinHandler {
	h := &PinHandler{
		pinService: pinService,
		devices:    devices,
		attempts:   lockout.NewMemoryStore(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type CreatePinRequest struct {
	Pin     string `json:"pin"`
	Confirm string `json:"confirm"`
}

type VerifyPinRequest struct {
	Pin string `json:"pin"`
}

type PinStatusResponse struct {
	Status string `json:"status"`
	HasPin bool   `json:"has_pin"`
}

type VerifyPinResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Verified  bool   `json:"verified"`
	Remaining int    `json:"remaining_attempts"`
	Blocked   bool   `json:"blocked"`
}

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// GetStatus reports whether the authenticated account has a PIN
func (h *PinHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.GetAuthUser(r.Context())
	if !ok {
		renderErrorResponse(w, r, http.StatusUnauthorized, "Authentication required", "")
		return
	}

	hasPin, err := h.pinService.HasPin(r.Context(), authUser.AccountID)
	if err != nil {
		slog.Error("Failed to check PIN", "accountID", authUser.AccountID, "error", err)
		renderPinError(w, r, "Failed to check PIN", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, PinStatusResponse{Status: "success", HasPin: hasPin})
}

// CreatePin sets the authenticated account's PIN
func (h *PinHandler) CreatePin(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.GetAuthUser(r.Context())
	if !ok {
		renderErrorResponse(w, r, http.StatusUnauthorized, "Authentication required", "")
		return
	}

	var req CreatePinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if !pin.Confirm(req.Pin, req.Confirm) {
		renderPinError(w, r, "Failed to create PIN", pin.ErrPinMismatch)
		return
	}

	if err := h.pinService.CreatePin(r.Context(), authUser.AccountID, req.Pin); err != nil {
		slog.Warn("Failed to create PIN", "accountID", authUser.AccountID, "error", err)
		renderPinError(w, r, "Failed to create PIN", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SuccessResponse{Status: "success", Message: "PIN created"})
}

// VerifyPin checks a PIN for the current device. The third wrong PIN blocks
// the device.
func (h *PinHandler) VerifyPin(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.GetAuthUser(r.Context())
	if !ok {
		renderErrorResponse(w, r, http.StatusUnauthorized, "Authentication required", "")
		return
	}

	var req VerifyPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	ctx := r.Context()
	fingerprint := authUser.Fingerprint
	if fingerprint == "" {
		fingerprint = device.GetRequestFingerprint(r)
	}
	blocked, err := h.devices.IsBlocked(ctx, fingerprint)
	if err != nil {
		slog.Error("Failed to check device status", "fingerprint", fingerprint, "error", err)
		renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to verify PIN", "")
		return
	}
	if blocked {
		renderPinError(w, r, "Device is blocked", device.ErrDeviceBlocked)
		return
	}

	controller := lockout.NewController(h.attempts, attemptKey(authUser), h.lockoutOpts...)
	exhausted, err := controller.Exhausted(ctx)
	if err != nil {
		slog.Error("Failed to read PIN attempts", "accountID", authUser.AccountID, "error", err)
		renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to verify PIN", "")
		return
	}
	if exhausted {
		// the block was not written when the threshold was reached
		if _, err := h.devices.BlockDevice(ctx, fingerprint, LockoutBlockReason); err != nil {
			slog.Error("Failed to block device after PIN lockout", "fingerprint", fingerprint, "error", err)
		}
		renderLockedOut(w, r)
		return
	}

	verified, err := h.pinService.VerifyPin(ctx, authUser.AccountID, req.Pin)
	if err != nil {
		slog.Error("Failed to verify PIN", "accountID", authUser.AccountID, "error", err)
		renderPinError(w, r, "Failed to verify PIN", err)
		return
	}

	if verified {
		if err := controller.Reset(ctx); err != nil {
			slog.Warn("Failed to reset PIN attempts", "accountID", authUser.AccountID, "error", err)
		}
		if h.verifications != nil {
			if err := h.verifications.Record(ctx, authUser.AccountID, fingerprint); err != nil {
				slog.Error("Failed to record PIN verification", "accountID", authUser.AccountID, "error", err)
				renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to verify PIN", "")
				return
			}
		}
		render.Status(r, http.StatusOK)
		render.JSON(w, r, VerifyPinResponse{
			Status:    "success",
			Message:   "PIN verified",
			Verified:  true,
			Remaining: controller.Threshold(),
		})
		return
	}

	outcome, err := controller.RecordFailure(ctx)
	if err != nil {
		slog.Error("Failed to record PIN failure", "accountID", authUser.AccountID, "error", err)
		renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to verify PIN", "")
		return
	}

	if outcome.Remaining == 0 {
		if outcome.Blocked {
			if _, err := h.devices.BlockDevice(ctx, fingerprint, LockoutBlockReason); err != nil {
				slog.Error("Failed to block device after PIN lockout", "fingerprint", fingerprint, "error", err)
				renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to verify PIN", "")
				return
			}
			slog.Warn("Device blocked after PIN lockout", "accountID", authUser.AccountID, "fingerprint", fingerprint)
		}
		renderLockedOut(w, r)
		return
	}

	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, VerifyPinResponse{
		Status:    "error",
		Message:   "Incorrect PIN",
		Remaining: outcome.Remaining,
	})
}

// ResetPin removes another account's PIN. Admin only.
func (h *PinHandler) ResetPin(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "account_id"))
	if err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid account id", err.Error())
		return
	}

	if err := h.pinService.ResetPin(r.Context(), accountID); err != nil {
		slog.Error("Failed to reset PIN", "accountID", accountID, "error", err)
		renderPinError(w, r, "Failed to reset PIN", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Status: "success", Message: "PIN reset"})
}

// Handler returns a http.Handler for the PIN API
func Handler(h *PinHandler, checker permission.Checker) http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(client.RequireAuth)
		r.Get("/status", h.GetStatus)
		r.Post("/", h.CreatePin)
		r.Post("/verify", h.VerifyPin)
	})

	r.Group(func(r chi.Router) {
		r.Use(permission.Require(checker, permission.PinsReset))
		r.Delete("/{account_id}", h.ResetPin)
	})

	return r
}

// attemptKey scopes wrong PINs to the caller's session, falling back to the
// account. Nothing the client sends per request is part of the key.
func attemptKey(authUser *client.AuthUser) string {
	if authUser.TokenId != "" {
		return "pin:session:" + authUser.TokenId
	}
	return "pin:account:" + authUser.AccountID.String()
}

func renderLockedOut(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusForbidden)
	render.JSON(w, r, VerifyPinResponse{
		Status:  "error",
		Message: "Too many incorrect attempts. This device has been blocked.",
		Blocked: true,
	})
}

func renderPinError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := hriserrors.StatusOf(err)
	detail := ""
	if status < http.StatusInternalServerError {
		detail = err.Error()
	}
	renderErrorResponse(w, r, status, message, detail)
}

// renderErrorResponse renders an error response with the given status code and message
func renderErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message, errorDetail string) {
	render.Status(r, statusCode)
	render.JSON(w, r, ErrorResponse{
		Status:  "error",
		Message: message,
		Error:   errorDetail,
	})
}
