package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"
	"github.com/tendant/simple-hris/pkg/client"
	"github.com/tendant/simple-hris/pkg/device"
	hriserrors "github.com/tendant/simple-hris/pkg/errors"
	"github.com/tendant/simple-hris/pkg/permission"
)

// DeviceHandler handles HTTP requests for device management
type DeviceHandler struct {
	deviceService *device.DeviceService
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceService *device.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
	}
}

// RegisterDeviceRequest represents the request body for registering a device.
// An empty fingerprint is derived from the request headers.
type RegisterDeviceRequest struct {
	Fingerprint string `json:"fingerprint"`
	DisplayName string `json:"display_name"`
}

type RenameDeviceRequest struct {
	DisplayName string `json:"display_name"`
}

type BlockDeviceRequest struct {
	Reason string `json:"reason"`
}

// DeviceResponse is the API view of a registered device
type DeviceResponse struct {
	Fingerprint string     `json:"fingerprint"`
	DisplayName string     `json:"display_name"`
	Blocked     bool       `json:"blocked"`
	BlockReason string     `json:"block_reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	BlockedAt   *time.Time `json:"blocked_at,omitempty"`
	Current     bool       `json:"current"`
}

type DeviceEnvelope struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Device  DeviceResponse `json:"device"`
}

type ListDevicesResponse struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Devices []DeviceResponse `json:"devices"`
}

type DeviceStatusResponse struct {
	Status      string `json:"status"`
	Fingerprint string `json:"fingerprint"`
	Blocked     bool   `json:"blocked"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// ListDevices lists the devices registered to the authenticated account
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.GetAuthUser(r.Context())
	if !ok {
		renderErrorResponse(w, r, http.StatusUnauthorized, "Authentication required", "")
		return
	}

	devices, err := h.deviceService.ListDevices(r.Context(), authUser.AccountID)
	if err != nil {
		slog.Error("Failed to get devices", "accountID", authUser.AccountID, "error", err)
		renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to get devices", "")
		return
	}

	current := device.GetRequestFingerprint(r)
	response := ListDevicesResponse{
		Status:  "success",
		Message: "Devices retrieved successfully",
		Devices: make([]DeviceResponse, 0, len(devices)),
	}
	for _, d := range devices {
		response.Devices = append(response.Devices, toResponse(d, current))
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// RegisterDevice binds the current device to the authenticated account
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.GetAuthUser(r.Context())
	if !ok {
		renderErrorResponse(w, r, http.StatusUnauthorized, "Authentication required", "")
		return
	}

	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.Fingerprint == "" {
		req.Fingerprint = device.GetRequestFingerprint(r)
	}

	registered, err := h.deviceService.RegisterDevice(r.Context(), authUser.AccountID, req.Fingerprint, req.DisplayName, r.UserAgent())
	if err != nil {
		slog.Error("Failed to register device", "accountID", authUser.AccountID, "error", err)
		renderDeviceError(w, r, "Failed to register device", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, DeviceEnvelope{
		Status:  "success",
		Message: "Device registered successfully",
		Device:  toResponse(registered, req.Fingerprint),
	})
}

// RenameDevice changes the display name of one of the caller's devices
func (h *DeviceHandler) RenameDevice(w http.ResponseWriter, r *http.Request) {
	authUser, ok := client.GetAuthUser(r.Context())
	if !ok {
		renderErrorResponse(w, r, http.StatusUnauthorized, "Authentication required", "")
		return
	}

	var req RenameDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	fingerprint := chi.URLParam(r, "fingerprint")
	renamed, err := h.deviceService.RenameDevice(r.Context(), authUser.AccountID, fingerprint, req.DisplayName)
	if err != nil {
		slog.Error("Failed to rename device", "accountID", authUser.AccountID, "fingerprint", fingerprint, "error", err)
		renderDeviceError(w, r, "Failed to rename device", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, DeviceEnvelope{
		Status:  "success",
		Message: "Device renamed successfully",
		Device:  toResponse(renamed, device.GetRequestFingerprint(r)),
	})
}

// BlockDevice blocks a fingerprint. Admin only.
func (h *DeviceHandler) BlockDevice(w http.ResponseWriter, r *http.Request) {
	var req BlockDeviceRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "blocked by administrator"
	}

	fingerprint := chi.URLParam(r, "fingerprint")
	blocked, err := h.deviceService.BlockDevice(r.Context(), fingerprint, req.Reason)
	if err != nil {
		slog.Error("Failed to block device", "fingerprint", fingerprint, "error", err)
		renderDeviceError(w, r, "Failed to block device", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, DeviceEnvelope{
		Status:  "success",
		Message: "Device blocked",
		Device:  toResponse(blocked, ""),
	})
}

// UnblockDevice lifts a block. Admin only.
func (h *DeviceHandler) UnblockDevice(w http.ResponseWriter, r *http.Request) {
	fingerprint := chi.URLParam(r, "fingerprint")
	unblocked, err := h.deviceService.UnblockDevice(r.Context(), fingerprint)
	if err != nil {
		slog.Error("Failed to unblock device", "fingerprint", fingerprint, "error", err)
		renderDeviceError(w, r, "Failed to unblock device", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, DeviceEnvelope{
		Status:  "success",
		Message: "Device unblocked",
		Device:  toResponse(unblocked, ""),
	})
}

// GetDeviceStatus reports whether a fingerprint is blocked
func (h *DeviceHandler) GetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	fingerprint := chi.URLParam(r, "fingerprint")
	if fingerprint == "" {
		renderErrorResponse(w, r, http.StatusBadRequest, "Missing required parameter", "fingerprint is required")
		return
	}

	blocked, err := h.deviceService.IsBlocked(r.Context(), fingerprint)
	if err != nil {
		slog.Error("Failed to check device status", "fingerprint", fingerprint, "error", err)
		renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to check device status", "")
		return
	}

	status := "active"
	if blocked {
		status = "blocked"
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, DeviceStatusResponse{Status: status, Fingerprint: fingerprint, Blocked: blocked})
}

// Handler returns a http.Handler for the device API. Routes expect
// client.AuthUserMiddleware to have run.
func Handler(h *DeviceHandler, checker permission.Checker) http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(client.RequireAuth)
		r.Get("/", h.ListDevices)
		r.Post("/register", h.RegisterDevice)
		r.Put("/{fingerprint}/name", h.RenameDevice)
		r.Get("/status/{fingerprint}", h.GetDeviceStatus)
	})

	r.Group(func(r chi.Router) {
		r.Use(permission.Require(checker, permission.DevicesBlock))
		r.Post("/{fingerprint}/block", h.BlockDevice)
		r.Post("/{fingerprint}/unblock", h.UnblockDevice)
	})

	return r
}

func toResponse(d device.RegisteredDevice, current string) DeviceResponse {
	var resp DeviceResponse
	if err := copier.Copy(&resp, &d); err != nil {
		slog.Error("Failed to map device", "fingerprint", d.Fingerprint, "error", err)
	}
	resp.Current = current != "" && current == d.Fingerprint
	return resp
}

func renderDeviceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := hriserrors.StatusOf(err)
	detail := ""
	if status < http.StatusInternalServerError {
		detail = err.Error()
	}
	renderErrorResponse(w, r, status, message, detail)
}

// renderErrorResponse renders an error response with the given status code and message
func renderErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message, errorDetail string) {
	response := ErrorResponse{
		Status:  "error",
		Message: message,
	}

	if errorDetail != "" {
		response.Error = errorDetail
	}

	render.Status(r, statusCode)
	render.JSON(w, r, response)
}
