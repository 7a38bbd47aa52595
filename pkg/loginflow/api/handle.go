package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-hris/pkg/client"
	"github.com/tendant/simple-hris/pkg/device"
	hriserrors "github.com/tendant/simple-hris/pkg/errors"
	"github.com/tendant/simple-hris/pkg/loginflow"
	"github.com/tendant/simple-hris/pkg/session"
	"github.com/tendant/simple-hris/pkg/trust"
)

// FlowCookieName holds the id of the browser's login flow.
const FlowCookieName = "login_flow"

// SessionCookies delivers and revokes the session cookie.
type SessionCookies interface {
	SetCookie(w http.ResponseWriter, token session.Token)
	ClearCookie(w http.ResponseWriter)
	SignOut(ctx context.Context, tokenID string, expiresAt time.Time) error
}

// LoginFlowHandler exposes login flows over HTTP. The flow lives in the
// server; the browser keeps only its id in a cookie.
type LoginFlowHandler struct {
	service       *loginflow.Service
	registry      *loginflow.Registry
	sessions      SessionCookies
	cookies       *trust.CookieWriter
	verifications trust.VerificationCache
}

type Option func(*LoginFlowHandler)

// WithCookieWriter replaces the writer used for the flow and marker cookies.
func WithCookieWriter(w *trust.CookieWriter) Option {
	return func(h *LoginFlowHandler) {
		h.cookies = w
	}
}

// WithVerificationCache lets logout without a live flow revoke the PIN verification.
func WithVerificationCache(c trust.VerificationCache) Option {
	return func(h *LoginFlowHandler) {
		h.verifications = c
	}
}

func NewLoginFlowHandler(service *loginflow.Service, registry *loginflow.Registry, sessions SessionCookies, opts ...Option) *LoginFlowHandler {
	h := &LoginFlowHandler{
		service:  service,
		registry: registry,
		sessions: sessions,
		cookies:  trust.NewCookieWriter(true, true),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type PinRequest struct {
	Pin string `json:"pin"`
}

// FlowResponse is the flow view plus the usual status envelope.
type FlowResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	loginflow.View
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Login starts a new flow with the submitted credentials. A flow the
// browser already had is discarded.
func (h *LoginFlowHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode login request", "error", err)
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if c, err := r.Cookie(FlowCookieName); err == nil {
		h.registry.Remove(c.Value)
	}

	flow := h.service.NewFlow(clientFromRequest(r), trust.MarkersFromRequest(r))
	h.registry.Add(flow)
	h.cookies.SetCookie(w, FlowCookieName, flow.ID(), time.Time{})

	view, err := flow.SubmitCredentials(r.Context(), req.Email, req.Password)
	h.respond(w, r, flow, view, err)
}

func (h *LoginFlowHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	h.withFlow(w, r, func(flow *loginflow.Orchestrator) (loginflow.View, error) {
		return flow.ChangePassword(r.Context(), req.NewPassword)
	})
}

func (h *LoginFlowHandler) SubmitNewPin(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	h.withFlow(w, r, func(flow *loginflow.Orchestrator) (loginflow.View, error) {
		return flow.SubmitNewPin(r.Context(), req.Pin)
	})
}

func (h *LoginFlowHandler) ConfirmPin(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	h.withFlow(w, r, func(flow *loginflow.Orchestrator) (loginflow.View, error) {
		return flow.SubmitPinConfirmation(r.Context(), req.Pin)
	})
}

func (h *LoginFlowHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.withFlow(w, r, func(flow *loginflow.Orchestrator) (loginflow.View, error) {
		return flow.Back()
	})
}

func (h *LoginFlowHandler) VerifyPin(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	h.withFlow(w, r, func(flow *loginflow.Orchestrator) (loginflow.View, error) {
		return flow.SubmitPin(r.Context(), req.Pin)
	})
}

// GetState reports the flow state. Clients poll it while blocked to learn
// of the forced sign-out.
func (h *LoginFlowHandler) GetState(w http.ResponseWriter, r *http.Request) {
	h.withFlow(w, r, func(flow *loginflow.Orchestrator) (loginflow.View, error) {
		return flow.Snapshot(), nil
	})
}

// Logout ends the flow if there is one, and otherwise signs out the
// session the request carries.
func (h *LoginFlowHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if flow, ok := h.lookup(r); ok {
		view, err := flow.Logout(r.Context())
		h.respond(w, r, flow, view, err)
		return
	}

	if authUser, ok := client.GetAuthUser(r.Context()); ok {
		if err := h.sessions.SignOut(r.Context(), authUser.TokenId, authUser.ExpiresAt); err != nil {
			slog.Error("Failed to sign out", "accountID", authUser.AccountID, "error", err)
			renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to sign out", "")
			return
		}
		if h.verifications != nil {
			fingerprint := authUser.Fingerprint
			if fingerprint == "" {
				fingerprint = device.GetRequestFingerprint(r)
			}
			if err := h.verifications.Revoke(r.Context(), authUser.AccountID, fingerprint); err != nil {
				slog.Warn("Failed to revoke PIN verification", "accountID", authUser.AccountID, "error", err)
			}
		}
	}

	h.clearCookies(w)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, FlowResponse{
		Status: "success",
		View: loginflow.View{
			State:     loginflow.StateIdle,
			Redirect:  h.service.Config().LoginPath,
			SignedOut: true,
		},
	})
}

// Handler returns a http.Handler for the login flow API. It expects the
// session middleware to have run so logout can find the current session.
func Handler(h *LoginFlowHandler) http.Handler {
	r := chi.NewRouter()

	r.Post("/login", h.Login)
	r.Post("/password", h.ChangePassword)
	r.Post("/pin/setup", h.SubmitNewPin)
	r.Post("/pin/confirm", h.ConfirmPin)
	r.Post("/pin/back", h.Back)
	r.Post("/pin/verify", h.VerifyPin)
	r.Get("/state", h.GetState)
	r.Post("/logout", h.Logout)

	return r
}

func (h *LoginFlowHandler) withFlow(w http.ResponseWriter, r *http.Request, fn func(*loginflow.Orchestrator) (loginflow.View, error)) {
	flow, ok := h.lookup(r)
	if !ok {
		renderErrorResponse(w, r, http.StatusNotFound, "Login flow not found", "start again from the login page")
		return
	}
	view, err := fn(flow)
	h.respond(w, r, flow, view, err)
}

func (h *LoginFlowHandler) lookup(r *http.Request) (*loginflow.Orchestrator, bool) {
	c, err := r.Cookie(FlowCookieName)
	if err != nil || c.Value == "" {
		return nil, false
	}
	return h.registry.Get(c.Value)
}

// respond delivers the marker and session cookies produced by the call and
// renders the view.
func (h *LoginFlowHandler) respond(w http.ResponseWriter, r *http.Request, flow *loginflow.Orchestrator, view loginflow.View, err error) {
	if err != nil {
		status := hriserrors.StatusOf(err)
		if !errors.Is(err, loginflow.ErrBusy) && !errors.Is(err, loginflow.ErrWrongState) {
			slog.Error("Login flow call failed", "flowID", flow.ID(), "error", err)
		}
		render.Status(r, status)
		render.JSON(w, r, FlowResponse{Status: "error", Message: err.Error(), View: view})
		return
	}

	h.cookies.Write(w, flow.Markers().Flush())
	if token, ok := flow.TakeSession(); ok {
		h.sessions.SetCookie(w, token)
	}
	if view.SignedOut {
		h.registry.Remove(flow.ID())
		h.clearCookies(w)
	}

	status := http.StatusOK
	if view.ErrorKind == loginflow.ErrorKindBlocking {
		status = http.StatusForbidden
	}
	render.Status(r, status)
	render.JSON(w, r, FlowResponse{Status: "success", View: view})
}

func (h *LoginFlowHandler) clearCookies(w http.ResponseWriter) {
	h.sessions.ClearCookie(w)
	h.cookies.ClearCookie(w, trust.PinVerifiedMarker)
	h.cookies.ClearCookie(w, FlowCookieName)
}

func clientFromRequest(r *http.Request) loginflow.Client {
	c := loginflow.Client{
		Fingerprint: device.GetRequestFingerprint(r),
		UserAgent:   r.UserAgent(),
		IPAddress:   r.RemoteAddr,
	}
	if authUser, ok := client.GetAuthUser(r.Context()); ok {
		c.SessionID = authUser.TokenId
		c.SessionExpiresAt = authUser.ExpiresAt
	}
	return c
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
