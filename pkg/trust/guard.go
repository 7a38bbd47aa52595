package trust

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-hris/pkg/client"
	"github.com/tendant/simple-hris/pkg/device"
)

// BlockChecker reports whether a device fingerprint is blocked.
type BlockChecker interface {
	IsBlocked(ctx context.Context, fingerprint string) (bool, error)
}

// GuardResponse is rendered when a request is refused.
type GuardResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Reverify bool   `json:"reverify"`
	Blocked  bool   `json:"blocked"`
}

// Guard admits a request to the protected area only when the caller's device
// is not blocked and its PIN verification is on record. Must be used after
// client.AuthUserMiddleware.
//
// The fingerprint comes from the session token when it carries one. Missing
// markers make the caller reverify, but present markers never admit a
// request on their own.
func Guard(devices BlockChecker, verifications VerificationCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authUser, ok := client.GetAuthUser(r.Context())
			if !ok {
				refuse(w, r, http.StatusUnauthorized, "Authentication required", false, false)
				return
			}

			fingerprint := authUser.Fingerprint
			if fingerprint == "" {
				fingerprint = device.GetRequestFingerprint(r)
			}

			ctx := r.Context()
			blocked, err := devices.IsBlocked(ctx, fingerprint)
			if err != nil {
				slog.Error("Failed to check device status", "fingerprint", fingerprint, "error", err)
				refuse(w, r, http.StatusServiceUnavailable, "Unable to verify device", false, false)
				return
			}
			if blocked {
				slog.Warn("Blocked device refused", "accountID", authUser.AccountID, "fingerprint", fingerprint)
				refuse(w, r, http.StatusForbidden, "This device has been blocked", false, true)
				return
			}

			markers := MarkersFromRequest(r)
			if _, ok := markers.Get(PinVerifiedMarker); !ok {
				refuse(w, r, http.StatusForbidden, "PIN verification required", true, false)
				return
			}
			if hint, ok := markers.Get(DeviceMarker); ok && hint != fingerprint {
				slog.Debug("Device marker does not match session fingerprint", "accountID", authUser.AccountID, "marker", hint, "fingerprint", fingerprint)
			}

			verified, err := verifications.IsVerified(ctx, authUser.AccountID, fingerprint)
			if err != nil {
				slog.Error("Failed to check PIN verification", "accountID", authUser.AccountID, "error", err)
				refuse(w, r, http.StatusServiceUnavailable, "Unable to verify device", false, false)
				return
			}
			if !verified {
				refuse(w, r, http.StatusForbidden, "PIN verification required", true, false)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func refuse(w http.ResponseWriter, r *http.Request, status int, message string, reverify, blocked bool) {
	render.Status(r, status)
	render.JSON(w, r, GuardResponse{
		Status:   "error",
		Message:  message,
		Reverify: reverify,
		Blocked:  blocked,
	})
}
