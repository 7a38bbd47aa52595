package permission

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-hris/pkg/client"
)

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Require returns a middleware that lets the request through only when the
// authenticated account holds p. Must be used after client.AuthUserMiddleware.
func Require(checker Checker, p Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authUser, ok := client.GetAuthUser(r.Context())
			if !ok {
				deny(w, r, http.StatusUnauthorized, "Authentication required", "")
				return
			}

			allowed, err := checker.HasPermission(r.Context(), authUser.AccountID, p)
			if err != nil {
				slog.Error("Permission check failed", "accountID", authUser.AccountID, "permission", p, "error", err)
				deny(w, r, http.StatusInternalServerError, "Permission check failed", "")
				return
			}
			if !allowed {
				slog.Warn("Permission denied", "accountID", authUser.AccountID, "permission", p)
				deny(w, r, http.StatusForbidden, "Permission denied", string(p)+" required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, status int, message, detail string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Status: "error", Message: message, Error: detail})
}
