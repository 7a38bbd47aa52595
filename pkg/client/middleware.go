package client

import (
	"log/slog"
	"net/http"
)

// RequireAuth returns 401 Unauthorized unless AuthUserMiddleware placed an
// AuthUser in the request context.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetAuthUser(r.Context()); !ok {
			slog.Debug("Unauthenticated request to protected resource", "path", r.URL.Path)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
