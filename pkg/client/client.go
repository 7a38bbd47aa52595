package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

// AuthUser is the authenticated principal extracted from a session token.
type AuthUser struct {
	AccountId   string   `json:"sub,omitempty"`
	TokenId     string   `json:"jti,omitempty"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	// AccountID is AccountId parsed as a UUID
	AccountID uuid.UUID `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

func (i AuthUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("account", i.AccountId),
		slog.Any("roles", i.Roles),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "hris context value " + k.name
}

const (
	ACCESS_TOKEN_NAME = "access_token"
)

var (
	AuthUserKey = &contextKey{"AuthUser"}
)

// RevocationChecker reports whether a token id was signed out.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

func LoadFromMap[T any](m map[string]interface{}, c *T) error {
	data, err := json.Marshal(m)
	if err == nil {
		err = json.Unmarshal(data, c)
	}
	return err
}

// WithAuthUser returns a copy of ctx carrying the user.
func WithAuthUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, AuthUserKey, user)
}

// GetAuthUser returns the authenticated user, if any.
func GetAuthUser(ctx context.Context) (*AuthUser, bool) {
	user, ok := ctx.Value(AuthUserKey).(*AuthUser)
	return user, ok && user != nil
}

// AuthUserMiddleware turns verified jwtauth claims into an AuthUser. Requests
// without a valid token pass through unauthenticated; RequireAuth rejects them.
func AuthUserMiddleware(revocations RevocationChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())
			if err != nil || token == nil {
				next.ServeHTTP(w, r)
				return
			}

			authUser := new(AuthUser)
			if err := LoadFromMap(claims, authUser); err != nil {
				slog.Error("failed to parse token claims", "error", err)
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			accountID, err := uuid.Parse(authUser.AccountId)
			if err != nil {
				slog.Warn("failed to parse account ID as UUID", "accountId", authUser.AccountId, "error", err)
				http.Error(w, "invalid subject in token", http.StatusUnauthorized)
				return
			}
			authUser.AccountID = accountID
			authUser.ExpiresAt = claimTime(claims["exp"])

			if revocations != nil && authUser.TokenId != "" {
				revoked, err := revocations.IsRevoked(r.Context(), authUser.TokenId)
				if err != nil {
					slog.Error("failed to check token revocation", "tokenId", authUser.TokenId, "error", err)
					http.Error(w, "session check failed", http.StatusServiceUnavailable)
					return
				}
				if revoked {
					slog.Debug("revoked token presented", "tokenId", authUser.TokenId)
					next.ServeHTTP(w, r)
					return
				}
			}

			slog.Debug("authenticated user", "user", authUser)
			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), authUser)))
		})
	}
}

func Verifier(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return jwtauth.Verify(ja, jwtauth.TokenFromHeader, TokenFromCookie)(next)
	}
}

func TokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(ACCESS_TOKEN_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// HasRole reports whether the user carries any of the roles.
func HasRole(user *AuthUser, roles ...string) bool {
	if user == nil {
		return false
	}
	for _, userRole := range user.Roles {
		for _, role := range roles {
			if userRole == role {
				return true
			}
		}
	}
	return false
}

func claimTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case float64:
		return time.Unix(int64(t), 0).UTC()
	case int64:
		return time.Unix(t, 0).UTC()
	case json.Number:
		n, err := t.Int64()
		if err == nil {
			return time.Unix(n, 0).UTC()
		}
	}
	return time.Time{}
}
