package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-hris/pkg/client"
	"github.com/tendant/simple-hris/pkg/trust"
)

const DefaultTTL = 8 * time.Hour

// Claims are the claims of a session token.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	jwt.RegisteredClaims
}

// Subject is who a session is issued to.
type Subject struct {
	AccountID   uuid.UUID
	Email       string
	Roles       []string
	Fingerprint string
}

// Token is an issued session token.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

type Config struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Manager issues and revokes session tokens
type Manager struct {
	config      Config
	revocations RevocationStore
	cookies     *trust.CookieWriter
	jwtAuth     *jwtauth.JWTAuth
	now         func() time.Time
}

type Option func(*Manager)

func WithCookieWriter(w *trust.CookieWriter) Option {
	return func(m *Manager) {
		m.cookies = w
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(config Config, revocations RevocationStore, opts ...Option) (*Manager, error) {
	if config.Secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if revocations == nil {
		revocations = NewMemoryRevocationStore()
	}

	m := &Manager{
		config:      config,
		revocations: revocations,
		cookies:     trust.NewCookieWriter(true, true),
		jwtAuth:     jwtauth.New("HS256", []byte(config.Secret), nil),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue signs a token for subject.
func (m *Manager) Issue(subject Subject) (Token, error) {
	if subject.AccountID == uuid.Nil {
		return Token{}, fmt.Errorf("account id is required")
	}

	now := m.now()
	claims := Claims{
		Email:       subject.Email,
		Roles:       subject.Roles,
		Fingerprint: subject.Fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Minute)),
			Issuer:    m.config.Issuer,
			Subject:   subject.AccountID.String(),
			ID:        uuid.New().String(),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.config.Secret))
	if err != nil {
		slog.Error("Failed to sign session token", "accountID", subject.AccountID, "error", err)
		return Token{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return Token{Value: signed, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Parse verifies a token string and returns its claims.
func (m *Manager) Parse(tokenString string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(m.config.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// SignOut revokes a token until it would have expired anyway.
func (m *Manager) SignOut(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return nil
	}
	ttl := expiresAt.Sub(m.now())
	if expiresAt.IsZero() || ttl > m.config.TTL {
		ttl = m.config.TTL
	}
	if ttl <= 0 {
		return nil
	}
	if err := m.revocations.Revoke(ctx, tokenID, ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	slog.Info("Session signed out", "tokenId", tokenID)
	return nil
}

// SetCookie delivers token in the access_token cookie.
func (m *Manager) SetCookie(w http.ResponseWriter, token Token) {
	m.cookies.SetCookie(w, client.ACCESS_TOKEN_NAME, token.Value, token.ExpiresAt)
}

func (m *Manager) ClearCookie(w http.ResponseWriter) {
	m.cookies.ClearCookie(w, client.ACCESS_TOKEN_NAME)
}

// JWTAuth returns the verifier for tokens issued by m.
func (m *Manager) JWTAuth() *jwtauth.JWTAuth {
	return m.jwtAuth
}

// Authenticator verifies the session token and places the AuthUser in the
// request context. Requests without a live token pass through
// unauthenticated; client.RequireAuth rejects them.
func (m *Manager) Authenticator(next http.Handler) http.Handler {
	return client.Verifier(m.jwtAuth)(client.AuthUserMiddleware(m.revocations)(next))
}
