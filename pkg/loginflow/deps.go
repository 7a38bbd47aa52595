package loginflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-hris/pkg/account"
	"github.com/tendant/simple-hris/pkg/device"
	"github.com/tendant/simple-hris/pkg/lockout"
	"github.com/tendant/simple-hris/pkg/session"
	"github.com/tendant/simple-hris/pkg/trust"
)

// Authenticator checks credentials and manages the first-login password change.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (account.Account, error)
	IsPasswordChangeRequired(ctx context.Context, accountID uuid.UUID) (bool, error)
	ChangePassword(ctx context.Context, accountID uuid.UUID, newPassword string) error
}

// DeviceRegistry binds fingerprints to accounts and blocks them.
type DeviceRegistry interface {
	RegisterDevice(ctx context.Context, accountID uuid.UUID, fingerprint, displayName, userAgent string) (device.RegisteredDevice, error)
	BlockDevice(ctx context.Context, fingerprint, reason string) (device.RegisteredDevice, error)
	IsBlocked(ctx context.Context, fingerprint string) (bool, error)
}

// PinCredentials stores and checks PINs. VerifyPin counts nothing; lockout
// is done by the orchestrator.
type PinCredentials interface {
	HasPin(ctx context.Context, accountID uuid.UUID) (bool, error)
	CreatePin(ctx context.Context, accountID uuid.UUID, pin string) error
	VerifyPin(ctx context.Context, accountID uuid.UUID, pin string) (bool, error)
}

// SessionIssuer issues the session token at the end of the flow and signs
// it out on lockout.
type SessionIssuer interface {
	Issue(subject session.Subject) (session.Token, error)
	SignOut(ctx context.Context, tokenID string, expiresAt time.Time) error
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Dependencies are the backends a flow talks to.
type Dependencies struct {
	Accounts      Authenticator
	Devices       DeviceRegistry
	Pins          PinCredentials
	Sessions      SessionIssuer
	Verifications trust.VerificationCache
	// Attempts holds the wrong-PIN counters. Defaults to process memory.
	Attempts lockout.AttemptStore
}

// Config holds the flow parameters.
type Config struct {
	ProtectedPath   string
	LoginPath       string
	MaxPinAttempts  int
	BlockGrace      time.Duration
	DeviceMarkerTTL time.Duration
	PinVerifiedTTL  time.Duration
}

// DefaultConfig returns the standard flow parameters.
func DefaultConfig() Config {
	return Config{
		ProtectedPath:   "/dashboard",
		LoginPath:       "/login",
		MaxPinAttempts:  lockout.DefaultThreshold,
		BlockGrace:      2 * time.Second,
		DeviceMarkerTTL: trust.DefaultDeviceMarkerTTL,
		PinVerifiedTTL:  trust.DefaultPinVerifiedMarkerTTL,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ProtectedPath == "" {
		c.ProtectedPath = d.ProtectedPath
	}
	if c.LoginPath == "" {
		c.LoginPath = d.LoginPath
	}
	if c.MaxPinAttempts <= 0 {
		c.MaxPinAttempts = d.MaxPinAttempts
	}
	if c.BlockGrace < 0 {
		c.BlockGrace = d.BlockGrace
	}
	if c.DeviceMarkerTTL <= 0 {
		c.DeviceMarkerTTL = d.DeviceMarkerTTL
	}
	if c.PinVerifiedTTL <= 0 {
		c.PinVerifiedTTL = d.PinVerifiedTTL
	}
	return c
}

// Client identifies the browser a flow runs for.
type Client struct {
	Fingerprint string
	UserAgent   string
	IPAddress   string
	// SessionID and SessionExpiresAt describe a session the browser already
	// holds, which a lockout signs out along with the flow.
	SessionID        string
	SessionExpiresAt time.Time
}
