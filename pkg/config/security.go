package config

import (
	"fmt"
	"time"
)

// SecurityConfig holds the device-binding and PIN parameters.
type SecurityConfig struct {
	// PinLength is the number of digits of a PIN.
	PinLength int `env:"PIN_LENGTH" env-default:"6"`

	// MaxPinAttempts is the number of wrong PINs after which the device is blocked.
	MaxPinAttempts int `env:"PIN_MAX_ATTEMPTS" env-default:"3"`

	// BlockGracePeriod is the delay between blocking a device and the forced sign-out.
	BlockGracePeriod time.Duration `env:"PIN_BLOCK_GRACE" env-default:"2s"`

	// DeviceMarkerTTL is the lifetime of the device_id marker.
	DeviceMarkerTTL time.Duration `env:"DEVICE_MARKER_TTL" env-default:"8760h"`

	// PinVerifiedTTL is the lifetime of the pin_verified marker and of the
	// server-side verification record.
	PinVerifiedTTL time.Duration `env:"PIN_VERIFIED_TTL" env-default:"24h"`

	// FlowIdleTimeout is how long an unfinished login flow is kept.
	FlowIdleTimeout time.Duration `env:"LOGIN_FLOW_IDLE_TIMEOUT" env-default:"15m"`
}

// DefaultSecurityConfig returns the values used when nothing is configured.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		PinLength:        6,
		MaxPinAttempts:   3,
		BlockGracePeriod: 2 * time.Second,
		DeviceMarkerTTL:  365 * 24 * time.Hour,
		PinVerifiedTTL:   24 * time.Hour,
		FlowIdleTimeout:  15 * time.Minute,
	}
}

// Validate rejects values the login flow cannot work with.
func (s SecurityConfig) Validate() error {
	if s.PinLength != 6 {
		return fmt.Errorf("PIN_LENGTH must be 6, got %d", s.PinLength)
	}
	if s.MaxPinAttempts < 1 {
		return fmt.Errorf("PIN_MAX_ATTEMPTS must be positive, got %d", s.MaxPinAttempts)
	}
	if s.BlockGracePeriod < 0 {
		return fmt.Errorf("PIN_BLOCK_GRACE must not be negative")
	}
	if s.DeviceMarkerTTL <= 0 || s.PinVerifiedTTL <= 0 {
		return fmt.Errorf("marker lifetimes must be positive")
	}
	return nil
}
