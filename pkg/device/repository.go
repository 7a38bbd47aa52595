package device

import (
	"context"
	"time"

	"github.com/google/uuid"
	hriserrors "github.com/tendant/simple-hris/pkg/errors"
)

var (
	ErrDeviceNotFound = hriserrors.New(hriserrors.ErrCodeNotFound, "device not found")
	ErrDeviceExists   = hriserrors.New(hriserrors.ErrCodeAlreadyExists, "device already exists")
)

// RegisteredDevice binds a fingerprint to an account. A blocked placeholder
// for a fingerprint nobody registered has a nil AccountID.
type RegisteredDevice struct {
	Fingerprint string     `json:"fingerprint"`
	AccountID   uuid.UUID  `json:"account_id"`
	DisplayName string     `json:"display_name"`
	UserAgent   string     `json:"user_agent"`
	Blocked     bool       `json:"blocked"`
	BlockReason string     `json:"block_reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	BlockedAt   *time.Time `json:"blocked_at,omitempty"`
}

// IsOwnedBy reports whether the device is bound to accountID.
func (d RegisteredDevice) IsOwnedBy(accountID uuid.UUID) bool {
	return d.AccountID != uuid.Nil && d.AccountID == accountID
}

// DeviceRefresh carries the descriptive fields of a device owned by
// AccountID. Empty strings and a zero LastSeenAt keep the stored value.
type DeviceRefresh struct {
	Fingerprint string
	AccountID   uuid.UUID
	DisplayName string
	UserAgent   string
	LastSeenAt  time.Time
}

// BlockState is the block columns of a device.
type BlockState struct {
	Blocked   bool
	Reason    string
	BlockedAt *time.Time
}

// DeviceRepository defines the interface for device storage operations
type DeviceRepository interface {
	// CreateDevice fails with ErrDeviceExists when the fingerprint is taken.
	CreateDevice(ctx context.Context, device RegisteredDevice) (RegisteredDevice, error)
	// RefreshDevice applies refresh to an unblocked device owned by
	// refresh.AccountID in one write and never touches the block columns.
	// It fails with ErrDeviceNotFound, ErrDeviceBlocked or ErrDeviceOwnedByOther.
	RefreshDevice(ctx context.Context, refresh DeviceRefresh) (RegisteredDevice, error)
	// SetBlockState writes only the block columns; ErrDeviceNotFound when absent.
	SetBlockState(ctx context.Context, fingerprint string, state BlockState) (RegisteredDevice, error)
	GetDevice(ctx context.Context, fingerprint string) (RegisteredDevice, error)
	FindDevicesByAccount(ctx context.Context, accountID uuid.UUID) ([]RegisteredDevice, error)
	FindDevices(ctx context.Context) ([]RegisteredDevice, error)
}

// refusal explains why a stored device cannot take refresh.
func refusal(stored RegisteredDevice, refresh DeviceRefresh) error {
	if stored.Blocked {
		return ErrDeviceBlocked
	}
	if !stored.IsOwnedBy(refresh.AccountID) {
		return ErrDeviceOwnedByOther
	}
	return nil
}

func (d *RegisteredDevice) apply(refresh DeviceRefresh) {
	if refresh.DisplayName != "" {
		d.DisplayName = refresh.DisplayName
	}
	if refresh.UserAgent != "" {
		d.UserAgent = refresh.UserAgent
	}
	if !refresh.LastSeenAt.IsZero() {
		d.LastSeenAt = refresh.LastSeenAt
	}
}

func (d *RegisteredDevice) applyBlock(state BlockState) {
	d.Blocked = state.Blocked
	d.BlockReason = state.Reason
	d.BlockedAt = state.BlockedAt
}
