package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	hriserrors "github.com/tendant/simple-hris/pkg/errors"
	"github.com/tendant/simple-hris/pkg/metrics"
	"github.com/tendant/simple-hris/pkg/notice"
)

const MaxDisplayNameLength = 100

var (
	ErrInvalidDevice      = hriserrors.New(hriserrors.ErrCodeInvalidInput, "invalid device registration")
	ErrDeviceOwnedByOther = hriserrors.New(hriserrors.ErrCodeDeviceConflict, "device is registered to another account")
	ErrDeviceBlocked      = hriserrors.New(hriserrors.ErrCodeDeviceBlocked, "device is blocked")
)

// OwnerDirectory resolves the address block notices are sent to.
type OwnerDirectory interface {
	GetEmail(ctx context.Context, accountID uuid.UUID) (string, error)
}

// DeviceService registers, renames and blocks devices
type DeviceService struct {
	repo     DeviceRepository
	notifier notice.DeviceBlockedNotifier
	owners   OwnerDirectory
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*DeviceService)

// WithNotifier sends a notice to the owner whenever a device is blocked.
func WithNotifier(notifier notice.DeviceBlockedNotifier, owners OwnerDirectory) Option {
	return func(s *DeviceService) {
		s.notifier = notifier
		s.owners = owners
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *DeviceService) {
		s.metrics = m
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *DeviceService) {
		s.now = now
	}
}

// NewDeviceService creates a new device service with the given repository
func NewDeviceService(repo DeviceRepository, opts ...Option) *DeviceService {
	s := &DeviceService{
		repo:     repo,
		notifier: notice.NewNoopNotifier(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterDevice binds fingerprint to accountID. Registering a fingerprint the
// account already owns refreshes its last-seen time and keeps the existing
// name unless a new one is given.
func (s *DeviceService) RegisterDevice(ctx context.Context, accountID uuid.UUID, fingerprint, displayName, userAgent string) (RegisteredDevice, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	displayName = strings.TrimSpace(displayName)
	if err := validateRegistration(accountID, fingerprint, displayName); err != nil {
		s.metrics.ObserveDeviceRegistration("invalid")
		return RegisteredDevice{}, err
	}

	now := s.now()
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.repo.GetDevice(ctx, fingerprint)
		if errors.Is(err, ErrDeviceNotFound) {
			if displayName == "" {
				displayName = determineDeviceName(userAgent)
			}
			created, err := s.repo.CreateDevice(ctx, RegisteredDevice{
				Fingerprint: fingerprint,
				AccountID:   accountID,
				DisplayName: displayName,
				UserAgent:   userAgent,
				CreatedAt:   now,
				LastSeenAt:  now,
			})
			if errors.Is(err, ErrDeviceExists) {
				// lost a race with a concurrent registration, re-read
				continue
			}
			if err != nil {
				s.metrics.ObserveDeviceRegistration("failed")
				return RegisteredDevice{}, fmt.Errorf("failed to create device: %w", err)
			}
			slog.Info("Device registered", "accountID", accountID, "fingerprint", fingerprint, "name", created.DisplayName)
			s.metrics.ObserveDeviceRegistration("created")
			return created, nil
		}
		if err != nil {
			s.metrics.ObserveDeviceRegistration("failed")
			return RegisteredDevice{}, fmt.Errorf("failed to get device: %w", err)
		}

		if existing.Blocked {
			slog.Warn("Registration of blocked device refused", "accountID", accountID, "fingerprint", fingerprint)
			s.metrics.ObserveDeviceRegistration("blocked")
			return RegisteredDevice{}, ErrDeviceBlocked
		}
		if !existing.IsOwnedBy(accountID) {
			slog.Warn("Device already bound to another account", "accountID", accountID, "fingerprint", fingerprint)
			s.metrics.ObserveDeviceRegistration("conflict")
			return RegisteredDevice{}, ErrDeviceOwnedByOther
		}

		// the refresh re-checks owner and block state in the same write, so a
		// block stored after the read above is kept
		updated, err := s.repo.RefreshDevice(ctx, DeviceRefresh{
			Fingerprint: fingerprint,
			AccountID:   accountID,
			DisplayName: displayName,
			UserAgent:   userAgent,
			LastSeenAt:  now,
		})
		if errors.Is(err, ErrDeviceBlocked) {
			slog.Warn("Registration of blocked device refused", "accountID", accountID, "fingerprint", fingerprint)
			s.metrics.ObserveDeviceRegistration("blocked")
			return RegisteredDevice{}, ErrDeviceBlocked
		}
		if errors.Is(err, ErrDeviceOwnedByOther) {
			s.metrics.ObserveDeviceRegistration("conflict")
			return RegisteredDevice{}, ErrDeviceOwnedByOther
		}
		if err != nil {
			s.metrics.ObserveDeviceRegistration("failed")
			return RegisteredDevice{}, fmt.Errorf("failed to update device: %w", err)
		}
		slog.Debug("Device seen again", "accountID", accountID, "fingerprint", fingerprint)
		s.metrics.ObserveDeviceRegistration("refreshed")
		return updated, nil
	}

	s.metrics.ObserveDeviceRegistration("failed")
	return RegisteredDevice{}, fmt.Errorf("failed to register device %s: concurrent registration", fingerprint)
}

// BlockDevice marks the fingerprint blocked whoever owns it. An unknown
// fingerprint is stored as a blocked placeholder. The owner is notified
// once the block is stored; notification failures are only logged.
func (s *DeviceService) BlockDevice(ctx context.Context, fingerprint, reason string) (RegisteredDevice, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return RegisteredDevice{}, fmt.Errorf("%w: fingerprint is required", ErrInvalidDevice)
	}

	now := s.now()
	var blocked RegisteredDevice
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.repo.GetDevice(ctx, fingerprint)
		if errors.Is(err, ErrDeviceNotFound) {
			blocked, err = s.repo.CreateDevice(ctx, RegisteredDevice{
				Fingerprint: fingerprint,
				DisplayName: "Unregistered device",
				Blocked:     true,
				BlockReason: reason,
				CreatedAt:   now,
				LastSeenAt:  now,
				BlockedAt:   &now,
			})
			if errors.Is(err, ErrDeviceExists) {
				continue
			}
			if err != nil {
				return RegisteredDevice{}, fmt.Errorf("failed to record blocked device: %w", err)
			}
			break
		}
		if err != nil {
			return RegisteredDevice{}, fmt.Errorf("failed to get device: %w", err)
		}

		if existing.Blocked {
			return existing, nil
		}
		blocked, err = s.repo.SetBlockState(ctx, fingerprint, BlockState{
			Blocked:   true,
			Reason:    reason,
			BlockedAt: &now,
		})
		if err != nil {
			return RegisteredDevice{}, fmt.Errorf("failed to block device: %w", err)
		}
		break
	}
	if !blocked.Blocked {
		return RegisteredDevice{}, fmt.Errorf("failed to block device %s: concurrent registration", fingerprint)
	}

	slog.Warn("Device blocked", "fingerprint", fingerprint, "accountID", blocked.AccountID, "reason", reason)
	s.metrics.ObserveDeviceBlock()
	s.notifyBlocked(ctx, blocked)
	return blocked, nil
}

// UnblockDevice clears the block. Placeholders are left unowned.
func (s *DeviceService) UnblockDevice(ctx context.Context, fingerprint string) (RegisteredDevice, error) {
	existing, err := s.repo.GetDevice(ctx, fingerprint)
	if err != nil {
		return RegisteredDevice{}, err
	}
	if !existing.Blocked {
		return existing, nil
	}

	updated, err := s.repo.SetBlockState(ctx, fingerprint, BlockState{})
	if err != nil {
		return RegisteredDevice{}, fmt.Errorf("failed to unblock device: %w", err)
	}
	slog.Info("Device unblocked", "fingerprint", fingerprint, "accountID", updated.AccountID)
	return updated, nil
}

// IsBlocked reports whether fingerprint is blocked. Unknown fingerprints are not.
func (s *DeviceService) IsBlocked(ctx context.Context, fingerprint string) (bool, error) {
	existing, err := s.repo.GetDevice(ctx, fingerprint)
	if errors.Is(err, ErrDeviceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get device: %w", err)
	}
	return existing.Blocked, nil
}

// RenameDevice changes the display name of a device the account owns.
func (s *DeviceService) RenameDevice(ctx context.Context, accountID uuid.UUID, fingerprint, displayName string) (RegisteredDevice, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return RegisteredDevice{}, fmt.Errorf("%w: display name is required", ErrInvalidDevice)
	}
	if err := validateRegistration(accountID, fingerprint, displayName); err != nil {
		return RegisteredDevice{}, err
	}

	updated, err := s.repo.RefreshDevice(ctx, DeviceRefresh{
		Fingerprint: fingerprint,
		AccountID:   accountID,
		DisplayName: displayName,
	})
	if errors.Is(err, ErrDeviceNotFound) || errors.Is(err, ErrDeviceOwnedByOther) || errors.Is(err, ErrDeviceBlocked) {
		return RegisteredDevice{}, err
	}
	if err != nil {
		return RegisteredDevice{}, fmt.Errorf("failed to rename device: %w", err)
	}
	return updated, nil
}

func (s *DeviceService) ListDevices(ctx context.Context, accountID uuid.UUID) ([]RegisteredDevice, error) {
	return s.repo.FindDevicesByAccount(ctx, accountID)
}

// ListAllDevices returns every device including blocked placeholders.
func (s *DeviceService) ListAllDevices(ctx context.Context) ([]RegisteredDevice, error) {
	return s.repo.FindDevices(ctx)
}

func (s *DeviceService) GetDevice(ctx context.Context, fingerprint string) (RegisteredDevice, error) {
	return s.repo.GetDevice(ctx, fingerprint)
}

func (s *DeviceService) notifyBlocked(ctx context.Context, d RegisteredDevice) {
	if d.AccountID == uuid.Nil || s.owners == nil {
		return
	}
	email, err := s.owners.GetEmail(ctx, d.AccountID)
	if err != nil {
		slog.Error("Failed to resolve device owner for block notice", "accountID", d.AccountID, "error", err)
		return
	}

	blockedAt := s.now()
	if d.BlockedAt != nil {
		blockedAt = *d.BlockedAt
	}
	err = s.notifier.NotifyDeviceBlocked(ctx, notice.DeviceBlocked{
		AccountID:   d.AccountID,
		Email:       email,
		Fingerprint: d.Fingerprint,
		DeviceName:  d.DisplayName,
		Reason:      d.BlockReason,
		BlockedAt:   blockedAt,
	})
	if err != nil {
		slog.Error("Failed to send device blocked notice", "accountID", d.AccountID, "fingerprint", d.Fingerprint, "error", err)
	}
}

func validateRegistration(accountID uuid.UUID, fingerprint, displayName string) error {
	if accountID == uuid.Nil {
		return fmt.Errorf("%w: account is required", ErrInvalidDevice)
	}
	if fingerprint == "" {
		return fmt.Errorf("%w: fingerprint is required", ErrInvalidDevice)
	}
	if utf8.RuneCountInString(displayName) > MaxDisplayNameLength {
		return fmt.Errorf("%w: display name exceeds %d characters", ErrInvalidDevice, MaxDisplayNameLength)
	}
	return nil
}
