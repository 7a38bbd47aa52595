package pin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	hriserrors "github.com/tendant/simple-hris/pkg/errors"
	"github.com/tendant/simple-hris/pkg/metrics"
)

var ErrInvalidAccount = hriserrors.New(hriserrors.ErrCodeInvalidInput, "account is required")

// PinService creates, verifies and resets PINs
type PinService struct {
	repo    PinRepository
	hasher  Hasher
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*PinService)

func WithHasher(h Hasher) Option {
	return func(s *PinService) {
		s.hasher = h
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *PinService) {
		s.metrics = m
	}
}

func NewPinService(repo PinRepository, opts ...Option) *PinService {
	s := &PinService{
		repo:   repo,
		hasher: NewArgon2Hasher(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PinService) HasPin(ctx context.Context, accountID uuid.UUID) (bool, error) {
	if accountID == uuid.Nil {
		return false, ErrInvalidAccount
	}
	_, err := s.repo.GetPin(ctx, accountID)
	if errors.Is(err, ErrPinNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check pin: %w", err)
	}
	return true, nil
}

// CreatePin stores the hash of pin. The policy is checked again here so a
// client that skipped it cannot store a weak PIN.
func (s *PinService) CreatePin(ctx context.Context, accountID uuid.UUID, pin string) error {
	if accountID == uuid.Nil {
		return ErrInvalidAccount
	}
	if err := Validate(pin); err != nil {
		return err
	}

	exists, err := s.HasPin(ctx, accountID)
	if err != nil {
		return err
	}
	if exists {
		return ErrPinExists
	}

	hash, err := s.hasher.Hash(pin)
	if err != nil {
		return fmt.Errorf("failed to hash pin: %w", err)
	}

	if err := s.repo.CreatePin(ctx, PinCredential{
		AccountID: accountID,
		Hash:      hash,
		CreatedAt: s.now(),
	}); err != nil {
		return err
	}

	slog.Info("PIN created", "accountID", accountID)
	return nil
}

// VerifyPin reports whether pin matches the stored hash. A malformed
// candidate is simply a mismatch. No attempts are counted here.
func (s *PinService) VerifyPin(ctx context.Context, accountID uuid.UUID, pin string) (bool, error) {
	if accountID == uuid.Nil {
		return false, ErrInvalidAccount
	}

	credential, err := s.repo.GetPin(ctx, accountID)
	if err != nil {
		if !errors.Is(err, ErrPinNotFound) {
			err = fmt.Errorf("failed to get pin: %w", err)
		}
		s.metrics.ObservePinVerification("error")
		return false, err
	}

	if ValidateShape(pin) != nil {
		s.metrics.ObservePinVerification("failure")
		return false, nil
	}

	ok, err := s.hasher.Verify(pin, credential.Hash)
	if err != nil {
		slog.Error("Stored PIN hash unreadable", "accountID", accountID, "error", err)
		s.metrics.ObservePinVerification("error")
		return false, fmt.Errorf("failed to verify pin: %w", err)
	}

	if ok {
		s.metrics.ObservePinVerification("success")
	} else {
		s.metrics.ObservePinVerification("failure")
	}
	return ok, nil
}

// ResetPin removes the account's PIN so its next login routes to setup.
func (s *PinService) ResetPin(ctx context.Context, accountID uuid.UUID) error {
	if accountID == uuid.Nil {
		return ErrInvalidAccount
	}
	if err := s.repo.DeletePin(ctx, accountID); err != nil {
		return err
	}
	slog.Info("PIN reset", "accountID", accountID)
	return nil
}
