package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	hriserrors "github.com/tendant/simple-hris/pkg/errors"
)

// MinPasswordLength is the shortest password ChangePassword accepts.
const MinPasswordLength = 8

var (
	ErrInvalidCredentials = hriserrors.New(hriserrors.ErrCodeInvalidCredentials, "invalid email or password")
	ErrPasswordTooShort   = hriserrors.Newf(hriserrors.ErrCodePasswordComplexity, "password must be at least %d characters", MinPasswordLength)
	ErrPasswordUnchanged  = hriserrors.New(hriserrors.ErrCodePasswordComplexity, "new password must differ from the current one")
)

// AccountService authenticates accounts and manages their passwords
type AccountService struct {
	repo   AccountRepository
	hasher PasswordHasher
	now    func() time.Time
}

type Option func(*AccountService)

func WithPasswordHasher(h PasswordHasher) Option {
	return func(s *AccountService) {
		s.hasher = h
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *AccountService) {
		s.now = now
	}
}

func NewAccountService(repo AccountRepository, opts ...Option) *AccountService {
	s := &AccountService{
		repo:   repo,
		hasher: NewBcryptHasher(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewAccount describes an account to provision.
type NewAccount struct {
	Email       string
	DisplayName string
	Password    string
	Roles       []string
	// MustChangePassword makes the first login stop at the password change step.
	MustChangePassword bool
}

// CreateAccount provisions an account.
func (s *AccountService) CreateAccount(ctx context.Context, req NewAccount) (Account, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return Account{}, hriserrors.InvalidInput("email", "required")
	}
	if len(req.Password) < MinPasswordLength {
		return Account{}, ErrPasswordTooShort
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return Account{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	account := Account{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		Roles:        req.Roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !req.MustChangePassword {
		account.PasswordChangedAt = &now
	}

	created, err := s.repo.CreateAccount(ctx, account)
	if err != nil {
		return Account{}, err
	}
	slog.Info("Account created", "accountID", created.ID, "email", created.Email)
	return created, nil
}

// Authenticate checks an email and password. Unknown emails and wrong
// passwords fail the same way.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (Account, error) {
	if password == "" {
		return Account{}, ErrInvalidCredentials
	}

	account, err := s.repo.FindAccountByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrAccountNotFound) {
		slog.Info("Login attempt for unknown email", "email", email)
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to find account: %w", err)
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return Account{}, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		slog.Info("Wrong password", "accountID", account.ID)
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

func (s *AccountService) IsPasswordChangeRequired(ctx context.Context, accountID uuid.UUID) (bool, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	return account.PasswordChangeRequired(), nil
}

// ChangePassword replaces the password. The new one must be long enough and
// differ from the current one.
func (s *AccountService) ChangePassword(ctx context.Context, accountID uuid.UUID, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	same, err := s.hasher.Verify(newPassword, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to compare passwords: %w", err)
	}
	if same {
		return ErrPasswordUnchanged
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, accountID, hash, s.now()); err != nil {
		return err
	}

	slog.Info("Password changed", "accountID", accountID)
	return nil
}

// GetEmail returns the account's email address.
func (s *AccountService) GetEmail(ctx context.Context, accountID uuid.UUID) (string, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	return account.Email, nil
}

// GetRoles returns the account's role names.
func (s *AccountService) GetRoles(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return account.Roles, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
