package account

import (
	"context"
	"time"

	"github.com/google/uuid"
	hriserrors "github.com/tendant/simple-hris/pkg/errors"
)

var (
	ErrAccountNotFound = hriserrors.New(hriserrors.ErrCodeNotFound, "account not found")
	ErrAccountExists   = hriserrors.New(hriserrors.ErrCodeAlreadyExists, "account already exists")
)

// Account is a login identity. PasswordChangedAt is nil until the user
// replaces the password they were provisioned with.
type Account struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	DisplayName       string     `json:"display_name"`
	PasswordHash      string     `json:"password_hash"`
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty"`
	Roles             []string   `json:"roles"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (a Account) PasswordChangeRequired() bool {
	return a.PasswordChangedAt == nil
}

// AccountRepository stores accounts. Emails are unique and stored lower case.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account Account) (Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (Account, error)
	FindAccountByEmail(ctx context.Context, email string) (Account, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, changedAt time.Time) error
}
