package pin

import (
	"context"
	"time"

	"github.com/google/uuid"
	hriserrors "github.com/tendant/simple-hris/pkg/errors"
)

var (
	ErrPinNotFound = hriserrors.New(hriserrors.ErrCodeNotFound, "PIN not set")
	ErrPinExists   = hriserrors.New(hriserrors.ErrCodePinExists, "PIN already set")
)

// PinCredential is the stored form of an account's PIN.
type PinCredential struct {
	AccountID uuid.UUID `json:"account_id"`
	Hash      string    `json:"pin_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// PinRepository stores at most one credential per account.
type PinRepository interface {
	GetPin(ctx context.Context, accountID uuid.UUID) (PinCredential, error)
	// CreatePin fails with ErrPinExists when the account already has one.
	CreatePin(ctx context.Context, credential PinCredential) error
	// DeletePin is a no-op when the account has no PIN.
	DeletePin(ctx context.Context, accountID uuid.UUID) error
}
