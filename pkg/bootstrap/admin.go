// Package bootstrap provisions the first administrator account of an
// empty installation.
package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/simple-hris/pkg/account"
	"github.com/tendant/simple-hris/pkg/permission"
)

// generatedPasswordBytes is the entropy of a generated admin password.
const generatedPasswordBytes = 18

// AccountCreator provisions accounts.
type AccountCreator interface {
	CreateAccount(ctx context.Context, req account.NewAccount) (account.Account, error)
}

// AdminBootstrapConfig describes the admin account to create.
type AdminBootstrapConfig struct {
	Email       string
	DisplayName string
	// Password is generated when empty
	Password string
	// Roles default to admin and security_admin
	Roles []string

	Accounts AccountCreator
}

// AdminBootstrapResult reports what the bootstrap did.
type AdminBootstrapResult struct {
	AccountID uuid.UUID
	Email     string
	Roles     []string
	// Password is set only when it was generated
	Password        string
	PasswordFromEnv bool
	Created         bool
}

// BootstrapAdmin creates the admin account unless one with the same email
// exists. The account must change its password at first login.
func BootstrapAdmin(ctx context.Context, cfg AdminBootstrapConfig) (*AdminBootstrapResult, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid bootstrap configuration: %w", err)
	}

	roles := cfg.Roles
	if len(roles) == 0 {
		roles = []string{permission.RoleAdmin, permission.RoleSecurityAdmin}
	}

	password := cfg.Password
	if password == "" {
		generated, err := generatePassword()
		if err != nil {
			return nil, fmt.Errorf("failed to generate admin password: %w", err)
		}
		password = generated
	}

	created, err := cfg.Accounts.CreateAccount(ctx, account.NewAccount{
		Email:              cfg.Email,
		DisplayName:        cfg.DisplayName,
		Password:           password,
		Roles:              roles,
		MustChangePassword: true,
	})
	if errors.Is(err, account.ErrAccountExists) {
		slog.Info("Admin account already exists - skipping bootstrap", "email", cfg.Email)
		return &AdminBootstrapResult{Email: strings.ToLower(strings.TrimSpace(cfg.Email)), Created: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create admin account: %w", err)
	}

	result := &AdminBootstrapResult{
		AccountID:       created.ID,
		Email:           created.Email,
		Roles:           created.Roles,
		PasswordFromEnv: cfg.Password != "",
		Created:         true,
	}
	if !result.PasswordFromEnv {
		result.Password = password
	}

	slog.Info("Admin account created", "accountID", created.ID, "email", created.Email, "roles", created.Roles)
	return result, nil
}

func validateConfig(cfg AdminBootstrapConfig) error {
	if strings.TrimSpace(cfg.Email) == "" {
		return fmt.Errorf("admin email is required")
	}
	if cfg.Accounts == nil {
		return fmt.Errorf("account service is required")
	}
	for _, role := range cfg.Roles {
		if _, ok := permission.DefaultRoles()[role]; !ok {
			return fmt.Errorf("unknown role %q", role)
		}
	}
	return nil
}

func generatePassword() (string, error) {
	b := make([]byte, generatedPasswordBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
