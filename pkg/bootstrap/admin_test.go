package bootstrap

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-hris/pkg/account"
	"github.com/tendant/simple-hris/pkg/permission"
	"golang.org/x/crypto/bcrypt"
)

func newAccounts() *account.AccountService {
	return account.NewAccountService(account.NewInMemAccountRepository(),
		account.WithPasswordHasher(&account.BcryptHasher{Cost: bcrypt.MinCost}))
}

func TestBootstrapAdminGeneratesPassword(t *testing.T) {
	ctx := context.Background()
	accounts := newAccounts()

	result, err := BootstrapAdmin(ctx, AdminBootstrapConfig{Email: "Admin@Example.com", Accounts: accounts})
	require.NoError(t, err)
	require.True(t, result.Created)
	assert.Equal(t, "admin@example.com", result.Email)
	assert.ElementsMatch(t, []string{permission.RoleAdmin, permission.RoleSecurityAdmin}, result.Roles)
	assert.False(t, result.PasswordFromEnv)
	require.NotEmpty(t, result.Password)

	acc, err := accounts.Authenticate(ctx, "admin@example.com", result.Password)
	require.NoError(t, err)
	required, err := accounts.IsPasswordChangeRequired(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, required)

	var out bytes.Buffer
	PrintBootstrapResult(&out, result)
	assert.Contains(t, out.String(), result.Password)
}

func TestBootstrapAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	accounts := newAccounts()
	cfg := AdminBootstrapConfig{Email: "admin@example.com", Password: "from-the-env", Accounts: accounts}

	first, err := BootstrapAdmin(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.True(t, first.PasswordFromEnv)
	assert.Empty(t, first.Password)

	second, err := BootstrapAdmin(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, second.Created)

	var out bytes.Buffer
	PrintBootstrapResult(&out, second)
	assert.Empty(t, out.String())
}

func TestBootstrapAdminValidation(t *testing.T) {
	_, err := BootstrapAdmin(context.Background(), AdminBootstrapConfig{Accounts: newAccounts()})
	assert.Error(t, err)

	_, err = BootstrapAdmin(context.Background(), AdminBootstrapConfig{Email: "a@example.com"})
	assert.Error(t, err)

	_, err = BootstrapAdmin(context.Background(), AdminBootstrapConfig{
		Email: "a@example.com", Roles: []string{"superuser"}, Accounts: newAccounts(),
	})
	assert.Error(t, err)
}
