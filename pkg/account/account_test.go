package account

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-hris/internal/pgtest"
	"golang.org/x/crypto/bcrypt"
)

func testRepository(t *testing.T, repo AccountRepository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	account := Account{
		ID:           uuid.New(),
		Email:        "ana@example.com",
		DisplayName:  "Ana",
		PasswordHash: "hash-1",
		Roles:        []string{"employee"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := repo.GetAccount(ctx, account.ID)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	created, err := repo.CreateAccount(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, account.Email, created.Email)
	assert.Nil(t, created.PasswordChangedAt)

	duplicate := account
	duplicate.ID = uuid.New()
	_, err = repo.CreateAccount(ctx, duplicate)
	assert.ErrorIs(t, err, ErrAccountExists)

	found, err := repo.FindAccountByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)
	assert.Equal(t, []string{"employee"}, found.Roles)

	_, err = repo.FindAccountByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	changedAt := now.Add(time.Hour)
	require.NoError(t, repo.UpdatePassword(ctx, account.ID, "hash-2", changedAt))
	got, err := repo.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-2", got.PasswordHash)
	require.NotNil(t, got.PasswordChangedAt)
	assert.True(t, changedAt.Equal(*got.PasswordChangedAt))

	assert.ErrorIs(t, repo.UpdatePassword(ctx, uuid.New(), "hash", changedAt), ErrAccountNotFound)
}

func TestInMemAccountRepository(t *testing.T) {
	testRepository(t, NewInMemAccountRepository())
}

func TestFileAccountRepository(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileAccountRepository(dir)
	require.NoError(t, err)
	testRepository(t, repo)

	reopened, err := NewFileAccountRepository(dir)
	require.NoError(t, err)
	found, err := reopened.FindAccountByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash-2", found.PasswordHash)
}

func TestPostgresAccountRepository(t *testing.T) {
	pool := pgtest.Start(t)
	testRepository(t, NewPostgresAccountRepository(pool))
}

func TestNewAccountRepository(t *testing.T) {
	repo, err := NewAccountRepository("memory", RepositoryConfig{})
	require.NoError(t, err)
	assert.IsType(t, &InMemAccountRepository{}, repo)

	_, err = NewAccountRepository("postgres", RepositoryConfig{})
	assert.Error(t, err)

	_, err = NewAccountRepository("ldap", RepositoryConfig{})
	assert.Error(t, err)
}

func newTestService() *AccountService {
	return NewAccountService(NewInMemAccountRepository(),
		WithPasswordHasher(&BcryptHasher{Cost: bcrypt.MinCost}))
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	created, err := svc.CreateAccount(ctx, NewAccount{
		Email:    "  Ana@Example.com ",
		Password: "correct-horse",
		Roles:    []string{"employee"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", created.Email)

	got, err := svc.Authenticate(ctx, "ANA@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.Authenticate(ctx, "ana@example.com", "wrong-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "bob@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "ana@example.com", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPasswordChangeRequired(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	provisioned, err := svc.CreateAccount(ctx, NewAccount{
		Email:              "new@example.com",
		Password:           "temporary-1",
		MustChangePassword: true,
	})
	require.NoError(t, err)

	required, err := svc.IsPasswordChangeRequired(ctx, provisioned.ID)
	require.NoError(t, err)
	assert.True(t, required)

	assert.ErrorIs(t, svc.ChangePassword(ctx, provisioned.ID, "short"), ErrPasswordTooShort)
	assert.ErrorIs(t, svc.ChangePassword(ctx, provisioned.ID, "temporary-1"), ErrPasswordUnchanged)
	require.NoError(t, svc.ChangePassword(ctx, provisioned.ID, "permanent-1"))

	required, err = svc.IsPasswordChangeRequired(ctx, provisioned.ID)
	require.NoError(t, err)
	assert.False(t, required)

	_, err = svc.Authenticate(ctx, "new@example.com", "permanent-1")
	assert.NoError(t, err)
	_, err = svc.Authenticate(ctx, "new@example.com", "temporary-1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestOwnerAndRoleLookups(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	created, err := svc.CreateAccount(ctx, NewAccount{
		Email:    "sec@example.com",
		Password: "long-enough",
		Roles:    []string{"security_admin"},
	})
	require.NoError(t, err)

	email, err := svc.GetEmail(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "sec@example.com", email)

	roles, err := svc.GetRoles(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"security_admin"}, roles)

	_, err = svc.GetEmail(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
