package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const accountColumns = `id, email, display_name, password_hash, password_changed_at, roles, created_at, updated_at`

// PostgresAccountRepository implements AccountRepository using PostgreSQL
type PostgresAccountRepository struct {
	db DBTX
}

func NewPostgresAccountRepository(db DBTX) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

func (r *PostgresAccountRepository) CreateAccount(ctx context.Context, account Account) (Account, error) {
	query := `
		INSERT INTO account (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
		RETURNING ` + accountColumns

	roles := account.Roles
	if roles == nil {
		roles = []string{}
	}
	created, err := scanAccount(r.db.QueryRow(ctx, query,
		account.ID,
		account.Email,
		account.DisplayName,
		account.PasswordHash,
		account.PasswordChangedAt,
		roles,
		account.CreatedAt,
		account.UpdatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountExists
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to create account: %w", err)
	}
	return created, nil
}

func (r *PostgresAccountRepository) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM account WHERE id = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepository) FindAccountByEmail(ctx context.Context, email string) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM account WHERE email = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to find account by email: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, changedAt time.Time) error {
	query := `
		UPDATE account
		SET password_hash = $2, password_changed_at = $3, updated_at = $3
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, hash, changedAt)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var account Account
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.DisplayName,
		&account.PasswordHash,
		&account.PasswordChangedAt,
		&account.Roles,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	return account, err
}
