package pin

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresPinRepository implements PinRepository using PostgreSQL
type PostgresPinRepository struct {
	db DBTX
}

func NewPostgresPinRepository(db DBTX) *PostgresPinRepository {
	return &PostgresPinRepository{db: db}
}

func (r *PostgresPinRepository) GetPin(ctx context.Context, accountID uuid.UUID) (PinCredential, error) {
	var credential PinCredential
	err := r.db.QueryRow(ctx,
		`SELECT account_id, pin_hash, created_at FROM pin_credential WHERE account_id = $1`,
		accountID,
	).Scan(&credential.AccountID, &credential.Hash, &credential.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PinCredential{}, ErrPinNotFound
	}
	if err != nil {
		return PinCredential{}, fmt.Errorf("failed to get pin: %w", err)
	}
	return credential, nil
}

func (r *PostgresPinRepository) CreatePin(ctx context.Context, credential PinCredential) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO pin_credential (account_id, pin_hash, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO NOTHING`,
		credential.AccountID, credential.Hash, credential.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create pin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPinExists
	}
	return nil
}

func (r *PostgresPinRepository) DeletePin(ctx context.Context, accountID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM pin_credential WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to delete pin: %w", err)
	}
	return nil
}
