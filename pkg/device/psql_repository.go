package device

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
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const deviceColumns = `fingerprint, account_id, display_name, user_agent, blocked, block_reason, created_at, last_seen_at, blocked_at`

// selectColumns maps a NULL owner back to uuid.Nil
const selectColumns = `fingerprint, COALESCE(account_id, '00000000-0000-0000-0000-000000000000'::uuid), display_name, user_agent, blocked, block_reason, created_at, last_seen_at, blocked_at`

// PostgresDeviceRepository implements DeviceRepository using PostgreSQL
type PostgresDeviceRepository struct {
	db DBTX
}

// NewPostgresDeviceRepository creates a new PostgreSQL device repository
func NewPostgresDeviceRepository(db DBTX) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *PostgresDeviceRepository) WithTx(tx pgx.Tx) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: tx}
}

func (r *PostgresDeviceRepository) CreateDevice(ctx context.Context, device RegisteredDevice) (RegisteredDevice, error) {
	query := `
		INSERT INTO registered_device (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (fingerprint) DO NOTHING
		RETURNING ` + selectColumns

	row := r.db.QueryRow(ctx, query,
		device.Fingerprint,
		nullableAccount(device.AccountID),
		device.DisplayName,
		device.UserAgent,
		device.Blocked,
		device.BlockReason,
		device.CreatedAt,
		device.LastSeenAt,
		device.BlockedAt,
	)
	created, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return RegisteredDevice{}, ErrDeviceExists
	}
	if err != nil {
		return RegisteredDevice{}, fmt.Errorf("failed to create device: %w", err)
	}
	return created, nil
}

func (r *PostgresDeviceRepository) RefreshDevice(ctx context.Context, refresh DeviceRefresh) (RegisteredDevice, error) {
	query := `
		UPDATE registered_device
		SET display_name = COALESCE(NULLIF($3, ''), display_name),
			user_agent = COALESCE(NULLIF($4, ''), user_agent),
			last_seen_at = COALESCE($5, last_seen_at)
		WHERE fingerprint = $1 AND account_id = $2 AND NOT blocked
		RETURNING ` + selectColumns

	var lastSeen *time.Time
	if !refresh.LastSeenAt.IsZero() {
		lastSeen = &refresh.LastSeenAt
	}
	row := r.db.QueryRow(ctx, query,
		refresh.Fingerprint,
		refresh.AccountID,
		refresh.DisplayName,
		refresh.UserAgent,
		lastSeen,
	)
	updated, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		stored, getErr := r.GetDevice(ctx, refresh.Fingerprint)
		if getErr != nil {
			return RegisteredDevice{}, getErr
		}
		if refused := refusal(stored, refresh); refused != nil {
			return RegisteredDevice{}, refused
		}
		return RegisteredDevice{}, fmt.Errorf("failed to refresh device %s: row changed concurrently", refresh.Fingerprint)
	}
	if err != nil {
		return RegisteredDevice{}, fmt.Errorf("failed to refresh device: %w", err)
	}
	return updated, nil
}

func (r *PostgresDeviceRepository) SetBlockState(ctx context.Context, fingerprint string, state BlockState) (RegisteredDevice, error) {
	query := `
		UPDATE registered_device
		SET blocked = $2, block_reason = $3, blocked_at = $4
		WHERE fingerprint = $1
		RETURNING ` + selectColumns

	updated, err := scanDevice(r.db.QueryRow(ctx, query, fingerprint, state.Blocked, state.Reason, state.BlockedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return RegisteredDevice{}, ErrDeviceNotFound
	}
	if err != nil {
		return RegisteredDevice{}, fmt.Errorf("failed to set block state: %w", err)
	}
	return updated, nil
}

func (r *PostgresDeviceRepository) GetDevice(ctx context.Context, fingerprint string) (RegisteredDevice, error) {
	query := `SELECT ` + selectColumns + ` FROM registered_device WHERE fingerprint = $1`

	device, err := scanDevice(r.db.QueryRow(ctx, query, fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return RegisteredDevice{}, ErrDeviceNotFound
	}
	if err != nil {
		return RegisteredDevice{}, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

func (r *PostgresDeviceRepository) FindDevicesByAccount(ctx context.Context, accountID uuid.UUID) ([]RegisteredDevice, error) {
	query := `SELECT ` + selectColumns + ` FROM registered_device WHERE account_id = $1 ORDER BY created_at, fingerprint`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find devices by account: %w", err)
	}
	return collectDevices(rows)
}

func (r *PostgresDeviceRepository) FindDevices(ctx context.Context) ([]RegisteredDevice, error) {
	query := `SELECT ` + selectColumns + ` FROM registered_device ORDER BY created_at, fingerprint`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to find devices: %w", err)
	}
	return collectDevices(rows)
}

func nullableAccount(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func scanDevice(row pgx.Row) (RegisteredDevice, error) {
	var device RegisteredDevice
	err := row.Scan(
		&device.Fingerprint,
		&device.AccountID,
		&device.DisplayName,
		&device.UserAgent,
		&device.Blocked,
		&device.BlockReason,
		&device.CreatedAt,
		&device.LastSeenAt,
		&device.BlockedAt,
	)
	return device, err
}

func collectDevices(rows pgx.Rows) ([]RegisteredDevice, error) {
	defer rows.Close()

	devices := make([]RegisteredDevice, 0)
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}
