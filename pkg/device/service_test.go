package device

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-hris/pkg/metrics"
	"github.com/tendant/simple-hris/pkg/notice"
)

type staticOwners map[uuid.UUID]string

func (o staticOwners) GetEmail(ctx context.Context, accountID uuid.UUID) (string, error) {
	email, ok := o[accountID]
	if !ok {
		return "", errors.New("unknown account")
	}
	return email, nil
}

type serviceFixture struct {
	svc      *DeviceService
	notifier *notice.MockNotifier
	metrics  *metrics.Metrics
	now      time.Time
}

func newServiceFixture(t *testing.T, owners staticOwners) *serviceFixture {
	t.Helper()
	m, err := metrics.New(metrics.Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)

	f := &serviceFixture{
		notifier: notice.NewMockNotifier(),
		metrics:  m,
		now:      time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC),
	}
	f.svc = NewDeviceService(NewInMemDeviceRepository(),
		WithNotifier(f.notifier, owners),
		WithMetrics(m),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func TestRegisterDevice(t *testing.T) {
	ctx := context.Background()
	accountID := uuid.New()
	f := newServiceFixture(t, nil)

	created, err := f.svc.RegisterDevice(ctx, accountID, "fp1", "", chromeOnWindows.UserAgent)
	require.NoError(t, err)
	assert.Equal(t, accountID, created.AccountID)
	assert.Equal(t, "Chrome on Windows PC", created.DisplayName)
	assert.Equal(t, f.now, created.CreatedAt)

	t.Run("idempotent for the same account", func(t *testing.T) {
		f.now = f.now.Add(time.Hour)
		again, err := f.svc.RegisterDevice(ctx, accountID, "fp1", "", "")
		require.NoError(t, err)
		assert.Equal(t, "Chrome on Windows PC", again.DisplayName)
		assert.Equal(t, created.CreatedAt, again.CreatedAt)
		assert.Equal(t, f.now, again.LastSeenAt)

		devices, err := f.svc.ListDevices(ctx, accountID)
		require.NoError(t, err)
		assert.Len(t, devices, 1)
	})

	t.Run("new name replaces old", func(t *testing.T) {
		again, err := f.svc.RegisterDevice(ctx, accountID, "fp1", "Front desk", "")
		require.NoError(t, err)
		assert.Equal(t, "Front desk", again.DisplayName)
	})

	t.Run("bound to another account", func(t *testing.T) {
		_, err := f.svc.RegisterDevice(ctx, uuid.New(), "fp1", "", "")
		assert.ErrorIs(t, err, ErrDeviceOwnedByOther)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := f.svc.RegisterDevice(ctx, uuid.Nil, "fp2", "", "")
		assert.ErrorIs(t, err, ErrInvalidDevice)

		_, err = f.svc.RegisterDevice(ctx, accountID, "  ", "", "")
		assert.ErrorIs(t, err, ErrInvalidDevice)

		_, err = f.svc.RegisterDevice(ctx, accountID, "fp2", strings.Repeat("x", MaxDisplayNameLength+1), "")
		assert.ErrorIs(t, err, ErrInvalidDevice)

		_, err = f.svc.RegisterDevice(ctx, accountID, "fp2", strings.Repeat("x", MaxDisplayNameLength), "")
		assert.NoError(t, err)
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.DeviceRegistrations.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DeviceRegistrations.WithLabelValues("conflict")))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.DeviceRegistrations.WithLabelValues("invalid")))
}

func TestBlockDevice(t *testing.T) {
	ctx := context.Background()
	accountID := uuid.New()
	f := newServiceFixture(t, staticOwners{accountID: "siti@example.com"})

	_, err := f.svc.RegisterDevice(ctx, accountID, "fp1", "Laptop", "")
	require.NoError(t, err)

	blocked, err := f.svc.BlockDevice(ctx, "fp1", "too many incorrect PIN attempts")
	require.NoError(t, err)
	assert.True(t, blocked.Blocked)
	assert.Equal(t, accountID, blocked.AccountID)
	require.NotNil(t, blocked.BlockedAt)
	assert.Equal(t, f.now, *blocked.BlockedAt)

	isBlocked, err := f.svc.IsBlocked(ctx, "fp1")
	require.NoError(t, err)
	assert.True(t, isBlocked)

	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "siti@example.com", sent[0].Email)
	assert.Equal(t, "Laptop", sent[0].DeviceName)

	t.Run("blocking twice is a no-op", func(t *testing.T) {
		_, err := f.svc.BlockDevice(ctx, "fp1", "again")
		require.NoError(t, err)
		assert.Len(t, f.notifier.Sent(), 1)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DeviceBlocks))
	})

	t.Run("registration of a blocked device is refused", func(t *testing.T) {
		_, err := f.svc.RegisterDevice(ctx, accountID, "fp1", "", "")
		assert.ErrorIs(t, err, ErrDeviceBlocked)
	})

	t.Run("unblock", func(t *testing.T) {
		unblocked, err := f.svc.UnblockDevice(ctx, "fp1")
		require.NoError(t, err)
		assert.False(t, unblocked.Blocked)
		assert.Nil(t, unblocked.BlockedAt)

		_, err = f.svc.RegisterDevice(ctx, accountID, "fp1", "", "")
		assert.NoError(t, err)
	})
}

func TestBlockUnknownDeviceRecordsPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil)

	isBlocked, err := f.svc.IsBlocked(ctx, "stranger")
	require.NoError(t, err)
	assert.False(t, isBlocked)

	placeholder, err := f.svc.BlockDevice(ctx, "stranger", "admin")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, placeholder.AccountID)
	assert.True(t, placeholder.Blocked)
	assert.Empty(t, f.notifier.Sent())

	_, err = f.svc.RegisterDevice(ctx, uuid.New(), "stranger", "", "")
	assert.ErrorIs(t, err, ErrDeviceBlocked)

	_, err = f.svc.BlockDevice(ctx, "", "admin")
	assert.ErrorIs(t, err, ErrInvalidDevice)
}

func TestBlockDeviceNotifierFailureDoesNotFail(t *testing.T) {
	ctx := context.Background()
	accountID := uuid.New()
	f := newServiceFixture(t, staticOwners{accountID: "siti@example.com"})
	f.notifier.Err = errors.New("smtp down")

	_, err := f.svc.RegisterDevice(ctx, accountID, "fp1", "", "")
	require.NoError(t, err)

	_, err = f.svc.BlockDevice(ctx, "fp1", "lockout")
	require.NoError(t, err)

	isBlocked, err := f.svc.IsBlocked(ctx, "fp1")
	require.NoError(t, err)
	assert.True(t, isBlocked)
}

func TestRenameDevice(t *testing.T) {
	ctx := context.Background()
	accountID := uuid.New()
	f := newServiceFixture(t, nil)

	_, err := f.svc.RegisterDevice(ctx, accountID, "fp1", "", "")
	require.NoError(t, err)

	renamed, err := f.svc.RenameDevice(ctx, accountID, "fp1", "  Reception tablet ")
	require.NoError(t, err)
	assert.Equal(t, "Reception tablet", renamed.DisplayName)

	_, err = f.svc.RenameDevice(ctx, uuid.New(), "fp1", "Mine now")
	assert.ErrorIs(t, err, ErrDeviceOwnedByOther)

	_, err = f.svc.RenameDevice(ctx, accountID, "fp1", " ")
	assert.ErrorIs(t, err, ErrInvalidDevice)

	_, err = f.svc.RenameDevice(ctx, accountID, "missing", "x")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

// interleavingRepository runs beforeRefresh between the service's read and
// its refresh write.
type interleavingRepository struct {
	*InMemDeviceRepository
	beforeRefresh func()
}

func (r *interleavingRepository) RefreshDevice(ctx context.Context, refresh DeviceRefresh) (RegisteredDevice, error) {
	if r.beforeRefresh != nil {
		hook := r.beforeRefresh
		r.beforeRefresh = nil
		hook()
	}
	return r.InMemDeviceRepository.RefreshDevice(ctx, refresh)
}

func TestRefreshDoesNotUndoConcurrentBlock(t *testing.T) {
	ctx := context.Background()
	accountID := uuid.New()
	repo := &interleavingRepository{InMemDeviceRepository: NewInMemDeviceRepository()}
	svc := NewDeviceService(repo)

	_, err := svc.RegisterDevice(ctx, accountID, "fp1", "Kiosk", "")
	require.NoError(t, err)

	repo.beforeRefresh = func() {
		_, err := svc.BlockDevice(ctx, "fp1", "too many incorrect PIN attempts")
		require.NoError(t, err)
	}
	_, err = svc.RegisterDevice(ctx, accountID, "fp1", "", "")
	assert.ErrorIs(t, err, ErrDeviceBlocked)

	blocked, err := svc.IsBlocked(ctx, "fp1")
	require.NoError(t, err)
	assert.True(t, blocked)

	stored, err := svc.GetDevice(ctx, "fp1")
	require.NoError(t, err)
	assert.Equal(t, "too many incorrect PIN attempts", stored.BlockReason)
	assert.Equal(t, "Kiosk", stored.DisplayName)
}

func TestRenameBlockedDeviceKeepsBlock(t *testing.T) {
	ctx := context.Background()
	accountID := uuid.New()
	f := newServiceFixture(t, nil)

	_, err := f.svc.RegisterDevice(ctx, accountID, "fp1", "Kiosk", "")
	require.NoError(t, err)
	_, err = f.svc.BlockDevice(ctx, "fp1", "lost")
	require.NoError(t, err)

	_, err = f.svc.RenameDevice(ctx, accountID, "fp1", "Renamed")
	assert.ErrorIs(t, err, ErrDeviceBlocked)

	blocked, err := f.svc.IsBlocked(ctx, "fp1")
	require.NoError(t, err)
	assert.True(t, blocked)
}
