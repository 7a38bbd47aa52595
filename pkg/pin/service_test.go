package pin

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-hris/pkg/metrics"
)

// fastHasher keeps argon2 cheap in tests.
func fastHasher() *Argon2Hasher {
	return NewArgon2HasherWithParams(1024, 1, 1)
}

func TestArgon2Hasher(t *testing.T) {
	h := fastHasher()
	hash, err := h.Hash("048572")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))
	assert.NotContains(t, hash, "048572")

	other, err := h.Hash("048572")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salt must differ")

	ok, err := h.Verify("048572", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("048573", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Verify("048572", "$bcrypt$nope")
	assert.Error(t, err)
}

func TestPinLifecycle(t *testing.T) {
	ctx := context.Background()
	m, err := metrics.New(metrics.Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	repo := NewInMemPinRepository()
	svc := NewPinService(repo, WithHasher(fastHasher()), WithMetrics(m))
	accountID := uuid.New()

	has, err := svc.HasPin(ctx, accountID)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = svc.VerifyPin(ctx, accountID, "111222")
	assert.ErrorIs(t, err, ErrPinNotFound)

	require.NoError(t, svc.CreatePin(ctx, accountID, "111222"))

	has, err = svc.HasPin(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, has)

	stored, err := repo.GetPin(ctx, accountID)
	require.NoError(t, err)
	assert.NotEqual(t, "111222", stored.Hash)
	assert.False(t, stored.CreatedAt.IsZero())

	assert.ErrorIs(t, svc.CreatePin(ctx, accountID, "222333"), ErrPinExists)

	ok, err := svc.VerifyPin(ctx, accountID, "111222")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.VerifyPin(ctx, accountID, "000001")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.VerifyPin(ctx, accountID, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PinVerifications.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PinVerifications.WithLabelValues("failure")))

	require.NoError(t, svc.ResetPin(ctx, accountID))
	has, err = svc.HasPin(ctx, accountID)
	require.NoError(t, err)
	assert.False(t, has)
	require.NoError(t, svc.ResetPin(ctx, accountID))
}

func TestCreatePinPolicy(t *testing.T) {
	ctx := context.Background()
	svc := NewPinService(NewInMemPinRepository(), WithHasher(fastHasher()))
	accountID := uuid.New()

	assert.ErrorIs(t, svc.CreatePin(ctx, accountID, "12345"), ErrInvalidPinShape)
	assert.ErrorIs(t, svc.CreatePin(ctx, accountID, "12345x"), ErrInvalidPinShape)
	assert.ErrorIs(t, svc.CreatePin(ctx, accountID, "112233"), ErrWeakPin)
	assert.ErrorIs(t, svc.CreatePin(ctx, uuid.Nil, "048572"), ErrInvalidAccount)

	has, err := svc.HasPin(ctx, accountID)
	require.NoError(t, err)
	assert.False(t, has)
}
