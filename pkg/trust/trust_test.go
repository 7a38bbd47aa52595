package trust

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-hris/pkg/client"
)

func TestMemoryMarkersExpiry(t *testing.T) {
	m := NewMemoryMarkers()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Set(PinVerifiedMarker, "true", DefaultPinVerifiedMarkerTTL)
	m.Set(DeviceMarker, "fp-1", DefaultDeviceMarkerTTL)

	v, ok := m.Get(PinVerifiedMarker)
	require.True(t, ok)
	assert.Equal(t, "true", v)

	now = now.Add(25 * time.Hour)
	_, ok = m.Get(PinVerifiedMarker)
	assert.False(t, ok, "pin_verified lasts a day")

	v, ok = m.Get(DeviceMarker)
	assert.True(t, ok)
	assert.Equal(t, "fp-1", v)
}

func TestMemoryMarkersFlush(t *testing.T) {
	m := NewMemoryMarkers()
	m.Set(DeviceMarker, "fp-1", time.Hour)
	m.Clear(PinVerifiedMarker)

	changes := m.Flush()
	require.Len(t, changes, 2)
	assert.Equal(t, DeviceMarker, changes[0].Name)
	assert.Equal(t, "fp-1", changes[0].Value)
	assert.False(t, changes[0].Cleared)
	assert.Equal(t, PinVerifiedMarker, changes[1].Name)
	assert.True(t, changes[1].Cleared)

	assert.Empty(t, m.Flush())
}

func TestCookieWriter(t *testing.T) {
	m := NewMemoryMarkers()
	m.Set(DeviceMarker, "fp-1", time.Hour)
	m.Clear(PinVerifiedMarker)

	rr := httptest.NewRecorder()
	NewCookieWriter(true, true).Write(rr, m.Flush())

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, DeviceMarker, cookies[0].Name)
	assert.Equal(t, "fp-1", cookies[0].Value)
	assert.Equal(t, "/", cookies[0].Path)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	assert.Equal(t, PinVerifiedMarker, cookies[1].Name)
	assert.Equal(t, -1, cookies[1].MaxAge)
}

func TestMarkersFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DeviceMarker, Value: "fp-9"})
	req.AddCookie(&http.Cookie{Name: "unrelated", Value: "x"})

	m := MarkersFromRequest(req)
	v, ok := m.Get(DeviceMarker)
	assert.True(t, ok)
	assert.Equal(t, "fp-9", v)
	_, ok = m.Get(PinVerifiedMarker)
	assert.False(t, ok)
	assert.Empty(t, m.Flush())
}

func verificationCaches(t *testing.T) map[string]VerificationCache {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]VerificationCache{
		"memory": NewMemoryVerificationCache(time.Hour),
		"redis":  NewRedisVerificationCache(rdb, time.Hour),
	}
}

func TestVerificationCache(t *testing.T) {
	for name, cache := range verificationCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			account := uuid.New()

			ok, err := cache.IsVerified(ctx, account, "fp-1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, cache.Record(ctx, account, "fp-1"))
			ok, err = cache.IsVerified(ctx, account, "fp-1")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = cache.IsVerified(ctx, account, "fp-2")
			require.NoError(t, err)
			assert.False(t, ok, "verification is bound to the device")

			require.NoError(t, cache.Revoke(ctx, account, "fp-1"))
			ok, err = cache.IsVerified(ctx, account, "fp-1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemoryVerificationCacheExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryVerificationCache(time.Hour)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	account := uuid.New()

	require.NoError(t, cache.Record(ctx, account, "fp-1"))
	now = now.Add(2 * time.Hour)
	ok, err := cache.IsVerified(ctx, account, "fp-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

type blockedSet map[string]bool

func (b blockedSet) IsBlocked(ctx context.Context, fingerprint string) (bool, error) {
	return b[fingerprint], nil
}

func TestGuard(t *testing.T) {
	ctx := context.Background()
	account := uuid.New()
	cache := NewMemoryVerificationCache(time.Hour)
	require.NoError(t, cache.Record(ctx, account, "fp-ok"))
	require.NoError(t, cache.Record(ctx, account, "fp-blocked"))
	devices := blockedSet{"fp-blocked": true}

	protected := Guard(devices, cache)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name         string
		user         *client.AuthUser
		marker       bool
		wantStatus   int
		wantReverify bool
		wantBlocked  bool
	}{
		{"verified", &client.AuthUser{AccountID: account, Fingerprint: "fp-ok"}, true, http.StatusNoContent, false, false},
		{"no session", nil, true, http.StatusUnauthorized, false, false},
		{"blocked device", &client.AuthUser{AccountID: account, Fingerprint: "fp-blocked"}, true, http.StatusForbidden, false, true},
		{"marker missing", &client.AuthUser{AccountID: account, Fingerprint: "fp-ok"}, false, http.StatusForbidden, true, false},
		{"forged marker", &client.AuthUser{AccountID: account, Fingerprint: "fp-other"}, true, http.StatusForbidden, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
			if tt.marker {
				req.AddCookie(&http.Cookie{Name: PinVerifiedMarker, Value: "true"})
			}
			if tt.user != nil {
				req = req.WithContext(client.WithAuthUser(req.Context(), tt.user))
			}
			rr := httptest.NewRecorder()
			protected.ServeHTTP(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusNoContent {
				return
			}
			var resp GuardResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantReverify, resp.Reverify)
			assert.Equal(t, tt.wantBlocked, resp.Blocked)
		})
	}
}
