package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tb := NewTokenBucket(5, 1.0, start)

	for i := 0; i < 5; i++ {
		assert.True(t, tb.Allow(start), "request %d", i+1)
	}
	assert.False(t, tb.Allow(start))
	assert.Equal(t, time.Second, tb.RetryAfter(start))

	later := start.Add(2 * time.Second)
	assert.True(t, tb.Allow(later))
	assert.True(t, tb.Allow(later))
	assert.False(t, tb.Allow(later))

	// never refills beyond capacity
	much := later.Add(time.Hour)
	for i := 0; i < 5; i++ {
		assert.True(t, tb.Allow(much))
	}
	assert.False(t, tb.Allow(much))
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewLimiter(2, 60, time.Minute)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, wait := l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = l.Allow("b")
	assert.True(t, ok)

	l.Reset("a")
	ok, _ = l.Allow("a")
	assert.True(t, ok)
}

func TestLimiterSweep(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewLimiter(2, 60, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(45 * time.Second)
	l.Allow("new")
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestMiddlewareRejectsWithRetryAfter(t *testing.T) {
	m := NewMiddleware(Config{
		Enabled:         true,
		Burst:           2,
		PerMinute:       2,
		DeviceBurst:     10,
		DevicePerMinute: 10,
		BucketTTL:       time.Hour,
	})
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip, fingerprint string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = ip + ":52100"
		req.Header.Set("X-Device-Fingerprint", fingerprint)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1", "fp-1").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1", "fp-2").Code)

	rr := send("10.0.0.1", "fp-3")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "30", rr.Header().Get("Retry-After"))
	var body errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ip", body.Limit)

	assert.Equal(t, http.StatusOK, send("10.0.0.2", "fp-1").Code)
}

func TestMiddlewareLimitsDevice(t *testing.T) {
	m := NewMiddleware(Config{
		Enabled:         true,
		Burst:           100,
		PerMinute:       100,
		DeviceBurst:     1,
		DevicePerMinute: 1,
		BucketTTL:       time.Hour,
	})
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/pin/verify", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113."+string(rune('1'+i))+", 10.0.0.1")
		req.Header.Set("X-Device-Fingerprint", "fp-shared")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Code)
	}
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	m := NewMiddleware(Config{})
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4242"
	assert.Equal(t, "192.0.2.7", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.3")
	assert.Equal(t, "198.51.100.3", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}
