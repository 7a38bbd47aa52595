package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/tendant/simple-hris/pkg/device"
)

// Config holds the login throttle settings.
type Config struct {
	Enabled bool
	// Burst and PerMinute apply to each client address
	Burst     int
	PerMinute float64
	// DeviceBurst and DevicePerMinute apply to each device fingerprint
	DeviceBurst     int
	DevicePerMinute float64
	// BucketTTL is how long an idle bucket is kept
	BucketTTL time.Duration
}

// DefaultConfig allows a short burst of submissions and a sustained rate well
// above what a person typing a password or PIN produces.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Burst:           20,
		PerMinute:       20,
		DeviceBurst:     10,
		DevicePerMinute: 10,
		BucketTTL:       time.Hour,
	}
}

type errorResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Limit      string `json:"limit"`
	RetryAfter int    `json:"retry_after_seconds"`
}

// Middleware throttles requests by client address and by device fingerprint.
type Middleware struct {
	config   Config
	byIP     *Limiter
	byDevice *Limiter
}

func NewMiddleware(config Config) *Middleware {
	return &Middleware{
		config:   config,
		byIP:     NewLimiter(config.Burst, config.PerMinute, config.BucketTTL),
		byDevice: NewLimiter(config.DeviceBurst, config.DevicePerMinute, config.BucketTTL),
	}
}

// Handler is the chi middleware.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		ip := ClientIP(r)
		if ok, wait := m.byIP.Allow(ip); !ok {
			m.reject(w, r, "ip", ip, wait)
			return
		}

		fingerprint := device.GetRequestFingerprint(r)
		if ok, wait := m.byDevice.Allow(fingerprint); !ok {
			m.reject(w, r, "device", fingerprint, wait)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, limit, key string, wait time.Duration) {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	slog.Warn("Rate limit exceeded", "limit", limit, "key", key, "path", r.URL.Path, "method", r.Method)

	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	render.Status(r, http.StatusTooManyRequests)
	render.JSON(w, r, errorResponse{
		Status:     "error",
		Message:    "Too many requests. Please try again later.",
		Limit:      limit,
		RetryAfter: seconds,
	})
}

// Sweep drops idle buckets of both limiters.
func (m *Middleware) Sweep() int {
	return m.byIP.Sweep() + m.byDevice.Sweep()
}

// Run sweeps every interval until ctx is done.
func (m *Middleware) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// ClientIP returns the first X-Forwarded-For address, then X-Real-IP, then
// the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
