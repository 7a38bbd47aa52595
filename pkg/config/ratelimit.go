package config

import (
	"time"

	"github.com/tendant/simple-hris/pkg/ratelimit"
)

// RateLimitConfig throttles submissions to the login flow endpoints.
type RateLimitConfig struct {
	Enabled         bool          `env:"LOGIN_RATE_LIMIT_ENABLED" env-default:"true"`
	Burst           int           `env:"LOGIN_RATE_LIMIT_BURST" env-default:"20"`
	PerMinute       float64       `env:"LOGIN_RATE_LIMIT_PER_MINUTE" env-default:"20"`
	DeviceBurst     int           `env:"LOGIN_RATE_LIMIT_DEVICE_BURST" env-default:"10"`
	DevicePerMinute float64       `env:"LOGIN_RATE_LIMIT_DEVICE_PER_MINUTE" env-default:"10"`
	BucketTTL       time.Duration `env:"LOGIN_RATE_LIMIT_BUCKET_TTL" env-default:"1h"`
}

func (c RateLimitConfig) ToRateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		Enabled:         c.Enabled,
		Burst:           c.Burst,
		PerMinute:       c.PerMinute,
		DeviceBurst:     c.DeviceBurst,
		DevicePerMinute: c.DevicePerMinute,
		BucketTTL:       c.BucketTTL,
	}
}
