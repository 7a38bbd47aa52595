package config

import "time"

// SessionConfig configures the session tokens issued once the login flow completes.
type SessionConfig struct {
	Secret   string        `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Issuer   string        `env:"JWT_ISSUER" env-default:"simple-hris"`
	Audience string        `env:"JWT_AUDIENCE" env-default:"simple-hris"`
	TTL      time.Duration `env:"SESSION_TTL" env-default:"8h"`
}

// CookieConfig controls the attributes of the cookies written by the service.
type CookieConfig struct {
	HttpOnly bool `env:"COOKIE_HTTP_ONLY" env-default:"true"`
	Secure   bool `env:"COOKIE_SECURE" env-default:"true"`
}
