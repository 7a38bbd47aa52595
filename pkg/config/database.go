package config

import (
	"fmt"
)

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host     string `env:"HRIS_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"HRIS_PG_PORT" env-default:"5432"`
	Database string `env:"HRIS_PG_DATABASE" env-default:"hris_db"`
	User     string `env:"HRIS_PG_USER" env-default:"hris"`
	Password string `env:"HRIS_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"HRIS_PG_SCHEMA" env-default:"public"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		d.User, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

// RedisConfig holds the Redis connection used by the lockout counter,
// the verification cache and session revocation. An empty URL keeps all
// of them in process memory.
type RedisConfig struct {
	URL string `env:"REDIS_URL" env-default:""`
}

// Enabled reports whether a Redis URL is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}
