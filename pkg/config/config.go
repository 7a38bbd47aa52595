package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
)

// Config is the root configuration of the hris-guard service.
type Config struct {
	BaseUrl         string `env:"BASE_URL" env-default:"http://localhost:4000"`
	LogLevel        string `env:"LOG_LEVEL" env-default:"info"`
	PersistenceType string `env:"PERSISTENCE_TYPE" env-default:"postgres"`
	DataDir         string `env:"DATA_DIR" env-default:"./data"`

	AppConfig app.AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	Cookie    CookieConfig
	Security  SecurityConfig
	Email     EmailConfig
	Paths     PathConfig
	RateLimit RateLimitConfig
	Admin     AdminConfig
}

// PathConfig holds the redirect targets of the login flow.
type PathConfig struct {
	ProtectedPath string `env:"PROTECTED_PATH" env-default:"/dashboard"`
	LoginPath     string `env:"LOGIN_PATH" env-default:"/login"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints cleanenv cannot express.
func (c Config) Validate() error {
	switch strings.ToLower(c.PersistenceType) {
	case "postgres", "postgresql", "file", "memory":
	default:
		return fmt.Errorf("unsupported PERSISTENCE_TYPE %q (supported: postgres, file, memory)", c.PersistenceType)
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	return c.Security.Validate()
}

// LogLevelValue converts LogLevel to a slog level, defaulting to info.
func (c Config) LogLevelValue() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// LoadEnvFile loads environment variables from a .env file if it exists.
// Only sets variables that are not already set in the environment.
func LoadEnvFile() {
	execPath, err := os.Executable()
	if err != nil {
		slog.Error("Failed to get executable path", "error", err)
		return
	}

	envFile := filepath.Join(filepath.Dir(execPath), ".env")
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		cwd, err := os.Getwd()
		if err != nil {
			slog.Error("Failed to get current working directory", "error", err)
			return
		}
		envFile = filepath.Join(cwd, ".env")
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Info("No .env file found", "path", envFile)
		return
	}

	if err := godotenv.Load(envFile); err != nil {
		slog.Error("Failed to load .env file", "error", err, "path", envFile)
		return
	}
	slog.Info("Configuration loaded from .env file", "path", envFile)
}
