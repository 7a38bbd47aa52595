// Package config loads simple-hris configuration from the environment.
//
// Configuration is expressed as env-tagged structs read with cleanenv. A .env
// file next to the executable (or in the working directory) is loaded first
// with godotenv; variables already present in the environment win.
//
// # Basic Usage
//
//	config.LoadEnvFile()
//	cfg, err := config.Load()
//	if err != nil {
//		slog.Error("invalid configuration", "err", err)
//		os.Exit(-1)
//	}
//	pool, err := pgxpool.New(ctx, cfg.Database.ToDatabaseURL())
//
// # Security settings
//
// SecurityConfig carries the PIN and device trust parameters of the login
// flow: PIN length, the failed-attempt threshold, the grace delay before a
// forced sign-out and the lifetimes of the device_id and pin_verified markers.
package config
