package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-hris/pkg/account"
	"github.com/tendant/simple-hris/pkg/config"
	"github.com/tendant/simple-hris/pkg/permission"
)

func main() {
	email := flag.String("email", "", "Email for the new account (required)")
	password := flag.String("password", "", "Initial password (required)")
	roles := flag.String("roles", permission.RoleEmployee, "Comma separated roles")
	displayName := flag.String("name", "", "Display name")
	mustChange := flag.Bool("must-change-password", true, "Require a password change at first login")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	roleNames, err := parseRoles(*roles)
	if err != nil {
		slog.Error("Invalid roles", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	persistence := strings.ToLower(cfg.PersistenceType)

	repoConfig := account.RepositoryConfig{DataDir: cfg.DataDir}
	if persistence == "postgres" || persistence == "postgresql" {
		pool, err := pgxpool.New(ctx, cfg.Database.ToDatabaseURL())
		if err != nil {
			slog.Error("Failed creating dbpool", "db", cfg.Database.Database, "host", cfg.Database.Host, "port", cfg.Database.Port, "user", cfg.Database.User)
			os.Exit(1)
		}
		defer pool.Close()
		repoConfig.DB = pool
	}

	repo, err := account.NewAccountRepository(persistence, repoConfig)
	if err != nil {
		slog.Error("Failed to create account repository", "error", err)
		os.Exit(1)
	}

	created, err := account.NewAccountService(repo).CreateAccount(ctx, account.NewAccount{
		Email:              *email,
		DisplayName:        *displayName,
		Password:           *password,
		Roles:              roleNames,
		MustChangePassword: *mustChange,
	})
	if err != nil {
		slog.Error("Failed to create account", "email", *email, "error", err)
		os.Exit(1)
	}

	slog.Info("Account created successfully", "accountID", created.ID, "email", created.Email, "roles", created.Roles, "must_change_password", *mustChange)
}

// parseRoles splits a comma separated list and rejects roles the default
// role table does not know.
func parseRoles(list string) ([]string, error) {
	known := permission.DefaultRoles()
	var out []string
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("unknown role %q", name)
		}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one role is required")
	}
	return out, nil
}
