package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-hris/pkg/account"
	"github.com/tendant/simple-hris/pkg/bootstrap"
	"github.com/tendant/simple-hris/pkg/client"
	"github.com/tendant/simple-hris/pkg/config"
	"github.com/tendant/simple-hris/pkg/device"
	deviceapi "github.com/tendant/simple-hris/pkg/device/api"
	"github.com/tendant/simple-hris/pkg/lockout"
	"github.com/tendant/simple-hris/pkg/loginflow"
	loginflowapi "github.com/tendant/simple-hris/pkg/loginflow/api"
	"github.com/tendant/simple-hris/pkg/metrics"
	"github.com/tendant/simple-hris/pkg/notice"
	"github.com/tendant/simple-hris/pkg/permission"
	"github.com/tendant/simple-hris/pkg/pin"
	pinapi "github.com/tendant/simple-hris/pkg/pin/api"
	"github.com/tendant/simple-hris/pkg/ratelimit"
	"github.com/tendant/simple-hris/pkg/session"
	"github.com/tendant/simple-hris/pkg/trust"
)

type statusResponse struct {
	Status    string `json:"status"`
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

func main() {
	config.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(-1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     cfg.LogLevelValue(),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	persistence := strings.ToLower(cfg.PersistenceType)

	var pool *pgxpool.Pool
	if persistence == "postgres" || persistence == "postgresql" {
		pool, err = pgxpool.New(ctx, cfg.Database.ToDatabaseURL())
		if err != nil {
			slog.Error("Failed creating dbpool", "db", cfg.Database.Database, "host", cfg.Database.Host, "port", cfg.Database.Port, "user", cfg.Database.User, "schema", cfg.Database.Schema)
			os.Exit(-1)
		}
		defer pool.Close()
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("Invalid REDIS_URL", "error", err)
			os.Exit(-1)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Error("Failed to connect to redis", "addr", opts.Addr, "error", err)
			os.Exit(-1)
		}
		defer redisClient.Close()
	}

	m, err := metrics.New(metrics.Options{})
	if err != nil {
		slog.Error("Failed to register metrics", "error", err)
		os.Exit(-1)
	}

	// Repositories
	accountRepo, err := account.NewAccountRepository(persistence, account.RepositoryConfig{DB: pool, DataDir: cfg.DataDir})
	if err != nil {
		slog.Error("Failed to create account repository", "error", err)
		os.Exit(-1)
	}
	deviceRepo, err := device.NewDeviceRepository(persistence, device.RepositoryConfig{DB: pool, DataDir: cfg.DataDir})
	if err != nil {
		slog.Error("Failed to create device repository", "error", err)
		os.Exit(-1)
	}
	pinRepo, err := pin.NewPinRepository(persistence, pin.RepositoryConfig{DB: pool, DataDir: cfg.DataDir})
	if err != nil {
		slog.Error("Failed to create PIN repository", "error", err)
		os.Exit(-1)
	}

	// Shared stores: Redis when configured, process memory otherwise
	var (
		attempts      lockout.AttemptStore
		verifications trust.VerificationCache
		revocations   session.RevocationStore
	)
	if redisClient != nil {
		attempts = lockout.NewRedisStore(redisClient)
		verifications = trust.NewRedisVerificationCache(redisClient, cfg.Security.PinVerifiedTTL)
		revocations = session.NewRedisRevocationStore(redisClient)
	} else {
		attempts = lockout.NewMemoryStore()
		verifications = trust.NewMemoryVerificationCache(cfg.Security.PinVerifiedTTL)
		revocations = session.NewMemoryRevocationStore()
	}

	var notifier notice.DeviceBlockedNotifier = notice.NewNoopNotifier()
	if cfg.Email.Enabled() {
		emailNotifier, err := notice.NewEmailNotifier(cfg.Email.ToSMTPConfig())
		if err != nil {
			slog.Error("Failed to initialize email notifier, block notices disabled", "error", err)
		} else {
			notifier = emailNotifier
		}
	}

	// Services
	accountService := account.NewAccountService(accountRepo)
	deviceService := device.NewDeviceService(deviceRepo,
		device.WithNotifier(notifier, accountService),
		device.WithMetrics(m),
	)
	pinService := pin.NewPinService(pinRepo, pin.WithMetrics(m))

	cookies := trust.NewCookieWriter(cfg.Cookie.HttpOnly, cfg.Cookie.Secure)
	sessionManager, err := session.NewManager(session.Config{
		Secret:   cfg.Session.Secret,
		Issuer:   cfg.Session.Issuer,
		Audience: cfg.Session.Audience,
		TTL:      cfg.Session.TTL,
	}, revocations, session.WithCookieWriter(cookies))
	if err != nil {
		slog.Error("Failed to create session manager", "error", err)
		os.Exit(-1)
	}

	checker := permission.NewRoleChecker(accountService, nil)

	if cfg.Admin.Enabled() {
		result, err := bootstrap.BootstrapAdmin(ctx, bootstrap.AdminBootstrapConfig{
			Email:       cfg.Admin.Email,
			DisplayName: cfg.Admin.DisplayName,
			Password:    cfg.Admin.Password,
			Accounts:    accountService,
		})
		if err != nil {
			slog.Error("Admin bootstrap failed", "error", err)
			os.Exit(-1)
		}
		bootstrap.PrintBootstrapResult(os.Stdout, result)
		bootstrap.LogBootstrapSummary(result)
	}

	flowService := loginflow.NewService(loginflow.Dependencies{
		Accounts:      accountService,
		Devices:       deviceService,
		Pins:          pinService,
		Sessions:      sessionManager,
		Verifications: verifications,
		Attempts:      attempts,
	}, loginflow.Config{
		ProtectedPath:   cfg.Paths.ProtectedPath,
		LoginPath:       cfg.Paths.LoginPath,
		MaxPinAttempts:  cfg.Security.MaxPinAttempts,
		BlockGrace:      cfg.Security.BlockGracePeriod,
		DeviceMarkerTTL: cfg.Security.DeviceMarkerTTL,
		PinVerifiedTTL:  cfg.Security.PinVerifiedTTL,
	}, loginflow.WithMetrics(m))
	flows := loginflow.NewRegistry(cfg.Security.FlowIdleTimeout)
	go flows.Run(ctx, time.Minute)

	throttle := ratelimit.NewMiddleware(cfg.RateLimit.ToRateLimitConfig())
	go throttle.Run(ctx, 10*time.Minute)

	// Handlers
	loginFlowHandle := loginflowapi.NewLoginFlowHandler(flowService, flows, sessionManager,
		loginflowapi.WithCookieWriter(cookies),
		loginflowapi.WithVerificationCache(verifications),
	)
	deviceHandle := deviceapi.NewDeviceHandler(deviceService)
	pinHandle := pinapi.NewPinHandler(pinService, deviceService,
		pinapi.WithLockout(attempts, lockout.WithThreshold(cfg.Security.MaxPinAttempts)),
		pinapi.WithVerificationRecorder(verifications),
	)

	server := app.DefaultApp()
	app.RegisterHealthzRoutes(server.R)

	server.R.Use(m.Handler)
	server.R.Handle("/metrics", promhttp.Handler())

	server.R.Group(func(r chi.Router) {
		r.Use(sessionManager.Authenticator)

		r.Mount("/api/v1/hris/devices", deviceapi.Handler(deviceHandle, checker))

		r.Group(func(r chi.Router) {
			r.Use(throttle.Handler)
			r.Mount("/api/v1/hris/auth", loginflowapi.Handler(loginFlowHandle))
			r.Mount("/api/v1/hris/pin", pinapi.Handler(pinHandle, checker))
		})

		// Everything under the protected path needs a session plus a PIN
		// verification from a device that is not blocked.
		r.Route(cfg.Paths.ProtectedPath, func(r chi.Router) {
			r.Use(client.RequireAuth)
			r.Use(trust.Guard(deviceService, verifications))
			r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
				authUser, _ := client.GetAuthUser(r.Context())
				render.JSON(w, r, statusResponse{
					Status:    "ok",
					AccountID: authUser.AccountID.String(),
					Email:     authUser.Email,
				})
			})
		})
	})

	slog.Info("hris-guard starting",
		"persistence", persistence,
		"redis", cfg.Redis.Enabled(),
		"protected_path", cfg.Paths.ProtectedPath,
		"max_pin_attempts", cfg.Security.MaxPinAttempts)

	server.Run()
}
