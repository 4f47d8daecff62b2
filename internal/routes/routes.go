package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/raga-mitra/raga_mitra/internal/auth"
	"github.com/raga-mitra/raga_mitra/internal/config"
	"github.com/raga-mitra/raga_mitra/internal/identity"
	"github.com/raga-mitra/raga_mitra/internal/lockout"
	"github.com/raga-mitra/raga_mitra/internal/middleware"
	"github.com/raga-mitra/raga_mitra/internal/notification"
	"github.com/raga-mitra/raga_mitra/internal/verification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Provider auth.PhoneTokenVerifier
	Sender   notification.Sender
	Logger   *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Sender == nil {
		d.Sender = notification.NewLoggerSender(d.Logger)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Stores: Postgres and Redis when configured, memory otherwise (development only).
	var (
		identityRepo identity.Repository
		lockStore    lockout.Store
		codeStore    verification.Store
	)
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	if d.Cache != nil {
		lockStore = lockout.NewRedisStore(d.Cache)
		codeStore = verification.NewRedisStore(d.Cache)
	} else {
		lockStore = lockout.NewMemoryStore()
		codeStore = verification.NewMemoryStore()
	}

	policy := lockout.NewPolicy(lockStore,
		lockout.WithThreshold(d.Cfg.LockoutThreshold),
		lockout.WithDuration(d.Cfg.LockoutDuration),
	)
	identitySvc := identity.NewService(identityRepo, policy, d.Cfg.PINLength)
	codeSvc := verification.NewService(codeStore, d.Sender, verification.Config{
		CodeLength:  d.Cfg.CodeLength,
		TTL:         d.Cfg.CodeTTL,
		MaxAttempts: d.Cfg.CodeMaxAttempts,
	}, d.Logger)
	tokens := auth.NewTokens(d.Cfg.JWTSecret, d.Cfg.SessionTTL)
	authSvc := auth.NewService(identitySvc, codeSvc, tokens, d.Provider, d.Cfg.DefaultCountryCode, d.Logger)
	authHandler := auth.NewHandler(authSvc)

	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAuthRoutes(app, authHandler, AuthLimits{
		SendCode: middleware.PhoneRateLimit(d.Cache, "send-code", d.Cfg.DefaultCountryCode, d.Cfg.SendCodePerMinute),
		Login:    middleware.PhoneRateLimit(d.Cache, "login", d.Cfg.DefaultCountryCode, d.Cfg.LoginPerMinute),
		Session:  middleware.JWTAuth(authSvc),
	})

	return nil
}
