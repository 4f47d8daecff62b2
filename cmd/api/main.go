package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	figure "github.com/common-nighthawk/go-figure"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/raga-mitra/raga_mitra/internal/auth"
	"github.com/raga-mitra/raga_mitra/internal/config"
	"github.com/raga-mitra/raga_mitra/internal/infra"
	"github.com/raga-mitra/raga_mitra/internal/logging"
	"github.com/raga-mitra/raga_mitra/internal/server"
	"github.com/raga-mitra/raga_mitra/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	figure.NewFigure(cfg.AppName, "cybermedium", true).Print()
	fmt.Println()

	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		err = infra.Retry(ctx, logger, "postgres", func(ctx context.Context) error {
			var err error
			db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, 0)
			return err
		})
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := infra.Migrate(ctx, db, migrations.Files, logger); err != nil {
			logger.Error("apply migrations", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("DATABASE_URL not set, accounts are kept in memory")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		err = infra.Retry(ctx, logger, "redis", func(ctx context.Context) error {
			var err error
			cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
			return err
		})
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set, codes and lockouts are kept in memory")
	}

	var provider auth.PhoneTokenVerifier
	if cfg.ProviderIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.ProviderIssuer, cfg.ProviderAudience)
		if err != nil {
			logger.Error("identity provider discovery", "error", err)
			os.Exit(1)
		}
		provider = v
	}

	srv, err := server.New(cfg, db, cache, provider, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Address(), "env", cfg.AppEnv)
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
