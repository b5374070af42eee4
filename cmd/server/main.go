package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"pdv/backend/internal/cache"
	"pdv/backend/internal/cart"
	"pdv/backend/internal/config"
	"pdv/backend/internal/events"
	"pdv/backend/internal/httpapi"
	"pdv/backend/internal/service"
	"pdv/backend/internal/store"
	"pdv/backend/internal/store/memory"
	pgstore "pdv/backend/internal/store/postgres"
)

const eventProducer = "pdv-backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger := newLogger(cfg.LogFormat, cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Error("invalid security configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("close error", slog.Any("error", err))
			}
		}
	}()

	if cfg.DatabaseURL != "" {
		if err := pgstore.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			return err
		}
		pg, err := pgstore.New(setupCtx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository ready", slog.String("backend", "postgres"))
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository ready", slog.String("backend", "memory"))
	}

	snapshots := cache.CartCache(cache.NoopCartCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCartCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(setupCtx); err != nil {
			logger.Warn("redis unavailable, cart snapshots disabled", slog.Any("error", err))
			_ = redisCache.Close()
		} else {
			snapshots = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cart snapshots ready", slog.String("backend", "redis"))
		}
	}

	publisher := events.Publisher(events.Noop{})
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			logger.Warn("rabbitmq unavailable, domain events disabled", slog.Any("error", err))
		} else {
			closers = append(closers, conn.Close)
			rabbit, err := events.NewRabbitPublisher(conn, eventProducer)
			if err != nil {
				logger.Warn("rabbitmq publisher setup failed, domain events disabled", slog.Any("error", err))
			} else {
				publisher = rabbit
				closers = append(closers, rabbit.Close)
				logger.Info("domain events ready", slog.String("backend", "rabbitmq"))
			}
		}
	}

	carts := cart.NewStore(snapshots, cfg.CartTTL, logger)
	svc := service.New(repo, carts, publisher, logger)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL, repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Production:    cfg.IsProduction(),
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("PDV backend listening", slog.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		runSweeper(groupCtx, cfg.CartSweepInterval, carts.Sweep, logger)
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(groupCtx), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// runSweeper evicts idle carts on every tick until ctx is done.
func runSweeper(ctx context.Context, interval time.Duration, sweep func(context.Context) int, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := sweep(ctx); removed > 0 {
				logger.Info("idle carts evicted", slog.Int("count", removed))
			}
		}
	}
}

func newLogger(format string, level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.IsProduction() && strings.TrimSpace(cfg.AllowedOrigin) == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name an origin in production")
	}
	if cfg.CartSweepInterval <= 0 {
		return fmt.Errorf("CART_SWEEP_INTERVAL must be positive")
	}
	return nil
}
