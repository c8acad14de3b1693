package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/iudanet/taskhub/internal/config"
	"github.com/iudanet/taskhub/internal/server"
	"github.com/iudanet/taskhub/internal/server/auth"
	"github.com/iudanet/taskhub/internal/server/cookies"
	"github.com/iudanet/taskhub/internal/server/handlers"
	"github.com/iudanet/taskhub/internal/server/jwt"
	"github.com/iudanet/taskhub/internal/server/mail"
	"github.com/iudanet/taskhub/internal/server/metrics"
	"github.com/iudanet/taskhub/internal/server/middleware"
	"github.com/iudanet/taskhub/internal/server/session"
	"github.com/iudanet/taskhub/internal/server/storage"
	"github.com/iudanet/taskhub/internal/server/storage/boltdb"
	"github.com/iudanet/taskhub/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Show version and exit if requested
	if cfg.ShowVersion {
		printVersion()
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Пользователи всегда в SQLite
	db, err := sqlite.New(ctx, cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", slog.Any("error", err))
		}
	}()

	checks := map[string]handlers.Pinger{"sqlite": db}

	var sessionStore storage.SessionStorage = db
	if cfg.Storage.SessionStore == config.StoreBolt {
		bolt, err := boltdb.New(ctx, cfg.Storage.BoltPath)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		defer func() {
			if err := bolt.Close(); err != nil {
				logger.Error("Failed to close session store", slog.Any("error", err))
			}
		}()
		sessionStore = bolt
		checks["bolt"] = bolt
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tokens, err := jwt.NewService(cfg.Auth.AccessSecret, cfg.Auth.AccessTTL)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	sessionOpts := []session.Option{
		session.WithTTL(cfg.Auth.RefreshTTL),
		session.WithGrace(cfg.Auth.Grace),
		session.WithStoreTimeout(cfg.Auth.StoreTimeout),
		session.WithMetrics(m),
	}
	if cfg.Auth.Retention > 0 {
		sessionOpts = append(sessionOpts, session.WithRetention(cfg.Auth.Retention))
	}
	sessions := session.NewService(sessionStore, logger, sessionOpts...)

	janitor := session.NewJanitor(sessions, cfg.Auth.CleanupInterval, logger)
	janitor.Start(ctx)
	defer janitor.Stop()

	authService := auth.NewService(db, sessions, tokens, mail.NewLogMailer(logger), logger,
		auth.WithClientURL(cfg.ClientURL),
	)

	if cfg.Seed.Email != "" {
		if _, err := authService.EnsureSuperAdmin(ctx, cfg.Seed.Email, cfg.Seed.Name, cfg.Seed.Password); err != nil {
			return fmt.Errorf("failed to seed superadmin: %w", err)
		}
	}

	authLimiter, globalLimiter, closeLimiters, err := newLimiters(ctx, cfg.RateLimit, logger, checks)
	if err != nil {
		return err
	}
	defer closeLimiters()

	jar := cookies.NewJar(cookies.Config{
		RefreshName: cfg.Cookies.RefreshName,
		AccessName:  cfg.Cookies.AccessName,
		Secret:      cfg.Cookies.Secret,
		RefreshTTL:  cfg.Auth.RefreshTTL,
		AccessTTL:   cfg.Auth.AccessTTL,
		Secure:      cfg.Cookies.Secure,
	})
	if !jar.Signing() {
		logger.Warn("COOKIE_SECRET is not set, cookies are not signed")
	}

	handler := server.NewRouter(server.Deps{
		Logger:         logger,
		Auth:           authService,
		Tokens:         tokens,
		Jar:            jar,
		Metrics:        m,
		AuthLimiter:    authLimiter,
		GlobalLimiter:  globalLimiter,
		TrustedProxies: cfg.Server.TrustedProxies,
		Checks:         checks,
		Version:        Version,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			slog.String("addr", cfg.Server.Addr),
			slog.String("version", Version),
			slog.String("session_store", cfg.Storage.SessionStore),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// newLimiters выбирает общий Redis счетчик или счетчик в памяти процесса
func newLimiters(
	ctx context.Context,
	cfg config.RateLimitConfig,
	logger *slog.Logger,
	checks map[string]handlers.Pinger,
) (authLimiter, globalLimiter middleware.Limiter, closeFn func(), err error) {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		checks["redis"] = redisPinger{client}

		authLimiter = middleware.NewRedisLimiter(client, "auth", cfg.Auth, cfg.Window)
		if cfg.Global > 0 {
			globalLimiter = middleware.NewRedisLimiter(client, "global", cfg.Global, cfg.Window)
		}
		return authLimiter, globalLimiter, func() {
			if err := client.Close(); err != nil {
				logger.Error("Failed to close redis client", slog.Any("error", err))
			}
		}, nil
	}

	local := middleware.NewRateLimiter(cfg.Auth, cfg.Window, logger)
	stops := []func(){local.Stop}
	authLimiter = local
	if cfg.Global > 0 {
		global := middleware.NewRateLimiter(cfg.Global, cfg.Window, logger)
		stops = append(stops, global.Stop)
		globalLimiter = global
	}
	return authLimiter, globalLimiter, func() {
		for _, stop := range stops {
			stop()
		}
	}, nil
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func printVersion() {
	fmt.Printf("TaskHub Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
