// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/TatyOko28/refresh-system/internal/admin"
	"github.com/TatyOko28/refresh-system/internal/auth"
	"github.com/TatyOko28/refresh-system/internal/config"
	"github.com/TatyOko28/refresh-system/internal/core"
	"github.com/TatyOko28/refresh-system/internal/health"
	"github.com/TatyOko28/refresh-system/internal/integrations"
	"github.com/TatyOko28/refresh-system/internal/middleware"
	"github.com/TatyOko28/refresh-system/internal/referral"
	"github.com/TatyOko28/refresh-system/internal/server"
	"github.com/TatyOko28/refresh-system/internal/user"
)

const (
	drainDelay         = 5 * time.Second
	tokenPurgeInterval = time.Hour
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

// backends are the long-lived connections shared by every component.
type backends struct {
	db      *core.Database
	redis   *redis.Client
	cache   *core.RedisCache
	tracing core.ShutdownFunc
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	b, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv, authSvc, err := assemble(cfg, b, logger)
	if err != nil {
		b.close(context.Background(), logger)
		return err
	}

	go purgeExpiredTokens(ctx, authSvc, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		b.close(context.Background(), logger)
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	b.close(shutdownCtx, logger)

	logger.Info("application stopped")
	return nil
}

func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	tracing, err := core.SetupTracing(ctx, cfg.Otel, cfg.App)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
		tracing = func(context.Context) error { return nil }
	}

	if cfg.Database.AutoMigrate {
		if err := core.Migrate(cfg.Database.URL); err != nil {
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	db, err := core.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"tx_attempts", cfg.Database.TxAttempts,
	)

	rdb, err := core.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close() //nolint:errcheck // startup already failed
		return nil, err
	}
	logger.Info("redis connected", "pool_size", cfg.Redis.PoolSize)

	return &backends{
		db:      db,
		redis:   rdb,
		cache:   core.NewRedisCache(rdb, cfg.App.Name+":"),
		tracing: tracing,
	}, nil
}

func (b *backends) close(ctx context.Context, logger *slog.Logger) {
	if err := b.tracing(ctx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}
	if err := b.redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}
	if err := b.db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}
}

// assemble builds every service and mounts its routes under /v1.
func assemble(cfg *config.Config, b *backends, logger *slog.Logger) (*server.Server, *auth.Service, error) {
	signer, err := auth.LoadSigner(cfg.Token)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("token signer loaded", "algorithm", "ES256", "key_id", signer.KeyID())

	users := user.NewService(user.NewRepository(b.db))
	authSvc := auth.NewService(users, auth.NewTokenStore(b.db), signer, b.cache, cfg.Token, logger)
	if cfg.OAuth.Google.Enabled() {
		authSvc.WithGoogle(auth.NewGoogleAuthenticator(cfg.OAuth.Google))
		logger.Info("google sign-in enabled")
	}

	var verifier referral.EmailVerifier
	if cfg.Integrations.EmailHunter.Enabled {
		verifier = integrations.NewEmailHunter(cfg.Integrations.EmailHunter)
	}

	store := referral.NewStore(b.db, user.NewDirectory)
	generator := referral.NewGenerator(cfg.Referral.CodeLength, cfg.Referral.MaxGenerationAttempts)
	manager := referral.NewManager(store, b.cache, generator, cfg.Referral, logger)
	registrar := referral.NewRegistrar(manager, verifier, cfg.Referral, logger)
	stats := referral.NewStatsAggregator(store, b.cache, cfg.Referral, logger)

	healthHandler := health.NewHandler(
		health.Dependency{Name: "database", Checker: b.db},
		health.Dependency{Name: "redis", Checker: b.cache},
	)

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(middleware.NewRateLimiter(b.redis, middleware.RateLimitConfig{
		Limit:    middleware.Per(cfg.RateLimit.Requests, cfg.RateLimit.Burst, cfg.RateLimit.Window),
		FailOpen: true,
	}).Handler)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)
	router.Get("/.well-known/jwks.json", signer.JWKS)

	authenticate := middleware.Authenticate(authSvc)
	if cfg.Integrations.Clearbit.Enabled {
		enricher := integrations.NewEnricher(
			integrations.NewClearbit(cfg.Integrations.Clearbit),
			users,
			b.cache,
			cfg.Integrations.Clearbit.CacheTTL,
			logger,
		)
		verify := authenticate
		authenticate = func(next http.Handler) http.Handler {
			return verify(enricher.Middleware(next))
		}
	}

	registerLimiter := middleware.NewRateLimiter(b.redis, middleware.RateLimitConfig{
		Limit:    middleware.PerMinute(cfg.Referral.RegisterRateLimit, cfg.Referral.RegisterRateLimit),
		KeyFunc:  middleware.KeyByIPAndEndpoint,
		FailOpen: true,
	}).Handler

	router.Route("/v1", func(r chi.Router) {
		auth.NewHandler(authSvc).RegisterRoutes(r, authenticate)
		user.NewHandler(users).RegisterRoutes(r, authenticate)
		referral.NewHandler(
			manager,
			registrar,
			stats,
			authSvc,
			cfg.Referral.DefaultCodeTTL,
			logger,
		).RegisterRoutes(r, authenticate, registerLimiter)
		admin.NewHandler(stats, b.db, b.cache).RegisterRoutes(r, authenticate, middleware.RequireAdmin)
	})

	return srv, authSvc, nil
}

func purgeExpiredTokens(ctx context.Context, svc *auth.Service, logger *slog.Logger) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("refresh token purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged expired refresh tokens", "count", n)
			}
		}
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
