package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	_ "github.com/tabledeck/tabledeck-engine/pkg/adapters/provider/convex"
	_ "github.com/tabledeck/tabledeck-engine/pkg/adapters/provider/neon"
	_ "github.com/tabledeck/tabledeck-engine/pkg/adapters/provider/planetscale"
	_ "github.com/tabledeck/tabledeck-engine/pkg/adapters/provider/supabase"
	_ "github.com/tabledeck/tabledeck-engine/pkg/adapters/provider/turso"
	"github.com/tabledeck/tabledeck-engine/pkg/audit"
	"github.com/tabledeck/tabledeck-engine/pkg/auth"
	"github.com/tabledeck/tabledeck-engine/pkg/config"
	"github.com/tabledeck/tabledeck-engine/pkg/crypto"
	"github.com/tabledeck/tabledeck-engine/pkg/database"
	"github.com/tabledeck/tabledeck-engine/pkg/handlers"
	"github.com/tabledeck/tabledeck-engine/pkg/metrics"
	"github.com/tabledeck/tabledeck-engine/pkg/middleware"
	"github.com/tabledeck/tabledeck-engine/pkg/models"
	"github.com/tabledeck/tabledeck-engine/pkg/oauth"
	"github.com/tabledeck/tabledeck-engine/pkg/ratelimit"
	"github.com/tabledeck/tabledeck-engine/pkg/repositories"
	"github.com/tabledeck/tabledeck-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	logger.Info("Starting tabledeck-engine",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.Strings("providers", providerNames()),
	)

	if err := applyMigrations(cfg, logger); err != nil {
		return err
	}

	db, err := database.Connect(ctx, cfg.Database.ConnectionString(), cfg.Database.MaxConnections)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	limiter, err := buildLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}

	cipher, err := crypto.NewCredentialCipher(cfg.CredentialsKey)
	if err != nil {
		return fmt.Errorf("credentials key: %w", err)
	}

	integrationRepo := repositories.NewIntegrationRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	trail := audit.NewTrail(auditRepo, cfg.Audit.BufferSize, logger)
	defer trail.Close()

	validator, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		return fmt.Errorf("jwks client: %w", err)
	}
	authMW := auth.NewMiddleware(validator, logger)
	cookies := auth.DeriveCookieSettings(cfg.BaseURL, cfg.CookieDomain)

	factory := provider.NewFactory(logger)
	adapterTimeout := time.Duration(cfg.Adapter.TimeoutSeconds) * time.Second

	guard := services.NewAccessGuard(integrationRepo, limiter, logger)
	integrationSvc := services.NewIntegrationService(integrationRepo, cipher, factory, trail, adapterTimeout, logger)
	dataSvc := services.NewDataService(guard, cipher, factory, trail, adapterTimeout, logger)

	exchangers, err := buildExchangers(cfg, logger)
	if err != nil {
		return err
	}

	metrics.Init()
	includeDetails := !cfg.IsProduction()

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg.Version, cfg.Env).RegisterRoutes(mux)
	handlers.NewIntegrationsHandler(integrationSvc, authMW, logger, includeDetails).RegisterRoutes(mux)
	handlers.NewDataHandler(dataSvc, authMW, logger, includeDetails).RegisterRoutes(mux)
	handlers.NewOAuthHandler(integrationSvc, exchangers, authMW, cookies, logger, includeDetails).RegisterRoutes(mux)
	handlers.NewAuditHandler(auditRepo, authMW, logger, includeDetails).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", zap.String("addr", server.Addr))
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// applyMigrations runs the engine's own schema migrations over a short-lived
// database/sql handle, which is what the migrate driver wants.
func applyMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, cfg.MigrationsPath, logger); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// buildLimiter prefers the shared Redis counter and falls back to the
// in-process limiter when Redis is not configured.
func buildLimiter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ratelimit.Limiter, error) {
	window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	max := cfg.RateLimit.MaxOperations

	client, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	if client == nil {
		logger.Info("Rate limiter using in-process counters (no Redis configured)")
		return ratelimit.NewMemoryLimiter(window, max, time.Now), nil
	}
	logger.Info("Rate limiter using Redis", zap.String("host", cfg.Redis.Host))
	return ratelimit.NewRedisLimiter(client, window, max), nil
}

func buildExchangers(cfg *config.Config, logger *zap.Logger) (map[models.Provider]*oauth.Exchanger, error) {
	exchangers := make(map[models.Provider]*oauth.Exchanger)
	registrations := map[models.Provider]config.OAuthProviderConfig{
		models.ProviderNeon:   cfg.OAuth.Neon,
		models.ProviderConvex: cfg.OAuth.Convex,
	}
	for p, reg := range registrations {
		if !reg.Configured() {
			continue
		}
		redirectURI := fmt.Sprintf("%s/api/oauth/%s/callback", cfg.BaseURL, p)
		exchanger, err := oauth.NewExchanger(p, reg, redirectURI, logger)
		if err != nil {
			return nil, fmt.Errorf("oauth %s: %w", p, err)
		}
		exchangers[p] = exchanger
		logger.Info("OAuth provider configured", zap.String("provider", string(p)))
	}
	return exchangers, nil
}

func providerNames() []string {
	infos := provider.Registered()
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, string(info.Provider))
	}
	return names
}
