package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/taskhub/pkg/api"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/config"
	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/middleware"
	"github.com/platinummonkey/taskhub/pkg/observability"
	"github.com/platinummonkey/taskhub/pkg/orgs"
	"github.com/platinummonkey/taskhub/pkg/rbac"
	"github.com/platinummonkey/taskhub/pkg/resources"
	"github.com/platinummonkey/taskhub/pkg/sso"
	"github.com/platinummonkey/taskhub/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// app is everything serve starts and later tears down.
type app struct {
	api      *http.Server
	health   *http.Server
	watcher  *rbac.CatalogWatcher
	jobs     *orgs.Maintenance
	shutdown *observability.ShutdownManager
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	a.jobs.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", a.api.Addr).Info("Starting API server")
		return listen(a.api)
	})
	g.Go(func() error {
		logger.WithField("addr", a.health.Addr).Info("Starting health server")
		return listen(a.health)
	})
	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		return a.shutdown.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server exited with error")
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", srv.Addr, err)
	}
	return nil
}

// build wires storage, services and both HTTP servers. Everything that holds
// a resource is registered with the returned shutdown manager; on error the
// already registered parts are released.
func build(ctx context.Context, cfg *config.Config, logger *observability.Logger) (a *app, err error) {
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	defer func() {
		if err != nil {
			_ = shutdown.Shutdown(context.Background())
		}
	}()

	// Telemetry
	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return nil, err
	}
	if providers != nil {
		shutdown.Register("opentelemetry", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	if providers != nil {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			return nil, err
		}
		metrics.WithOTel(otelMetrics)
	}

	// Storage
	opened, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	shutdown.RegisterCloser("storage", opened.Close)
	if opened.PoolStats != nil {
		registry.MustRegister(observability.NewDBPoolCollector(opened.PoolStats))
	}

	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		redisClient, err = storage.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		shutdown.RegisterCloser("redis", redisClient.Close)
	}

	var auditLogger *audit.LogrusLogger
	if cfg.Authz.AuditLogPath != "" {
		if auditLogger, err = audit.NewFileLogger(cfg.Authz.AuditLogPath); err != nil {
			return nil, err
		}
	} else {
		auditLogger = audit.NewLogrusLogger(os.Stdout)
	}
	shutdown.RegisterCloser("audit log", auditLogger.Close)

	// Authentication
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		// Only reachable in development; config validation rejects it elsewhere.
		if secret, err = randomSecret(); err != nil {
			return nil, err
		}
		logger.Warn("TASKHUB_JWT_SECRET is unset, using a random secret; sessions will not survive a restart")
	}
	tokens := auth.NewTokenManager([]byte(secret), cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	authService := auth.NewService(opened, tokens, auditLogger)

	ssoRegistry, err := sso.NewRegistryFromConfig(ctx, ssoConfig(cfg.Auth))
	if err != nil {
		return nil, err
	}

	// Authorization
	rbacCfg := rbac.Config{CollaboratorMode: cfg.Authz.CollaboratorMode, Recorder: metrics}
	var watcher *rbac.CatalogWatcher
	switch {
	case cfg.Authz.CatalogFile != "" && cfg.Authz.WatchCatalog:
		if watcher, err = rbac.NewCatalogWatcher(cfg.Authz.CatalogFile, logger); err != nil {
			return nil, err
		}
		watcher.OnReload = metrics.RecordCatalogReload
		rbacCfg.Catalog = watcher
	case cfg.Authz.CatalogFile != "":
		catalog, err := rbac.LoadCatalog(cfg.Authz.CatalogFile)
		if err != nil {
			return nil, err
		}
		rbacCfg.Catalog = catalog
	}
	manager := rbac.NewManager(opened, auditLogger, rbacCfg)

	orgService := orgs.NewService(opened, opened, opened, manager.GetCatalog(), manager.GetTemplateService(), auditLogger,
		orgs.WithInvitationTTL(cfg.Jobs.InvitationTTL))
	resourceService := resources.NewService(opened, manager.GetResolver(), manager.GetEvaluator(), auditLogger)

	jobs, err := orgs.NewMaintenance(orgService, cfg.Jobs.ExpirySchedule, logger, metrics)
	if err != nil {
		return nil, err
	}
	shutdown.Register("invitation expiry", func(ctx context.Context) error {
		jobs.Stop(ctx)
		return nil
	})

	// HTTP
	deps := api.Dependencies{
		Auth:      authService,
		RBAC:      manager,
		Orgs:      orgService,
		Resources: resourceService,
		SSO:       ssoRegistry,
		Metrics:   metrics,
		Logger:    logger,
	}
	deps.Limiter, deps.LimiterName = limiter(cfg.RateLimit, redisClient)

	httputil.ExposeInternalErrors(cfg.Server.IsDevelopment())
	apiServer := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewServer(api.Config{
			CORSOrigins:    cfg.Server.CORSOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
			SecureCookies:  !cfg.Server.IsDevelopment(),
		}, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(opened.DB, redisClient, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthMux,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	// Shutdown runs newest first: the API stops taking requests before the
	// health endpoint and storage go away.
	shutdown.RegisterServer("health server", healthServer)
	shutdown.RegisterServer("api server", apiServer)

	return &app{
		api:      apiServer,
		health:   healthServer,
		watcher:  watcher,
		jobs:     jobs,
		shutdown: shutdown,
	}, nil
}

func ssoConfig(cfg config.AuthConfig) sso.Config {
	out := sso.Config{PublicURL: cfg.PublicURL}
	if cfg.GitHubEnabled() {
		out.GitHub = &sso.ProviderConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
		}
	}
	if cfg.GoogleEnabled() {
		out.Google = &sso.ProviderConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			IssuerURL:    cfg.GoogleIssuer,
		}
	}
	return out
}

// limiter picks the Redis limiter when Redis is configured so every instance
// shares one budget.
func limiter(cfg config.RateLimitConfig, redisClient *redis.Client) (middleware.Limiter, string) {
	if !cfg.Enabled {
		return nil, ""
	}
	rl := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.Requests,
		WindowDuration:    cfg.Window,
		BurstSize:         cfg.Burst,
	}
	if redisClient != nil {
		return middleware.NewDistributedRateLimiter(redisClient, rl, ""), "distributed"
	}
	return middleware.NewRateLimiter(rl, cfg.LocalCacheSize), "local"
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
