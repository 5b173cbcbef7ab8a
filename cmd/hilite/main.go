package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hilite-app/hilite/internal/accounts"
	"github.com/hilite-app/hilite/internal/app"
	"github.com/hilite-app/hilite/internal/auth"
	"github.com/hilite-app/hilite/internal/observability"
	"github.com/hilite-app/hilite/internal/platform/cache"
	"github.com/hilite-app/hilite/internal/platform/db"
	"github.com/hilite-app/hilite/internal/rbac"
	"github.com/hilite-app/hilite/internal/token"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		// The decision cache degrades to direct evaluation without redis.
		logger.Warn("redis unavailable, authorization cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tokenService, err := token.NewService(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("token service", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	decisionCache := rbac.NewDecisionCache(redisClient, cfg.AuthzCacheTTL)
	if err := decisionCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("authorization cache invalidation listener", slog.Any("error", err))
	}

	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo, decisionCache, logger)
	rbacEngine := rbac.NewEngine(rbacRepo, decisionCache, logger)
	rbacMiddleware := rbac.Middleware{Engine: rbacEngine, Logger: logger, Metrics: metrics}
	rbacHandler := rbac.NewHandler(logger, rbacService)

	accountsRepo := accounts.NewRepository(dbpool)
	accountsService := accounts.NewService(accountsRepo, cfg.DefaultRole)
	accountsHandler := accounts.NewHandler(logger, accountsService)

	authHandler := auth.NewHandler(logger, accountsService, tokenService)
	authPipeline := auth.Pipeline{Logger: logger, Tokens: tokenService, Roles: accountsService}

	if err := rbacService.EnsureDefaultRoles(ctx); err != nil {
		logger.Error("provision default roles", slog.Any("error", err))
		os.Exit(1)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthHandler:     authHandler,
		AccountsHandler: accountsHandler,
		RBACHandler:     rbacHandler,
		AuthPipeline:    authPipeline,
		RBACMiddleware:  rbacMiddleware,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
