package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/learnhub/console/internal/app"
	"github.com/learnhub/console/internal/auth"
	"github.com/learnhub/console/internal/crosstab"
	"github.com/learnhub/console/internal/dashboard"
	"github.com/learnhub/console/internal/observability"
	"github.com/learnhub/console/internal/platform/cache"
	"github.com/learnhub/console/internal/platform/db"
	"github.com/learnhub/console/internal/rbac"
	"github.com/learnhub/console/internal/shared"
	"github.com/learnhub/console/internal/staff"
	"github.com/learnhub/console/internal/view"
	"github.com/learnhub/console/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.DBOptions("learnhub-console"))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "learnhub_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	metrics := observability.NewMetrics()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	staffRepo := staff.NewRepository(dbpool)
	staffService := staff.NewService(staffRepo, jobClient, logger)
	rbacMiddleware := rbac.Middleware{Logger: logger}
	staffHandler := staff.NewHandler(logger, staffService, rbacMiddleware).WithWriteLimit(cfg.StaffWriteLimit)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, cfg.APITokenTTL)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)
	bearer := auth.Middleware{Service: authService, Staff: staffService, Logger: logger}

	var transport crosstab.Transport
	var redisTransport *crosstab.RedisTransport
	switch cfg.SignalTransport {
	case app.SignalTransportMemory:
		transport = crosstab.NewMemoryTransport()
	default:
		redisTransport = crosstab.NewRedisTransport(redisClient, logger)
		if err := redisTransport.Start(ctx); err != nil {
			logger.Error("start signal transport", slog.Any("error", err))
			os.Exit(1)
		}
		transport = redisTransport
	}

	registry := dashboard.NewRegistry(cfg.MountCapacity, cfg.MountTTL, cfg.MountGrace)
	defer registry.Close()
	factory := &dashboard.Factory{
		BackendURL: cfg.BackendURL,
		HTTPClient: &http.Client{Timeout: cfg.BackendTimeout},
		Transport:  transport,
		Observer:   metrics,
		Logger:     logger,
	}
	dashboardHandler := dashboard.NewHandler(logger, templates, csrfManager, factory, registry)
	rbacHandler := rbac.NewHandler(logger, templates, csrfManager, dashboardHandler)
	authHandler.OnLogout(func(sessionID string) {
		n := registry.CloseSession(sessionID)
		logger.Info("session contexts unmounted", slog.Int("count", n))
	})

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		BearerMiddleware: bearer,
		StaffHandler:     staffHandler,
		DashboardHandler: dashboardHandler,
		RBACHandler:      rbacHandler,
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("version", app.Version()), slog.String("signal_transport", cfg.SignalTransport))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		if redisTransport != nil {
			if err := redisTransport.Close(); err != nil {
				logger.Warn("signal transport close", slog.Any("error", err))
			}
		}
		registry.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("console stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
