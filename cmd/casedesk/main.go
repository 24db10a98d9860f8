package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/casedesk/casedesk/internal/app"
	"github.com/casedesk/casedesk/internal/audit"
	"github.com/casedesk/casedesk/internal/auth"
	"github.com/casedesk/casedesk/internal/authz"
	"github.com/casedesk/casedesk/internal/grants"
	"github.com/casedesk/casedesk/internal/observability"
	"github.com/casedesk/casedesk/internal/platform/cache"
	"github.com/casedesk/casedesk/internal/platform/db"
	"github.com/casedesk/casedesk/internal/roles"
	"github.com/casedesk/casedesk/internal/shared"
	"github.com/casedesk/casedesk/internal/users"
	"github.com/casedesk/casedesk/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "casedesk_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	metrics := observability.NewMetrics()

	store := authz.NewPGStore(pool)
	builder := authz.NewContextBuilder(store)

	var engine authz.Engine
	if cfg.AuthzEngine == app.EngineRemote {
		engine = authz.NewRemoteEngine(cfg.PDPURL, cfg.PDPTimeout)
	} else {
		engine = authz.NewLocalEngine(
			authz.NewRoleEvaluator(store),
			authz.NewGrantEvaluator(store),
			store.Ping,
		)
	}
	logger.Info("authorization engine bound", slog.String("engine", string(engine.Name())))

	syncRecorder := authz.NewSyncRecorder(store, logger, metrics.AuditFailure)
	var recorder authz.Recorder = syncRecorder
	var asynqClient *asynq.Client
	if cfg.AuditMode == "async" {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := asynqClient.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		recorder = authz.NewAsyncRecorder(asynqClient, syncRecorder, logger)
	}

	authzService := authz.NewService(engine, builder, recorder, logger, metrics)
	authzHandler := authz.NewHandler(logger, authzService)
	guard := authz.Middleware{Service: authzService, Logger: logger}

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo)
	rolesHandler := roles.NewHandler(logger, rolesService, guard)

	grantsRepo := grants.NewRepository(pool)
	grantsService := grants.NewService(grantsRepo)
	grantsHandler := grants.NewHandler(logger, grantsService, guard)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, guard)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		Metrics:        metrics,
		AuthHandler:    authHandler,
		AuthzHandler:   authzHandler,
		RolesHandler:   rolesHandler,
		GrantsHandler:  grantsHandler,
		UsersHandler:   usersHandler,
		AuditHandler:   auditHandler,
		JobsHandler:    jobsHandler,
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
