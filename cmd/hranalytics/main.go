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

	"github.com/odyssey-erp/hr-analytics/internal/app"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/dashboard"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/export"
	hrhttp "github.com/odyssey-erp/hr-analytics/internal/hranalytics/http"
	"github.com/odyssey-erp/hr-analytics/internal/notify"
	"github.com/odyssey-erp/hr-analytics/internal/observability"
	"github.com/odyssey-erp/hr-analytics/internal/platform/cache"
	"github.com/odyssey-erp/hr-analytics/internal/platform/db"
	"github.com/odyssey-erp/hr-analytics/internal/rbac"
	"github.com/odyssey-erp/hr-analytics/internal/shared"
	"github.com/odyssey-erp/hr-analytics/internal/view"
	"github.com/odyssey-erp/hr-analytics/jobs"
	"github.com/odyssey-erp/hr-analytics/report"
)

var permissionDescriptions = map[string]string{
	shared.PermHRAnalyticsView:   "View the HR analytics dashboard",
	shared.PermHRAnalyticsExport: "Export the HR analytics dashboard as PDF or CSV",
	shared.PermHRAnalyticsManage: "Refresh cached HR statistics",
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	rbacService := rbac.NewService(pool)
	if err := rbacService.EnsurePermissions(ctx, permissionDescriptions); err != nil {
		logger.Warn("register hr permissions", slog.Any("error", err))
	}
	rbacMiddleware := rbac.Middleware{Source: rbacService, Logger: logger}

	hrCache := hranalytics.NewCache(redisClient, cfg.HRCacheTTL)
	hrService := hranalytics.NewService(hranalytics.NewRepository(pool), hrCache)
	metrics := observability.NewMetrics()

	pipeline := export.NewPipeline(&export.LayoutRasterizer{}, logger)
	pipeline.Settle = cfg.HRExportSettle
	pdfClient := report.NewClient(cfg.GotenbergURL)

	hub := notify.NewHub(logger)
	go hub.Run(ctx)

	live := hrhttp.NewLive(ctx, hub, hrService, hrhttp.LiveConfig{
		Session: dashboard.Config{
			Interval: cfg.HRRefreshInterval,
			Exporter: pipeline,
			Metrics:  metrics.Dashboard(),
		},
		PrimaryChart:   cfg.HRChartPrimary,
		FallbackChart:  cfg.HRChartFallback,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowAnyOrigin: !cfg.IsProduction() && len(cfg.CORSAllowedOrigins) == 0,
	}, logger)
	defer live.Close()

	if err := hrCache.ListenForInvalidation(ctx, func(version int64) {
		logger.Info("hr cache bumped, reloading live sessions", slog.Int64("version", version), slog.Int("sessions", live.Count()))
		live.InvalidateAll()
	}); err != nil {
		logger.Warn("subscribe cache bumps", slog.Any("error", err))
	}

	hrHandler := hrhttp.NewHandler(logger, hrService, templates, rbacService, hrhttp.Options{
		Exporter: pipeline,
		Printer:  export.NewPrintExporter(pdfClient),
		CSRF:     csrfManager,
		Live:     live,
		Metrics:  metrics.Dashboard(),
		Interval: cfg.HRRefreshInterval,
	})

	redisOpts := redisClient.Options()
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("close asynq inspector", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		HRHandler:          hrHandler,
		ReportHandler:      report.NewHandler(pdfClient, logger),
		JobHandler:         jobs.NewHandler(inspector, logger),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
