package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itdd/backend/internal/app"
	"github.com/itdd/backend/internal/infrastructure/config"
	"github.com/itdd/backend/internal/infrastructure/logger"
	"github.com/itdd/backend/internal/interfaces/http/handler"
	"github.com/itdd/backend/internal/interfaces/http/middleware"
	"github.com/itdd/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

//	@title			IT Due-Diligence Inventory Resolution API
//	@version		1.0
//	@description	Entity resolution for application, infrastructure and role inventories of M&A deals
//	@BasePath		/api/v1

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(cfg.Log, cfg.App.Env)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting inventory resolution service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.ModeServer)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	if err := a.Start(context.Background()); err != nil {
		log.Fatal("Failed to start background workers", zap.Error(err))
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := newEngine(cfg, a, log)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		log.Error("Error releasing resources", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

func newEngine(cfg *config.Config, a *app.App, log *zap.Logger) *gin.Engine {
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	})...)
	engine.Use(middleware.HTTPMetrics(a.Metrics))
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfigFrom(cfg.HTTP)))
	engine.Use(middleware.Secure())
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	router.SetupResolution(engine, router.Handlers{
		Ingest:    handler.NewIngestHandler(a.Ingestion),
		Records:   handler.NewRecordHandler(a.Query, a.Review),
		Reviews:   handler.NewReviewHandler(a.Review),
		Reconcile: handler.NewReconcileHandler(a.Trigger),
		Export:    handler.NewExportHandler(a.Export, cfg.Storage.PresignExpiry),
		System:    handler.NewSystemHandler(cfg.App.Name, version, a.DB, a),
	})
	engine.GET("/metrics", gin.WrapH(a.Metrics.Handler()))

	return engine
}
