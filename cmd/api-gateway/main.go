package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-activity-planner/api/swagger"
	"github.com/noah-isme/sma-activity-planner/internal/handler"
	"github.com/noah-isme/sma-activity-planner/internal/middleware"
	"github.com/noah-isme/sma-activity-planner/internal/models"
	"github.com/noah-isme/sma-activity-planner/internal/repository"
	"github.com/noah-isme/sma-activity-planner/internal/service"
	"github.com/noah-isme/sma-activity-planner/pkg/cache"
	"github.com/noah-isme/sma-activity-planner/pkg/config"
	"github.com/noah-isme/sma-activity-planner/pkg/database"
	"github.com/noah-isme/sma-activity-planner/pkg/jobs"
	"github.com/noah-isme/sma-activity-planner/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-activity-planner/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-activity-planner/pkg/middleware/requestid"
	"github.com/noah-isme/sma-activity-planner/pkg/storage"
)

// @title Activity Week Planner API
// @version 1.0.0
// @description Assigns students to multi-session activities by solving a MILP.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck
	if err := database.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, "planner", logr)
	defer cacheRepo.Close() //nolint:errcheck

	files, err := storage.NewLocalStorage(cfg.Plans.StorageDir)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Plans.SignedURLSecret, cfg.Plans.SignedURLTTL)

	plan, err := service.NewPlanner(cfg.Planner, cfg.Solver)
	if err != nil {
		return fmt.Errorf("init planner: %w", err)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Plans.SummaryCacheTTL, logr, redisClient != nil)
	exporter := service.NewExportService(files, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Plans.SignedURLTTL}, logr)
	authSvc := service.NewAuthService(validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	runs := repository.NewPlanRunRepository(db)
	worker := service.NewPlanWorker(runs, plan, exporter, cacheSvc, metrics, cfg.Plans.WorkerRetries, logr)
	queue := jobs.NewQueue("plans", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Plans.WorkerConcurrency,
		BufferSize: 64,
		MaxRetries: cfg.Plans.WorkerRetries,
		RetryDelay: 5 * time.Second,
		JobTimeout: cfg.Solver.TimeLimit + time.Minute,
		Observer:   metrics,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()

	plans := service.NewPlanService(runs, queue, plan, exporter, cacheSvc, metrics, validate, logr, service.PlanServiceConfig{
		ResultTTL:       cfg.Plans.SignedURLTTL,
		CleanupInterval: cfg.Plans.CleanupInterval,
		MaxUploadBytes:  cfg.Plans.MaxUploadBytes,
	})
	plans.RecoverPendingRuns(ctx)
	plans.StartCleanup(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = cfg.Plans.MaxUploadBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	ops := handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
		"database": db,
		"redis":    handler.PingFunc(cacheRepo.Ping),
	})
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	planHandler := handler.NewPlanHandler(plans)
	authHandler := handler.NewAuthHandler(authSvc)

	api := r.Group(cfg.APIPrefix)
	api.GET("/plans/download/:token", planHandler.Download)
	api.GET("/plans/download/:token/statistics.pdf", planHandler.Statistics)

	secured := api.Group("", middleware.JWT(authSvc))
	secured.GET("/auth/me", authHandler.Me)
	secured.POST("/auth/tokens", middleware.RequireRoles(models.RoleAdmin), authHandler.IssueToken)
	secured.GET("/metrics/snapshot", middleware.RequireRoles(models.RoleAdmin, models.RoleViewer), ops.Snapshot)

	readers := secured.Group("/plans", middleware.RequireRoles(models.RoleAdmin, models.RolePlanner, models.RoleViewer))
	readers.GET("", planHandler.List)
	readers.GET("/template", planHandler.Template)
	readers.GET("/:id", planHandler.Status)

	writers := secured.Group("/plans", middleware.RequireRoles(models.RoleAdmin, models.RolePlanner))
	writers.POST("", planHandler.Submit)
	writers.POST("/solve", planHandler.Solve)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "solver", cfg.Solver.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logr.Info("shutting down server")
	return srv.Shutdown(shutdownCtx)
}
