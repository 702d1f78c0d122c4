package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/season-scheduler/api/swagger"
	"github.com/noah-isme/season-scheduler/internal/handler"
	internalmiddleware "github.com/noah-isme/season-scheduler/internal/middleware"
	"github.com/noah-isme/season-scheduler/internal/repository"
	"github.com/noah-isme/season-scheduler/internal/service"
	"github.com/noah-isme/season-scheduler/pkg/cache"
	"github.com/noah-isme/season-scheduler/pkg/config"
	"github.com/noah-isme/season-scheduler/pkg/database"
	"github.com/noah-isme/season-scheduler/pkg/export"
	"github.com/noah-isme/season-scheduler/pkg/jobs"
	"github.com/noah-isme/season-scheduler/pkg/logger"
	corsmiddleware "github.com/noah-isme/season-scheduler/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/season-scheduler/pkg/middleware/requestid"
	"github.com/noah-isme/season-scheduler/pkg/storage"
)

// @title Season Scheduler API
// @version 1.0.0
// @description Builds and optimizes sports season schedules with simulated annealing.
// @BasePath /api/v1
// @schemes http

const shutdownTimeout = 30 * time.Second

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

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	checks := map[string]handler.HealthCheck{}

	var db *sqlx.DB
	var runRepo *repository.ScheduleRunRepository
	if cfg.Runs.Enabled {
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
		}
		defer db.Close() //nolint:errcheck
		runRepo = repository.NewScheduleRunRepository(db, metrics)
		if err := runRepo.EnsureSchema(ctx); err != nil {
			logr.Sugar().Fatalw("failed to prepare schema", "error", err)
		}
		checks["postgres"] = db.PingContext
	}

	var redisClient *redis.Client
	if cfg.Progress.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	publisher := repository.NewProgressPublisher(redisClient, cfg.Progress.ChannelPrefix, cfg.Progress.SnapshotTTL, logr).WithObserver(metrics)
	defer publisher.Close() //nolint:errcheck

	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	exporter := service.NewExportService(
		store,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL},
		logr,
		export.NewCSVExporter(),
		export.NewPDFExporter(),
	)

	validate := validator.New()
	builder := service.NewSeasonConfigBuilder(validate, service.SeasonBuilderConfig{
		DefaultIterations: cfg.Engine.DefaultIterations,
		DefaultTimeout:    cfg.Engine.JobTimeout,
	})

	deps := service.SeasonScheduleDeps{
		Reporter:  service.MultiProgressReporter{publisher, service.NewLoggingProgressReporter(logr)},
		Metrics:   metrics,
		Exporter:  exporter,
		Validator: validate,
		Logger:    logr,
	}
	if runRepo != nil {
		deps.Runs = runRepo
	}
	if redisClient != nil {
		deps.Snapshots = publisher
	}
	seasons := service.NewSeasonScheduleService(builder, deps, service.SeasonScheduleConfig{
		RunTTL:        cfg.Engine.ResultTTL,
		ProgressEvery: cfg.Engine.ProgressEvery,
		Cooling: service.CoolingOptions{
			InitialTemperature: cfg.Engine.InitialTemperature,
			FinalTemperature:   cfg.Engine.FinalTemperature,
			Patience:           cfg.Engine.Patience,
		},
	})

	queue := jobs.NewQueue("season-schedules", seasons.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Engine.Workers,
		BufferSize: cfg.Engine.QueueBuffer,
		MaxRetries: -1,
		Logger:     logr,
	})
	seasons.AttachQueue(queue)
	queue.Start(context.WithoutCancel(ctx))

	go maintain(ctx, logr, seasons, runRepo, cfg)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if !cfg.IsProduction() {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/summary", metricsHandler.Summary)
	handler.NewSeasonScheduleHandler(seasons).Register(api)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "workers", cfg.Engine.Workers)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("http shutdown incomplete", "error", err)
	}
	cancelled := seasons.CancelAll(shutdownCtx)
	queue.Stop()
	logr.Sugar().Infow("server stopped", "jobs_cancelled", cancelled)
}

// maintain evicts expired jobs, stale exports and, with persistence on, old run rows.
func maintain(ctx context.Context, logr *zap.Logger, seasons *service.SeasonScheduleService, runs *repository.ScheduleRunRepository, cfg *config.Config) {
	ticker := time.NewTicker(cfg.Exports.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seasons.Sweep()
			if runs == nil {
				continue
			}
			removed, err := runs.DeleteCompletedBefore(ctx, time.Now().UTC().Add(-cfg.Runs.Retention))
			if err != nil {
				logr.Sugar().Warnw("run retention failed", "error", err)
				continue
			}
			if removed > 0 {
				logr.Sugar().Infow("expired schedule runs removed", "count", removed)
			}
		}
	}
}
