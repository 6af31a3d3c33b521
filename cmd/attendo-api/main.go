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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/attendo-api/internal/handler"
	"github.com/noah-isme/attendo-api/internal/middleware"
	"github.com/noah-isme/attendo-api/internal/repository"
	"github.com/noah-isme/attendo-api/internal/service"
	"github.com/noah-isme/attendo-api/pkg/cache"
	"github.com/noah-isme/attendo-api/pkg/config"
	"github.com/noah-isme/attendo-api/pkg/database"
	"github.com/noah-isme/attendo-api/pkg/jobs"
	"github.com/noah-isme/attendo-api/pkg/ledger"
	"github.com/noah-isme/attendo-api/pkg/logger"
)

// @title Attendo API
// @version 1.0.0
// @description Rotating attendance codes with an optional on-chain ledger.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const (
	codePurgeInterval = time.Hour
	codeRetention     = 24 * time.Hour
)

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redemption.TokenCache {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable; token cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	codeRepo := repository.NewAttendanceCodeRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	tokenCache := repository.NewTokenCacheRepository(redisClient, logr)
	defer tokenCache.Close() //nolint:errcheck

	ledgerClient := ledger.New(cfg.Ledger, logr)
	if !ledgerClient.Available() {
		logr.Warn("ledger unavailable; attendance is recorded in the database only")
	}

	tokenStore := service.NewTokenStore(codeRepo, tokenCache, metrics, service.SystemClock(), logr)
	rotationSvc := service.NewRotationService(courseRepo, service.RotationSettingsFromConfig(cfg.Rotation), service.RotationDeps{
		Minter:  service.NewTokenMinter(),
		Ledger:  ledgerClient,
		Store:   tokenStore,
		Metrics: metrics,
		Logger:  logr,
	}, logr)

	redemptionSvc := service.NewRedemptionService(
		tokenStore,
		courseRepo,
		attendanceRepo,
		ledgerClient,
		service.NewGeofenceService(cfg.Geofence),
		validate,
		metrics,
		logr,
		service.RedemptionConfig{LedgerTimeout: cfg.Ledger.Timeout},
	)
	retryQueue := jobs.NewQueue("ledger-redeem", redemptionSvc.HandleLedgerRetry, jobs.QueueConfig{
		Workers:    2,
		BufferSize: 256,
		MaxRetries: cfg.Redemption.LedgerRetries,
		RetryDelay: cfg.Redemption.LedgerRetryDelay,
		Logger:     logr,
	})
	redemptionSvc.SetRetryQueue(retryQueue)
	retryQueue.Start(ctx)

	attendanceSvc := service.NewAttendanceService(attendanceRepo, courseRepo, nil, nil, logr)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	go purgeExpiredCodes(ctx, codeRepo, logr)

	router := newRouter(cfg, logr, routerDeps{
		auth:       authSvc,
		metrics:    metrics,
		limiter:    middleware.NewRateLimiter(cfg.Redemption.RateLimit, cfg.Redemption.RateWindow),
		rotation:   handler.NewRotationHandler(rotationSvc, validate),
		stream:     handler.NewRotationStream(rotationSvc, cfg.CORS.AllowedOrigins, logr),
		attendance: handler.NewAttendanceHandler(redemptionSvc, attendanceSvc),
		ops:        handler.NewMetricsHandler(metrics.Handler(), db, ledgerClient),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	if err := rotationSvc.Shutdown(shutdownCtx); err != nil {
		logr.Warn("rotation shutdown", zap.Error(err))
	}
	retryQueue.Stop()
}

type codePurger interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// purgeExpiredCodes drops code rows a day after they stop being redeemable.
func purgeExpiredCodes(ctx context.Context, repo codePurger, logr *zap.Logger) {
	ticker := time.NewTicker(codePurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteExpired(ctx, time.Now().Add(-codeRetention))
			if err != nil {
				logr.Warn("purge expired attendance codes", zap.Error(err))
				continue
			}
			if n > 0 {
				logr.Info("purged expired attendance codes", zap.Int64("rows", n))
			}
		}
	}
}
