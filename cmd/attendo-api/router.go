package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/attendo-api/api/swagger"
	"github.com/noah-isme/attendo-api/internal/handler"
	"github.com/noah-isme/attendo-api/internal/middleware"
	"github.com/noah-isme/attendo-api/internal/models"
	"github.com/noah-isme/attendo-api/pkg/config"
	"github.com/noah-isme/attendo-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/attendo-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/attendo-api/pkg/middleware/requestid"
)

type routerDeps struct {
	auth       middleware.TokenValidator
	metrics    middleware.RequestObserver
	limiter    *middleware.RateLimiter
	rotation   *handler.RotationHandler
	stream     *handler.RotationStream
	attendance *handler.AttendanceHandler
	ops        *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.ops.Health)
	r.GET("/ready", deps.ops.Ready)
	r.GET("/metrics", deps.ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, middleware.JWT(deps.auth))

	teacher := middleware.RequireRoles(models.RoleTeacher)
	rotation := api.Group("/rotation", teacher)
	rotation.GET("", deps.rotation.Current)
	rotation.POST("/start", deps.rotation.Start)
	rotation.POST("/stop", deps.rotation.Stop)
	rotation.PUT("/batch-size", deps.rotation.SetBatchSize)
	rotation.GET("/stream", deps.stream.Serve)

	student := middleware.RequireRoles(models.RoleStudent)
	attendance := api.Group("/attendance", student)
	attendance.POST("/redeem", middleware.RateLimit(deps.limiter), deps.attendance.Redeem)
	attendance.GET("/me", deps.attendance.Mine)

	courses := api.Group("/courses", teacher)
	courses.GET("/:id/attendance", deps.attendance.Course)
	courses.GET("/:id/attendance/export", deps.attendance.Export)

	return r
}
