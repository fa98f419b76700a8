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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/coursehub/scheduling-api/internal/handler"
	"github.com/coursehub/scheduling-api/internal/middleware"
	"github.com/coursehub/scheduling-api/internal/models"
	"github.com/coursehub/scheduling-api/internal/repository"
	"github.com/coursehub/scheduling-api/internal/service"
	"github.com/coursehub/scheduling-api/pkg/cache"
	"github.com/coursehub/scheduling-api/pkg/config"
	"github.com/coursehub/scheduling-api/pkg/database"
	"github.com/coursehub/scheduling-api/pkg/jobs"
	"github.com/coursehub/scheduling-api/pkg/logger"
	corsmiddleware "github.com/coursehub/scheduling-api/pkg/middleware/cors"
	reqidmiddleware "github.com/coursehub/scheduling-api/pkg/middleware/requestid"
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, availability cache disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()

	requestRepo := repository.NewCourseRequestRepository(db)
	classRepo := repository.NewClassRecordRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(cfg.JWT)
	assignmentSvc := service.NewAssignmentService(requestRepo, classRepo, availabilityRepo, db, cacheRepo, metricsSvc, validate, logr)
	requestSvc := service.NewRequestService(requestRepo, classRepo, logr)
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, cacheRepo, service.AvailabilityServiceConfig{
		CacheEnabled: cfg.Availability.CacheEnabled,
		CacheTTL:     cfg.Availability.CacheTTL,
	}, logr)

	var auditQueue *jobs.Queue
	if cfg.Audit.Enabled {
		auditQueue = jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error {
			entry, ok := job.Payload.(*models.AuditLog)
			if !ok {
				return fmt.Errorf("unexpected audit payload %T", job.Payload)
			}
			return auditRepo.Create(ctx, entry)
		}, jobs.QueueConfig{
			Workers:    cfg.Audit.Workers,
			BufferSize: cfg.Audit.BufferSize,
			Logger:     logr,
		})
		auditQueue.Start(context.Background())
		defer auditQueue.Stop()
	}

	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	requestHandler := handler.NewRequestHandler(requestSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	classHandler := handler.NewClassHandler(assignmentSvc, requestSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Scrape)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	admin := middleware.RequireRoles(models.RoleAdmin)
	instructor := middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor)

	api.GET("/requests", admin, requestHandler.List)
	api.GET("/requests/:id", admin, requestHandler.Get)
	api.POST("/requests/:id/assign", admin, middleware.Audit(auditQueue, models.AuditActionAssign, "course_request"), assignmentHandler.Assign)
	api.POST("/requests/:id/reschedule", admin, middleware.Audit(auditQueue, models.AuditActionReschedule, "course_request"), assignmentHandler.Reschedule)
	api.POST("/requests/:id/cancel", admin, middleware.Audit(auditQueue, models.AuditActionCancel, "course_request"), assignmentHandler.Cancel)

	api.GET("/instructors/:id/availability", instructor, availabilityHandler.List)
	api.GET("/instructors/:id/availability/:date", instructor, availabilityHandler.Check)
	api.POST("/instructors/:id/availability", instructor, availabilityHandler.Declare)
	api.DELETE("/instructors/:id/availability/:date", instructor, availabilityHandler.Withdraw)

	api.GET("/instructors/:id/classes", instructor, classHandler.ListByInstructor)
	api.POST("/classes/:id/complete", instructor, middleware.Audit(auditQueue, models.AuditActionClassComplete, "class_record"), classHandler.Complete)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Info("server stopped", zap.String("addr", srv.Addr))
}
