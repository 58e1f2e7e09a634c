package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kua-dukcapil/workflow-api/internal/handler"
	"github.com/kua-dukcapil/workflow-api/internal/middleware"
	"github.com/kua-dukcapil/workflow-api/internal/models"
	"github.com/kua-dukcapil/workflow-api/internal/repository"
	"github.com/kua-dukcapil/workflow-api/internal/service"
	"github.com/kua-dukcapil/workflow-api/pkg/cache"
	"github.com/kua-dukcapil/workflow-api/pkg/config"
	"github.com/kua-dukcapil/workflow-api/pkg/database"
	"github.com/kua-dukcapil/workflow-api/pkg/logger"
	corsmiddleware "github.com/kua-dukcapil/workflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/kua-dukcapil/workflow-api/pkg/middleware/requestid"
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, report caching disabled", zap.Error(err))
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	claimManager := service.NewClaimManager(submissionRepo, cacheRepo, metricsSvc, logr)
	workflowSvc := service.NewWorkflowService(submissionRepo, claimManager, cacheRepo, metricsSvc, logr, cfg.Workflow.MinLeadDays)
	queueSvc := service.NewQueueService(submissionRepo, ledgerRepo, cacheRepo, logr, service.QueueServiceConfig{
		PageSize:      cfg.Workflow.QueuePageSize,
		CacheTTL:      cfg.Reports.CacheTTL,
		ExportRowsMax: cfg.Reports.ExportRowsMax,
	})

	authHandler := handler.NewAuthHandler(authSvc)
	kuaHandler := handler.NewKUAHandler(workflowSvc, queueSvc)
	workflowHandler := handler.NewWorkflowHandler(workflowSvc, queueSvc)

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
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		protected := auth.Group("", middleware.JWT(authSvc))
		protected.POST("/logout", authHandler.Logout)
		protected.POST("/change-password", authHandler.ChangePassword)
		protected.GET("/me", authHandler.Me)
	}

	kua := api.Group("/kua", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleKUA))
	{
		kua.POST("/submissions", kuaHandler.Create)
		kua.GET("/submissions", kuaHandler.List)
		kua.GET("/submissions/:id", kuaHandler.Detail)
		kua.POST("/submissions/:id/submit", kuaHandler.Submit)
	}

	operator := api.Group("/dukcapil/operator", middleware.JWT(authSvc), middleware.RequireOperatorClass())
	{
		operator.GET("/queue", workflowHandler.Queue)
		operator.GET("/my-work", workflowHandler.MyWork)
		operator.GET("/submissions/:id", workflowHandler.Detail)
		operator.POST("/submissions/:id/claim", workflowHandler.Claim)
		operator.POST("/submissions/:id/return", workflowHandler.Return)
		operator.POST("/submissions/:id/send-verification", workflowHandler.SendVerification)
		operator.GET("/reports/performance", workflowHandler.Report)
		operator.GET("/reports/history/export", workflowHandler.ExportHistory)
	}

	verifier := api.Group("/dukcapil/verifier", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleVerifier))
	{
		verifier.GET("/queue", workflowHandler.Queue)
		verifier.GET("/my-work", workflowHandler.MyWork)
		verifier.GET("/submissions/:id", workflowHandler.Detail)
		verifier.POST("/submissions/:id/claim", workflowHandler.Claim)
		verifier.POST("/submissions/:id/return", workflowHandler.Return)
		verifier.POST("/submissions/:id/approve", workflowHandler.Approve)
		verifier.POST("/submissions/:id/reject", workflowHandler.Reject)
		verifier.GET("/reports/performance", workflowHandler.Report)
		verifier.GET("/reports/history/export", workflowHandler.ExportHistory)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
	}
}
