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
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campuskit/campus-api/api/swagger"
	"github.com/campuskit/campus-api/internal/handler"
	"github.com/campuskit/campus-api/internal/middleware"
	"github.com/campuskit/campus-api/internal/models"
	"github.com/campuskit/campus-api/internal/repository"
	"github.com/campuskit/campus-api/internal/service"
	"github.com/campuskit/campus-api/pkg/cache"
	"github.com/campuskit/campus-api/pkg/config"
	"github.com/campuskit/campus-api/pkg/database"
	"github.com/campuskit/campus-api/pkg/jobs"
	"github.com/campuskit/campus-api/pkg/logger"
	corsmiddleware "github.com/campuskit/campus-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campuskit/campus-api/pkg/middleware/requestid"
)

// @title CampusKit API
// @version 1.0.0
// @description School inventory, fees and roster management API
// @BasePath /api/v1
// @schemes http

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
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	// Repositories
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	classRepo := repository.NewClassRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	bookRepo := repository.NewBookRepository(db)
	uniformRepo := repository.NewUniformRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "campuskit-api",
	})
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, validate, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, validate, logr)
	librarySvc := service.NewLibraryService(bookRepo, studentRepo, cacheSvc, metricsSvc, validate, logr, cfg.Library.LoanPeriodDays, cfg.Library.FinePerDay)
	uniformSvc := service.NewUniformService(uniformRepo, studentRepo, cacheSvc, metricsSvc, validate, logr)
	feeSvc := service.NewFeeService(feeRepo, studentRepo, metricsSvc, validate, logr)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	classHandler := handler.NewClassHandler(classSvc)
	announcementHandler := handler.NewAnnouncementHandler(announcementSvc)
	libraryHandler := handler.NewLibraryHandler(librarySvc)
	uniformHandler := handler.NewUniformHandler(uniformSvc)
	feeHandler := handler.NewFeeHandler(feeSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.PUT("/password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	staffOnly := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	inventoryStaff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleLibrarian)

	students := api.Group("/students", middleware.JWT(authSvc))
	{
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.POST("", staffOnly, studentHandler.Create)
		students.PUT("/:id", staffOnly, studentHandler.Update)
		students.DELETE("/:id", staffOnly, studentHandler.Delete)
	}

	teachers := api.Group("/teachers", middleware.JWT(authSvc))
	{
		teachers.GET("", teacherHandler.List)
		teachers.GET("/:id", teacherHandler.Get)
		teachers.POST("", staffOnly, teacherHandler.Create)
		teachers.PUT("/:id", staffOnly, teacherHandler.Update)
		teachers.DELETE("/:id", staffOnly, teacherHandler.Delete)
	}

	classes := api.Group("/classes", middleware.JWT(authSvc))
	{
		classes.GET("", classHandler.List)
		classes.GET("/:id", classHandler.Get)
		classes.POST("", staffOnly, classHandler.Create)
		classes.PUT("/:id", staffOnly, classHandler.Update)
		classes.DELETE("/:id", staffOnly, classHandler.Delete)
	}

	announcements := api.Group("/announcements", middleware.JWT(authSvc))
	{
		announcements.GET("", announcementHandler.List)
		announcements.GET("/:id", announcementHandler.Get)
		announcements.POST("", staffOnly, announcementHandler.Create)
		announcements.PUT("/:id", staffOnly, announcementHandler.Update)
		announcements.DELETE("/:id", staffOnly, announcementHandler.Delete)
	}

	library := api.Group("/library", middleware.JWT(authSvc))
	{
		library.GET("/books", libraryHandler.ListBooks)
		library.GET("/books/:id", libraryHandler.GetBook)
		library.POST("/books", inventoryStaff, middleware.Audit(userRepo, models.AuditActionCatalogChange, "books"), libraryHandler.CreateBook)
		library.PUT("/books/:id", inventoryStaff, middleware.Audit(userRepo, models.AuditActionCatalogChange, "books"), libraryHandler.UpdateBook)
		library.DELETE("/books/:id", inventoryStaff, middleware.Audit(userRepo, models.AuditActionCatalogChange, "books"), libraryHandler.DeleteBook)

		library.GET("/issues", libraryHandler.ListIssues)
		library.GET("/issues/:id", libraryHandler.GetIssue)
		library.POST("/issues", inventoryStaff, middleware.Audit(userRepo, models.AuditActionBookIssue, "book_issues"), libraryHandler.Issue)
		library.POST("/issues/batch", inventoryStaff, middleware.Audit(userRepo, models.AuditActionBookIssue, "book_issues"), libraryHandler.BatchIssue)
		library.POST("/issues/:id/return", inventoryStaff, middleware.Audit(userRepo, models.AuditActionBookReturn, "book_issues"), libraryHandler.Return)
	}

	uniforms := api.Group("/uniforms", middleware.JWT(authSvc))
	{
		uniforms.GET("", uniformHandler.ListItems)
		uniforms.GET("/issues", uniformHandler.ListIssues)
		uniforms.GET("/issues/:id", uniformHandler.GetIssue)
		uniforms.POST("/issues", inventoryStaff, middleware.Audit(userRepo, models.AuditActionUniformIssue, "uniform_issues"), uniformHandler.Issue)
		uniforms.POST("/issues/batch", inventoryStaff, middleware.Audit(userRepo, models.AuditActionUniformIssue, "uniform_issues"), uniformHandler.BatchIssue)
		uniforms.POST("/issues/:id/return", inventoryStaff, middleware.Audit(userRepo, models.AuditActionUniformReturn, "uniform_issues"), uniformHandler.Return)
		uniforms.GET("/:id", uniformHandler.GetItem)
		uniforms.POST("", inventoryStaff, middleware.Audit(userRepo, models.AuditActionCatalogChange, "uniform_items"), uniformHandler.CreateItem)
		uniforms.PUT("/:id", inventoryStaff, middleware.Audit(userRepo, models.AuditActionCatalogChange, "uniform_items"), uniformHandler.UpdateItem)
		uniforms.DELETE("/:id", inventoryStaff, middleware.Audit(userRepo, models.AuditActionCatalogChange, "uniform_items"), uniformHandler.DeleteItem)
	}

	fees := api.Group("/fees", middleware.JWT(authSvc), staffOnly)
	{
		fees.GET("", feeHandler.List)
		fees.GET("/export", feeHandler.Export)
		fees.GET("/:id", feeHandler.Get)
		fees.POST("", feeHandler.Create)
		fees.POST("/:id/payments", middleware.Audit(userRepo, models.AuditActionFeePayment, "fee_payments"), feeHandler.RecordPayment)
		fees.GET("/:id/payments/:txn/receipt", feeHandler.Receipt)
	}

	// Background overdue sweep
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sweepQueue *jobs.Queue
	if cfg.Fees.SweepEnabled {
		sweepQueue = jobs.NewQueue("fee-overdue-sweep", func(ctx context.Context, job jobs.Job) error {
			_, err := feeSvc.SweepOverdue(ctx)
			return err
		}, jobs.QueueConfig{
			Workers: cfg.Fees.SweepWorkers,
			Logger:  logr,
		})
		sweepQueue.Start(rootCtx)

		go func() {
			ticker := time.NewTicker(cfg.Fees.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-rootCtx.Done():
					return
				case <-ticker.C:
					if err := sweepQueue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: "sweep"}); err != nil {
						logr.Sugar().Warnw("failed to enqueue sweep", "error", err)
					}
				}
			}
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	cancel()
	if sweepQueue != nil {
		sweepQueue.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}
