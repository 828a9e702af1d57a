package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	echoSwagger "github.com/swaggo/echo-swagger"

	"leavedesk/docs"
	"leavedesk/internal/caching"
	"leavedesk/internal/config"
	"leavedesk/internal/handlers"
	"leavedesk/internal/jobs"
	"leavedesk/internal/jobs/background"
	"leavedesk/internal/metrics"
	"leavedesk/internal/middleware"
	"leavedesk/internal/models"
	"leavedesk/internal/repositories"
	"leavedesk/internal/services"
	"leavedesk/pkg/database"
	"leavedesk/pkg/logger"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	store := repositories.NewStore(pool)

	redisClient := caching.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()
	cacheSvc := caching.NewRedisCacheService(redisClient)

	var archive services.MinioService
	if cfg.MinioEnabled() {
		minioSvc, err := services.NewMinioService(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL, cfg.Minio.Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create MinIO client")
		}
		if err := minioSvc.EnsureBucketExists(ctx); err != nil {
			log.Warn().Err(err).Str("bucket", cfg.Minio.Bucket).Msg("webhook archive bucket unavailable")
		}
		archive = minioSvc
	} else {
		log.Info().Msg("MinIO not configured, webhook payloads will not be archived")
	}

	notifiers := []services.NotificationService{services.NewLogNotifier()}
	if cfg.Slack.WebhookURL != "" {
		notifiers = append(notifiers, services.NewSlackNotifier(cfg.Slack.WebhookURL, nil))
	}
	notifier := services.NewMultiNotifier(notifiers...)

	clock := clockwork.NewRealClock()
	lemonSqueezy, err := services.NewLemonSqueezyService(services.LemonSqueezyOptions{
		APIKey:     cfg.LemonSqueezy.APIKey,
		BaseURL:    cfg.LemonSqueezy.BaseURL,
		MaxRetries: cfg.LemonSqueezy.MaxRetries,
		RetryDelay: cfg.LemonSqueezy.RetryDelay,
		Timeout:    cfg.LemonSqueezy.Timeout,
		Clock:      clock,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create LemonSqueezy client")
	}

	seatUsageSvc := services.NewSeatUsageService(store, cacheSvc, cfg.Cache.SeatUsageTTL)
	membershipSvc := services.NewMembershipService(store, cacheSvc, clock, cfg.Membership.DefaultGracePeriod)
	reconciliationSvc := services.NewReconciliationService(store, cacheSvc, notifier)
	webhookSvc := services.NewWebhookService(store, reconciliationSvc, lemonSqueezy, archive, notifier, cacheSvc,
		services.BillingPlans{
			MonthlyVariantID: cfg.LemonSqueezy.MonthlyVariantID,
			YearlyVariantID:  cfg.LemonSqueezy.YearlyVariantID,
			MonthlyProductID: cfg.LemonSqueezy.MonthlyProductID,
			YearlyProductID:  cfg.LemonSqueezy.YearlyProductID,
		}, clock)
	pendingChangesJob := jobs.NewPendingChangesJob(store.Subscriptions(), lemonSqueezy, notifier, clock, cfg.Cron.ApplyWindow)

	jwtMiddleware, closeJWKS, err := middleware.NewJWTMiddleware(middleware.AuthConfig{
		JWTSecret: cfg.Supabase.JWTSecret,
		JWKSURL:   cfg.Supabase.JWKSURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure authentication")
	}
	defer closeJWKS()
	rbac := middleware.NewRBACMiddleware(store.Memberships())

	membershipHandlers := handlers.NewMembershipHandlers(membershipSvc, seatUsageSvc)
	webhookHandlers := handlers.NewWebhookHandlers(webhookSvc, cfg.LemonSqueezy.WebhookSecret)
	cronHandlers := handlers.NewCronHandlers(pendingChangesJob, cfg.Cron.Secret)
	healthHandlers := handlers.NewHealthHandlers(version).
		AddCheck("database", pool, true).
		AddCheck("redis", cacheSvc, false)
	if archive != nil {
		healthHandlers.AddCheck("storage", handlers.PingFunc(archive.EnsureBucketExists), false)
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = middleware.NewRequestValidator()
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())
	e.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	}))
	e.Use(metrics.Middleware())

	versions := middleware.NewVersionMiddleware()
	e.Use(versions.APIVersionResolver())

	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)
	e.GET("/metrics", metrics.Handler())
	docs.SwaggerInfo.Version = version
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	e.POST("/webhooks/lemonsqueezy", webhookHandlers.LemonSqueezyWebhook)
	e.POST("/api/cron/apply-pending-subscription-changes", cronHandlers.ApplyPendingSubscriptionChanges)

	v1 := versions.VersionRoute(e, "v1", jwtMiddleware, middleware.RequireUser())
	orgs := v1.Group("/organizations/:orgId")
	orgs.GET("/seats", membershipHandlers.GetSeatUsage, rbac.RequireOrgRole())
	members := orgs.Group("/members/:userId", rbac.RequireOrgRole(models.RoleAdmin))
	members.POST("/remove", membershipHandlers.RemoveUser)
	members.POST("/reactivate", membershipHandlers.ReactivateUser)
	members.POST("/reactivate-archived", membershipHandlers.ReactivateArchivedUser)

	var scheduler *background.JobScheduler
	if cfg.Cron.Schedule != "" {
		scheduler, err = background.NewJobScheduler(
			background.WithLocker(caching.NewRedisLocker(redisClient, cfg.Cron.LockTTL)),
			background.WithRunTimeout(cfg.Cron.LockTTL),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create job scheduler")
		}
		if err := scheduler.RegisterPendingChanges(cfg.Cron.Schedule, pendingChangesJob); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Cron.Schedule).Msg("failed to schedule pending changes job")
		}
		scheduler.Start()
		cronHandlers.WithScheduler(scheduler)
	}
	e.GET("/api/cron/status", cronHandlers.JobStatus)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop job scheduler")
		}
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down server")
	}
}
