package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"coursehub/internal/access"
	"coursehub/internal/billing"
	"coursehub/internal/booking"
	"coursehub/internal/config"
	"coursehub/internal/course"
	"coursehub/internal/db"
	"coursehub/internal/email"
	"coursehub/internal/events"
	"coursehub/internal/ledger"
	"coursehub/internal/logger"
	"coursehub/internal/money"
	"coursehub/internal/pricing"
	"coursehub/internal/server"
	"coursehub/internal/subscription"
	"coursehub/internal/user"
)

// @title CourseHub Billing API
// @version 1.0
// @description Commission ledger, bookings and organizer subscriptions for the course marketplace.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()
	logger.Info("Starting CourseHub billing service")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		if cfg.Webhook.Secret == "" {
			logger.Fatalf("PAYMENT_WEBHOOK_SECRET is required in production")
		}
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, cfg.Migrations); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, entitlement cache and email queue degraded", "error", err)
	}
	defer rdb.Close()

	publisher := events.New(cfg.RabbitMQURL)
	if c, ok := publisher.(io.Closer); ok {
		defer c.Close()
	}

	pct, err := cfg.Pricing.Percentages()
	if err != nil {
		logger.Fatalf("Invalid pricing configuration: %v", err)
	}
	policy, err := pricing.NewPolicy(pricing.Defaults{
		LiveCommission:         pct.LiveCommission,
		OnlineCommission:       pct.OnlineCommission,
		OnlineDiscount:         pct.OnlineDiscount,
		ConsultationCommission: pct.ConsultationCommission,
		PackageCommission:      pct.PackageCommission,
	})
	if err != nil {
		logger.Fatalf("Invalid pricing defaults: %v", err)
	}

	mailer := email.New(cfg.Email, rdb)
	users := user.NewRepository(database)
	notifier := email.NewNotifier(mailer, users)

	cache := access.NewCache(rdb, cfg.EntitlementTTL)
	subs := subscription.NewService(
		subscription.NewRepository(database),
		subscription.Policy{
			PeriodDays:              cfg.Subscription.PeriodDays,
			CancelledGrantsUntilEnd: cfg.Subscription.CancelledGrantsUntilEnd,
			DefaultMonthlyPrice:     money.Cents(cfg.Subscription.DefaultMonthlyPrice),
		},
		cache,
		publisher,
		notifier,
	)
	gate := access.NewGate(cache.Wrap(subs))

	ledgerSvc := ledger.NewService(ledger.NewRepository(database), policy, publisher)
	courseRepo := course.NewRepository(database)
	courses := course.NewService(courseRepo, policy)
	bookings := booking.NewService(booking.NewRepository(database), courseRepo, policy, ledgerSvc, notifier)

	reconciler := billing.NewReconciler(subs, billing.RetryConfig{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		MaxDelay: cfg.Retry.MaxDelay,
	})
	verifier := billing.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance, cfg.Webhook.VerifyTimeout)

	go mailer.Start(ctx)
	go mailer.WatchQueue(ctx, 15*time.Second)

	srv := server.New(cfg, server.Handlers{
		User:         user.NewHandler(user.NewService(users)),
		Course:       course.NewHandler(courses),
		Booking:      booking.NewHandler(bookings),
		Ledger:       ledger.NewHandler(ledgerSvc),
		Subscription: subscription.NewHandler(subs),
		Access:       access.NewHandler(gate),
		Billing:      billing.NewHandler(verifier, reconciler, cfg.Webhook.SignatureHeader),
		Gate:         gate,
	}, map[string]server.Check{
		"postgres": database.PingContext,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
