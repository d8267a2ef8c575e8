package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/academy-api/internal/app"
	"github.com/jwalitptl/academy-api/internal/config"
	"github.com/jwalitptl/academy-api/internal/handler"
	"github.com/jwalitptl/academy-api/internal/worker"
	"github.com/jwalitptl/academy-api/pkg/logger"
)

// The worker runs the reminder scheduler, the outbox relay and the
// maintenance loop. It serves only health and metrics, on server.port + 1.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal(err, "Failed to initialize worker")
	}
	defer a.Close()

	scheduler := worker.NewReminderScheduler(a.Sweeper, worker.ReminderSchedulerConfig{
		Spec:     cfg.Reminders.CronSpec,
		Location: cfg.Reminders.Location(),
	}, logger)

	maintenance := worker.NewMaintenanceWorker(
		a.DiscountService,
		a.SendLog,
		cfg.Reminders.SendLogRetention,
		cfg.Discounts.MaintenanceInterval,
		logger,
	).WithOutboxPruning(a.Outbox, cfg.Outbox.Retention)

	relay := worker.NewOutboxRelay(a.Outbox, a.Notifications, a.Broker, worker.OutboxRelayConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
		MaxRetryDelay: cfg.Outbox.MaxRetryDelay,
		Lease:         cfg.Outbox.Lease,
	}, logger, a.Metrics)

	srv := setupHealthCheck(a, cfg, logger)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := scheduler.Start(ctx); err != nil {
			logger.Error(err, "Reminder scheduler stopped")
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		maintenance.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		relay.Start(ctx)
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Health server forced to shutdown")
	}
	wg.Wait()
}

func setupHealthCheck(a *app.App, cfg *config.Config, logger *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	h := handler.NewHandler(a.HealthChecks(), prometheus.DefaultGatherer)
	engine.GET("/health/live", h.LivenessCheck)
	engine.GET("/health/ready", h.ReadinessCheck)
	engine.GET(cfg.Monitoring.MetricsPath, h.MetricsHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port+1),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Health server failed")
		}
	}()
	return srv
}
