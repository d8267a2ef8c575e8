package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/academy-api/internal/app"
	"github.com/jwalitptl/academy-api/internal/config"
	"github.com/jwalitptl/academy-api/internal/handler"
	"github.com/jwalitptl/academy-api/internal/handler/audience"
	"github.com/jwalitptl/academy-api/internal/handler/discount"
	"github.com/jwalitptl/academy-api/internal/handler/payment"
	"github.com/jwalitptl/academy-api/internal/handler/reminder"
	"github.com/jwalitptl/academy-api/internal/handler/subscription"
	"github.com/jwalitptl/academy-api/internal/middleware"
	"github.com/jwalitptl/academy-api/internal/router"
	"github.com/jwalitptl/academy-api/pkg/auth"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := app.NewLogger(cfg.Log)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal(err, "failed to initialize application")
	}
	defer a.Close()

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	// Initialize handlers
	h := handler.NewHandler(a.HealthChecks(), prometheus.DefaultGatherer)
	handlers := []router.Handler{
		reminder.NewHandler(a.RuleService, a.Dispatcher, a.Sweeper, cfg.Reminders.Location()),
		discount.NewHandler(a.DiscountService),
		payment.NewHandler(a.PaymentService),
		subscription.NewHandler(a.SubscriptionService),
		audience.NewHandler(a.Resolver),
	}

	r := router.NewRouter(authMiddleware, h, handlers, logger, router.RouterConfig{
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        cfg.RateLimit.RequestsPerSecond,
		RateBurst:        cfg.RateLimit.Burst,
		CORSOrigins:      cfg.Server.CORSOrigins,
		Timeout:          time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		MetricsPrefix:    cfg.Monitoring.Namespace,
		MetricsPath:      cfg.Monitoring.MetricsPath,
		Registerer:       prometheus.DefaultRegisterer,
	})
	r.Setup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "server forced to shutdown")
		os.Exit(1)
	}
	logger.Info("server exited")
}
