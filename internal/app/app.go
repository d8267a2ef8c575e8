// Package app wires repositories, services and gateways from Config. Both
// the API server and the worker build the same reminder pipeline from it.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jwalitptl/academy-api/internal/config"
	"github.com/jwalitptl/academy-api/internal/gateway"
	"github.com/jwalitptl/academy-api/internal/handler"
	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	"github.com/jwalitptl/academy-api/internal/repository/postgres"
	redisStore "github.com/jwalitptl/academy-api/internal/repository/redis"
	"github.com/jwalitptl/academy-api/internal/service/audience"
	"github.com/jwalitptl/academy-api/internal/service/discount"
	"github.com/jwalitptl/academy-api/internal/service/payment"
	"github.com/jwalitptl/academy-api/internal/service/reminder"
	"github.com/jwalitptl/academy-api/internal/service/subscription"
	"github.com/jwalitptl/academy-api/pkg/logger"
	"github.com/jwalitptl/academy-api/pkg/messaging"
	brokerRedis "github.com/jwalitptl/academy-api/pkg/messaging/redis"
	"github.com/jwalitptl/academy-api/pkg/metrics"
)

// App holds the process-wide dependencies.
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *sqlx.DB
	Redis   *goredis.Client
	Broker  messaging.Broker
	Metrics *metrics.Metrics

	Rules         repository.ReminderRuleRepository
	Discounts     repository.DiscountRepository
	SendLog       repository.SendLogRepository
	Directory     repository.DirectoryRepository
	Subscriptions repository.SubscriptionRepository
	Notifications repository.NotificationRepository
	Outbox        repository.OutboxRepository

	RuleService         reminder.RuleService
	Dispatcher          *reminder.Dispatcher
	Sweeper             *reminder.Sweeper
	DiscountService     discount.Service
	PaymentService      payment.Service
	SubscriptionService subscription.Service
	Resolver            audience.Resolver
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: "2006-01-02T15:04:05Z07:00",
		JSON:       cfg.JSON,
	})
}

// New connects to postgres and redis and builds every service. Metrics are
// registered on reg.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, reg prometheus.Registerer) (*App, error) {
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("database schema ensured")
	}

	client, err := brokerRedis.NewClient(ctx, brokerRedis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Logger:  log,
		DB:      db,
		Redis:   client,
		Broker:  brokerRedis.NewRedisBroker(client, log.ZL),
		Metrics: metrics.NewMetrics(cfg.Monitoring.Namespace, reg),
	}
	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.Config
	loc := cfg.Reminders.Location()

	base := postgres.NewBaseRepository(a.DB)
	a.Rules = postgres.NewReminderRuleRepository(base)
	a.Discounts = postgres.NewDiscountRepository(base)
	a.Subscriptions = postgres.NewSubscriptionRepository(base)
	roster := audience.NewCachedDirectory(postgres.NewDirectoryRepository(base), cfg.Reminders.DirectoryCacheTTL)
	a.Directory = roster
	payments := postgres.NewPaymentRepository(base)
	a.Notifications = postgres.NewNotificationRepository(base)
	a.Outbox = postgres.NewOutboxRepository(base)

	switch cfg.Reminders.IdempotencyBackend {
	case "redis":
		a.SendLog = redisStore.NewSendLogStore(a.Redis, cfg.Reminders.SendLogRetention)
	case "postgres":
		a.SendLog = postgres.NewSendLogRepository(base)
	default:
		return fmt.Errorf("unknown idempotency backend %q", cfg.Reminders.IdempotencyBackend)
	}

	gw := gateway.NewMultiplexer(
		gateway.NewInAppSender(a.Notifications),
		gateway.NewSMSSender(cfg.SMS, a.Directory),
	)

	renderer := reminder.NewRenderer()
	ruleValidator := reminder.NewRuleValidator(renderer)
	a.Resolver = audience.NewResolver(a.Directory)

	a.RuleService = reminder.NewRuleService(a.Rules, ruleValidator, a.Logger)
	a.Dispatcher = reminder.NewDispatcher(
		a.Subscriptions,
		a.Directory,
		gw,
		renderer,
		reminder.DispatcherConfig{
			DefaultTemplate: cfg.Reminders.DefaultTemplate,
			Workers:         cfg.Reminders.BulkWorkers,
			Location:        loc,
		},
		a.Metrics,
		a.Logger,
	)
	evaluator := reminder.NewEvaluator(
		a.Subscriptions,
		payments,
		a.Directory,
		a.Resolver,
		a.SendLog,
		ruleValidator,
		reminder.EvaluatorConfig{
			CatchUp:           cfg.Reminders.CatchUp,
			LookbackDays:      cfg.Reminders.LookbackDays,
			SpecificDateScope: reminder.SpecificDateScope(cfg.Reminders.SpecificDateScope),
			WindowDays:        cfg.Reminders.SpecificDateWindowDays,
		},
		a.Metrics,
		a.Logger,
	)
	a.Sweeper = reminder.NewSweeper(
		a.Rules,
		evaluator,
		a.Dispatcher,
		a.SendLog,
		model.Channel(cfg.Reminders.Channel),
		loc,
		a.Metrics,
		a.Logger,
	).WithRosterCache(roster)

	a.DiscountService = discount.NewService(a.Discounts, a.Metrics, a.Logger)
	a.PaymentService = payment.NewService(payments, a.Subscriptions, a.DiscountService, a.Metrics, a.Logger)
	a.SubscriptionService = subscription.NewService(a.Subscriptions, loc)
	return nil
}

// HealthChecks returns the readiness checks for the backing stores.
func (a *App) HealthChecks() map[string]handler.Pinger {
	return map[string]handler.Pinger{
		"database": a.DB,
		"redis": handler.PingerFunc(func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}),
	}
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.Logger.Error(err, "failed to close broker")
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error(err, "failed to close redis client")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error(err, "failed to close database")
		}
	}
}
