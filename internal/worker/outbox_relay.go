package worker

import (
	"context"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	"github.com/jwalitptl/academy-api/pkg/logger"
	"github.com/jwalitptl/academy-api/pkg/messaging"
	"github.com/jwalitptl/academy-api/pkg/metrics"
)

type OutboxRelayConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// MaxAttempts counts publishes; the last failure marks the event failed.
	MaxAttempts   int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	Lease         time.Duration
}

// NotificationMarker flags an inbox row once its push went out.
type NotificationMarker interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.NotificationStatus) error
}

// OutboxRelay publishes stored outbox events to the broker. Failed
// publishes are retried with exponential backoff across polls.
type OutboxRelay struct {
	repo          repository.OutboxRepository
	notifications NotificationMarker
	broker        messaging.Broker
	config        OutboxRelayConfig
	logger        *logger.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewOutboxRelay(
	repo repository.OutboxRepository,
	notifications NotificationMarker,
	broker messaging.Broker,
	config OutboxRelayConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxRelay {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.MaxRetryDelay < config.RetryDelay {
		config.MaxRetryDelay = config.RetryDelay
	}
	if config.Lease <= 0 {
		config.Lease = 30 * time.Second
	}

	return &OutboxRelay{
		repo:          repo,
		notifications: notifications,
		broker:        broker,
		config:        config,
		logger:        logger.With("outbox-relay"),
		metrics:       metrics,
		now:           time.Now,
	}
}

func (r *OutboxRelay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.logger.Info("Starting outbox relay")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Shutting down outbox relay")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error(err, "Failed to relay outbox events")
			}
		}
	}
}

// RunOnce relays one batch and returns how many events were published.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(r.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := r.repo.ClaimPending(ctx, r.config.BatchSize, r.config.Lease)
	if err != nil {
		r.metrics.DatabaseOperations.WithLabelValues("claim_outbox_events", "error").Inc()
		return 0, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	r.metrics.DatabaseOperations.WithLabelValues("claim_outbox_events", "success").Inc()

	published := 0
	for _, event := range events {
		if err := r.relay(ctx, event); err != nil {
			r.logger.Error(err, "Failed to relay event",
				"event_id", event.ID.String(),
				"event_type", event.EventType,
				"attempt", event.RetryCount+1)
			continue
		}
		published++
	}
	return published, nil
}

func (r *OutboxRelay) relay(ctx context.Context, event *model.OutboxEvent) error {
	if err := r.broker.Publish(ctx, event.Channel, event.Payload); err != nil {
		return r.fail(ctx, event, err)
	}

	r.metrics.OutboxEventsProcessed.Inc()
	if err := r.repo.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	if err := r.notifications.UpdateStatus(ctx, event.AggregateID, model.NotificationStatusSent); err != nil {
		r.logger.Warn("Failed to mark notification sent",
			"notification_id", event.AggregateID.String(), "error", err.Error())
	}
	return nil
}

func (r *OutboxRelay) fail(ctx context.Context, event *model.OutboxEvent, cause error) error {
	attempt := event.RetryCount + 1
	if attempt >= r.config.MaxAttempts {
		r.metrics.OutboxEventsFailed.Inc()
		if err := r.repo.MarkFailed(ctx, event.ID, cause.Error()); err != nil {
			r.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		}
		return fmt.Errorf("giving up after %d attempts: %w", attempt, cause)
	}

	r.metrics.OutboxEventsRetried.Inc()
	retryAt := r.now().Add(r.retryDelay(event.RetryCount))
	if err := r.repo.MarkRetry(ctx, event.ID, cause.Error(), retryAt); err != nil {
		r.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
	}
	return cause
}

// retryDelay is RetryDelay doubled per earlier failure, capped at
// MaxRetryDelay.
func (r *OutboxRelay) retryDelay(failures int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.RetryDelay
	b.MaxInterval = r.config.MaxRetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 0; i < failures; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
