package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/academy-api/internal/gateway"
	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	"github.com/jwalitptl/academy-api/internal/service/urgency"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/logger"
	"github.com/jwalitptl/academy-api/pkg/metrics"
)

// Failure records one send that did not go through.
type Failure struct {
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	Channel        string     `json:"channel,omitempty"`
	Error          string     `json:"error"`
}

// Summary aggregates the outcome of a dispatch.
type Summary struct {
	NotificationsSent int       `json:"notifications_sent"`
	SMSSent           int       `json:"sms_sent"`
	Failures          []Failure `json:"failures"`
}

// Delivered is the number of successful sends over all channels.
func (s *Summary) Delivered() int {
	return s.NotificationsSent + s.SMSSent
}

func (s *Summary) merge(o *Summary) {
	s.NotificationsSent += o.NotificationsSent
	s.SMSSent += o.SMSSent
	s.Failures = append(s.Failures, o.Failures...)
}

type DispatcherConfig struct {
	// DefaultTemplate renders manual reminders.
	DefaultTemplate string
	// Workers bounds concurrent subscriptions in a bulk send.
	Workers  int
	Location *time.Location
}

// Dispatcher fans reminders out to the gateway. A failed recipient is
// recorded in the summary and never stops the rest of the batch.
type Dispatcher struct {
	subscriptions repository.SubscriptionRepository
	directory     repository.DirectoryRepository
	gateway       gateway.Gateway
	renderer      *Renderer
	cfg           DispatcherConfig
	metrics       *metrics.Metrics
	log           *logger.Logger
	now           func() time.Time
}

func NewDispatcher(
	subscriptions repository.SubscriptionRepository,
	directory repository.DirectoryRepository,
	gw gateway.Gateway,
	renderer *Renderer,
	cfg DispatcherConfig,
	m *metrics.Metrics,
	log *logger.Logger,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Dispatcher{
		subscriptions: subscriptions,
		directory:     directory,
		gateway:       gw,
		renderer:      renderer,
		cfg:           cfg,
		metrics:       m,
		log:           log.With("dispatcher"),
		now:           time.Now,
	}
}

// SendReminder reminds the parents of a subscription's player. It fails
// with ExternalDelivery only when nothing could be delivered.
func (d *Dispatcher) SendReminder(ctx context.Context, subscriptionID uuid.UUID, channel model.Channel) (*Summary, error) {
	if !channel.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("invalid channel %q", channel), nil)
	}

	summary, err := d.sendForSubscription(ctx, subscriptionID, channel)
	if err != nil {
		return nil, err
	}
	if summary.Delivered() == 0 && len(summary.Failures) > 0 {
		return summary, apperrors.NewExternalDelivery(string(channel),
			fmt.Errorf("%d sends failed: %s", len(summary.Failures), summary.Failures[0].Error))
	}
	return summary, nil
}

// SendBulkReminders sends to every distinct subscription on a bounded pool.
// Missing subscriptions count as failures.
func (d *Dispatcher) SendBulkReminders(ctx context.Context, subscriptionIDs []uuid.UUID, channel model.Channel) (*Summary, error) {
	if !channel.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("invalid channel %q", channel), nil)
	}
	if len(subscriptionIDs) == 0 {
		return nil, apperrors.Validation("at least one subscription id is required", nil)
	}
	subscriptionIDs = uniqueIDs(subscriptionIDs)
	d.metrics.BulkBatchSize.Observe(float64(len(subscriptionIDs)))

	var (
		mu    sync.Mutex
		total = &Summary{Failures: []Failure{}}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)

	for _, id := range subscriptionIDs {
		id := id
		g.Go(func() error {
			summary, err := d.sendForSubscription(gctx, id, channel)
			if err != nil {
				summary = &Summary{Failures: []Failure{{SubscriptionID: &id, Error: err.Error()}}}
			}
			mu.Lock()
			total.merge(summary)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	d.log.Info("bulk reminders sent",
		"subscriptions", len(subscriptionIDs),
		"notifications_sent", total.NotificationsSent,
		"sms_sent", total.SMSSent,
		"failures", len(total.Failures),
	)
	return total, nil
}

// DispatchIntent delivers a rule intent to each of its recipients.
func (d *Dispatcher) DispatchIntent(ctx context.Context, intent *model.SendIntent, channel model.Channel) *Summary {
	summary := &Summary{Failures: []Failure{}}
	var subID *uuid.UUID
	if intent.TargetKind == model.TargetSubscription {
		id := intent.Key.TargetID
		subID = &id
	}
	for _, userID := range intent.Recipients {
		d.deliver(ctx, summary, subID, userID, intent.Template, intent.Vars, channel)
	}
	return summary
}

func (d *Dispatcher) sendForSubscription(ctx context.Context, id uuid.UUID, channel model.Channel) (*Summary, error) {
	sub, err := d.subscriptions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	parents, err := d.directory.ParentsOfPlayer(ctx, sub.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve parents: %w", err)
	}

	summary := &Summary{Failures: []Failure{}}
	if len(parents) == 0 {
		summary.Failures = append(summary.Failures, Failure{SubscriptionID: &sub.ID, Error: "player has no parent on record"})
		return summary, nil
	}

	today := model.DateOf(d.now().In(d.cfg.Location))
	remaining := urgency.DaysRemaining(sub.EndDate, today)
	vars := map[string]interface{}{
		"player_name":    d.accountName(ctx, sub.PlayerID),
		"end_date":       model.DateOf(sub.EndDate).Format(model.DateLayout),
		"days_remaining": remaining,
		"tier":           string(urgency.Classify(remaining)),
		"amount":         sub.TotalAmount,
	}
	for _, parent := range parents {
		d.deliver(ctx, summary, &sub.ID, parent, d.cfg.DefaultTemplate, vars, channel)
	}
	return summary, nil
}

func (d *Dispatcher) deliver(ctx context.Context, summary *Summary, subID *uuid.UUID, userID uuid.UUID, template string, vars map[string]interface{}, channel model.Channel) {
	bindings := make(map[string]interface{}, len(vars)+1)
	for k, v := range vars {
		bindings[k] = v
	}
	bindings["recipient_name"] = d.accountName(ctx, userID)

	message, err := d.renderer.Render(template, bindings)
	if err != nil {
		summary.Failures = append(summary.Failures, Failure{SubscriptionID: subID, UserID: &userID, Error: err.Error()})
		return
	}

	for _, ch := range channel.Expand() {
		start := time.Now()
		err := d.gateway.Send(ctx, userID, message, ch)
		d.metrics.DeliveryLatency.WithLabelValues(string(ch)).Observe(time.Since(start).Seconds())
		if err != nil {
			d.metrics.Deliveries.WithLabelValues(string(ch), "failed").Inc()
			d.log.Warn("reminder delivery failed",
				"user_id", userID.String(), "channel", string(ch), "error", err.Error())
			summary.Failures = append(summary.Failures, Failure{
				SubscriptionID: subID,
				UserID:         &userID,
				Channel:        string(ch),
				Error:          err.Error(),
			})
			continue
		}
		d.metrics.Deliveries.WithLabelValues(string(ch), "sent").Inc()
		switch ch {
		case model.ChannelNotification:
			summary.NotificationsSent++
		case model.ChannelSMS:
			summary.SMSSent++
		}
	}
}

func (d *Dispatcher) accountName(ctx context.Context, id uuid.UUID) string {
	account, err := d.directory.Account(ctx, id)
	if err != nil {
		return ""
	}
	return account.FullName
}

// uniqueIDs drops repeated ids, keeping first-seen order.
func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
