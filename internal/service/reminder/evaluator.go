package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	"github.com/jwalitptl/academy-api/internal/service/audience"
	"github.com/jwalitptl/academy-api/internal/service/urgency"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/logger"
	"github.com/jwalitptl/academy-api/pkg/metrics"
)

// SpecificDateScope selects which subscriptions a specific_date rule
// reminds on its date.
type SpecificDateScope string

const (
	// ScopeWindow takes active subscriptions ending between today and
	// WindowDays after the rule's date.
	ScopeWindow SpecificDateScope = "window"
	// ScopeAllActive takes every active subscription.
	ScopeAllActive SpecificDateScope = "all_active"
)

type EvaluatorConfig struct {
	// CatchUp fires triggers whose day passed within LookbackDays but were
	// never recorded, instead of matching today only.
	CatchUp           bool
	LookbackDays      int
	SpecificDateScope SpecificDateScope
	WindowDays        int
}

func (c EvaluatorConfig) lookback() int {
	if !c.CatchUp || c.LookbackDays < 0 {
		return 0
	}
	return c.LookbackDays
}

// Evaluator turns enabled rules into deduplicated send intents for a day.
type Evaluator struct {
	subscriptions repository.SubscriptionRepository
	payments      repository.PaymentRepository
	directory     repository.DirectoryRepository
	resolver      audience.Resolver
	sendLog       repository.SendLogRepository
	validator     *RuleValidator
	cfg           EvaluatorConfig
	metrics       *metrics.Metrics
	log           *logger.Logger
}

func NewEvaluator(
	subscriptions repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	directory repository.DirectoryRepository,
	resolver audience.Resolver,
	sendLog repository.SendLogRepository,
	validator *RuleValidator,
	cfg EvaluatorConfig,
	m *metrics.Metrics,
	log *logger.Logger,
) *Evaluator {
	if cfg.SpecificDateScope == "" {
		cfg.SpecificDateScope = ScopeWindow
	}
	return &Evaluator{
		subscriptions: subscriptions,
		payments:      payments,
		directory:     directory,
		resolver:      resolver,
		sendLog:       sendLog,
		validator:     validator,
		cfg:           cfg,
		metrics:       m,
		log:           log.With("evaluator"),
	}
}

// candidate is one target a rule matched, with the day it was due.
type candidate struct {
	kind     model.TargetKind
	id       uuid.UUID
	playerID uuid.UUID
	anchor   time.Time
	vars     map[string]interface{}
}

// Evaluate returns the intents of rules due on today that have not been
// recorded in the send log. Invalid rules are logged and skipped; rules that
// fail on a lookup are skipped and reported in the returned error while the
// remaining rules still produce intents.
func (e *Evaluator) Evaluate(ctx context.Context, rules []*model.ReminderRule, today time.Time) ([]*model.SendIntent, error) {
	today = model.DateOf(today)

	var (
		intents []*model.SendIntent
		errs    []error
	)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		ruleIntents, err := e.evaluateRule(ctx, rule, today)
		if err != nil {
			if apperrors.IsValidation(err) {
				e.metrics.RulesSkipped.WithLabelValues("invalid").Inc()
				e.log.Warn("skipping malformed reminder rule",
					"rule_id", rule.ID.String(), "error", err.Error())
				continue
			}
			e.metrics.RulesSkipped.WithLabelValues("error").Inc()
			e.log.Error(err, "failed to evaluate reminder rule", "rule_id", rule.ID.String())
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
			continue
		}
		e.metrics.RulesEvaluated.WithLabelValues(string(rule.Type)).Inc()
		intents = append(intents, ruleIntents...)
	}
	return intents, errors.Join(errs...)
}

func (e *Evaluator) evaluateRule(ctx context.Context, stored *model.ReminderRule, today time.Time) ([]*model.SendIntent, error) {
	rule := *stored
	Normalize(&rule)
	if err := e.validator.Validate(&rule); err != nil {
		return nil, err
	}

	candidates, err := e.candidates(ctx, &rule, today)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	keys := make([]model.SendKey, len(candidates))
	for i, c := range candidates {
		keys[i] = model.SendKey{RuleID: rule.ID, TargetID: c.id, Date: c.anchor}
	}
	fired, err := e.sendLog.Fired(ctx, keys)
	if err != nil {
		return nil, err
	}

	var pending []int
	for i, k := range keys {
		if fired[k.String()] {
			e.metrics.DuplicatesSuppressed.Inc()
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	allowed, err := e.resolver.Resolve(ctx, rule.TargetAudience)
	if err != nil {
		return nil, err
	}

	var intents []*model.SendIntent
	for _, i := range pending {
		c := candidates[i]
		stakeholders, err := e.stakeholders(ctx, c.playerID)
		if err != nil {
			return nil, err
		}
		recipients := audience.Intersect(stakeholders, allowed)
		if len(recipients) == 0 {
			e.log.Info("rule audience excludes every stakeholder of target",
				"rule_id", rule.ID.String(),
				"target_id", c.id.String(),
				"audience", string(rule.TargetAudience.Kind))
			continue
		}

		c.vars["rule_title"] = rule.Title
		intents = append(intents, &model.SendIntent{
			Key:        keys[i],
			Rule:       stored,
			TargetKind: c.kind,
			Recipients: recipients,
			Template:   rule.Message,
			Vars:       c.vars,
		})
		e.metrics.IntentsEmitted.WithLabelValues(string(rule.Type)).Inc()
	}
	return intents, nil
}

func (e *Evaluator) candidates(ctx context.Context, rule *model.ReminderRule, today time.Time) ([]candidate, error) {
	switch rule.Type {
	case model.RuleSubscriptionExpiring:
		switch rule.TriggerMode {
		case model.TriggerDays:
			return e.expiringInDays(ctx, *rule.DaysBefore, today)
		case model.TriggerSpecificDate:
			return e.expiringOnDate(ctx, *rule.SpecificDate, today)
		}
	case model.RulePaymentOverdue:
		return e.overdueFor(ctx, *rule.DaysAfter, today)
	}
	return nil, apperrors.Validation(fmt.Sprintf("unsupported rule type %q with trigger %q", rule.Type, rule.TriggerMode), nil)
}

// expiringInDays matches active subscriptions with exactly daysBefore days
// left, or with catch-up, those whose reminder day fell in the lookback.
func (e *Evaluator) expiringInDays(ctx context.Context, daysBefore int, today time.Time) ([]candidate, error) {
	to := today.AddDate(0, 0, daysBefore)
	from := to.AddDate(0, 0, -e.cfg.lookback())
	if from.Before(today) {
		from = today
	}

	subs, err := e.subscriptions.List(ctx, &model.SubscriptionFilters{
		Status:      model.SubscriptionActive,
		EndingFrom:  &from,
		EndingUntil: &to,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring subscriptions: %w", err)
	}

	out := make([]candidate, 0, len(subs))
	for _, sub := range subs {
		anchor := model.DateOf(sub.EndDate).AddDate(0, 0, -daysBefore)
		out = append(out, e.subscriptionCandidate(ctx, sub, anchor, today))
	}
	return out, nil
}

func (e *Evaluator) expiringOnDate(ctx context.Context, date, today time.Time) ([]candidate, error) {
	date = model.DateOf(date)
	late := model.DaysBetween(date, today)
	if late < 0 || late > e.cfg.lookback() {
		return nil, nil
	}

	filters := &model.SubscriptionFilters{Status: model.SubscriptionActive}
	if e.cfg.SpecificDateScope == ScopeWindow {
		until := date.AddDate(0, 0, e.cfg.WindowDays)
		filters.EndingFrom = &today
		filters.EndingUntil = &until
	}

	subs, err := e.subscriptions.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	out := make([]candidate, 0, len(subs))
	for _, sub := range subs {
		out = append(out, e.subscriptionCandidate(ctx, sub, date, today))
	}
	return out, nil
}

func (e *Evaluator) overdueFor(ctx context.Context, daysAfter int, today time.Time) ([]candidate, error) {
	payments, err := e.payments.ListOverdue(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue payments: %w", err)
	}

	var out []candidate
	for _, p := range payments {
		since := p.DaysOverdue(today)
		if since < daysAfter || since > daysAfter+e.cfg.lookback() {
			continue
		}
		out = append(out, candidate{
			kind:     model.TargetPayment,
			id:       p.ID,
			playerID: p.PlayerID,
			anchor:   model.DateOf(p.DueDate).AddDate(0, 0, daysAfter),
			vars: map[string]interface{}{
				"player_name":  e.playerName(ctx, p.PlayerID),
				"amount":       p.FinalAmount,
				"due_date":     model.DateOf(p.DueDate).Format(model.DateLayout),
				"days_overdue": since,
			},
		})
	}
	return out, nil
}

func (e *Evaluator) subscriptionCandidate(ctx context.Context, sub *model.Subscription, anchor, today time.Time) candidate {
	remaining := urgency.DaysRemaining(sub.EndDate, today)
	return candidate{
		kind:     model.TargetSubscription,
		id:       sub.ID,
		playerID: sub.PlayerID,
		anchor:   anchor,
		vars: map[string]interface{}{
			"player_name":    e.playerName(ctx, sub.PlayerID),
			"end_date":       model.DateOf(sub.EndDate).Format(model.DateLayout),
			"days_remaining": remaining,
			"tier":           string(urgency.Classify(remaining)),
			"amount":         sub.TotalAmount,
		},
	}
}

// stakeholders are the player and the player's parents.
func (e *Evaluator) stakeholders(ctx context.Context, playerID uuid.UUID) ([]uuid.UUID, error) {
	parents, err := e.directory.ParentsOfPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list parents of %s: %w", playerID, err)
	}
	return append([]uuid.UUID{playerID}, parents...), nil
}

func (e *Evaluator) playerName(ctx context.Context, playerID uuid.UUID) string {
	account, err := e.directory.Account(ctx, playerID)
	if err != nil {
		return ""
	}
	return account.FullName
}
