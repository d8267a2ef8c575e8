package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	"github.com/jwalitptl/academy-api/pkg/logger"
	"github.com/jwalitptl/academy-api/pkg/metrics"
)

// SweepReport summarizes one evaluation pass.
type SweepReport struct {
	Date           string    `json:"date"`
	RulesEvaluated int       `json:"rules_evaluated"`
	IntentsEmitted int       `json:"intents_emitted"`
	Skipped        int       `json:"skipped"`
	Delivered      int       `json:"delivered"`
	Failures       []Failure `json:"failures"`
	Errors         []string  `json:"errors,omitempty"`
}

// Sweeper runs enabled rules through the evaluator and dispatcher. Each
// intent is claimed in the send log before delivery, so concurrent or
// repeated sweeps for the same date send nothing twice. A claim that
// reached nobody is released for the next tick.
type Sweeper struct {
	rules      repository.ReminderRuleRepository
	evaluator  *Evaluator
	dispatcher *Dispatcher
	sendLog    repository.SendLogRepository
	channel    model.Channel
	location   *time.Location
	metrics    *metrics.Metrics
	log        *logger.Logger
	roster     RosterCache
}

// RosterCache is a directory cache dropped at the start of each sweep so
// audiences resolve against the current roster.
type RosterCache interface {
	Flush()
}

func NewSweeper(
	rules repository.ReminderRuleRepository,
	evaluator *Evaluator,
	dispatcher *Dispatcher,
	sendLog repository.SendLogRepository,
	channel model.Channel,
	location *time.Location,
	m *metrics.Metrics,
	log *logger.Logger,
) *Sweeper {
	if location == nil {
		location = time.UTC
	}
	return &Sweeper{
		rules:      rules,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		sendLog:    sendLog,
		channel:    channel,
		location:   location,
		metrics:    m,
		log:        log.With("sweeper"),
	}
}

// WithRosterCache flushes c before every sweep.
func (s *Sweeper) WithRosterCache(c RosterCache) *Sweeper {
	s.roster = c
	return s
}

// Tick runs the rules whose send time has been reached today, in the
// academy's time zone. It is safe to call repeatedly through the day.
func (s *Sweeper) Tick(ctx context.Context, now time.Time) (*SweepReport, error) {
	local := now.In(s.location)
	enabled, err := s.rules.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled rules: %w", err)
	}

	due := enabled[:0:0]
	for _, rule := range enabled {
		if rule.DueAt(local) {
			due = append(due, rule)
		}
	}
	return s.run(ctx, due, model.DateOf(local))
}

// Sweep runs every enabled rule for date regardless of send time.
func (s *Sweeper) Sweep(ctx context.Context, date time.Time) (*SweepReport, error) {
	enabled, err := s.rules.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled rules: %w", err)
	}
	return s.run(ctx, enabled, model.DateOf(date))
}

func (s *Sweeper) run(ctx context.Context, rules []*model.ReminderRule, today time.Time) (*SweepReport, error) {
	start := time.Now()
	defer func() {
		s.metrics.SweepLatency.Observe(time.Since(start).Seconds())
	}()

	report := &SweepReport{
		Date:           today.Format(model.DateLayout),
		RulesEvaluated: len(rules),
		Failures:       []Failure{},
	}
	if len(rules) == 0 {
		return report, nil
	}
	if s.roster != nil {
		s.roster.Flush()
	}

	intents, evalErr := s.evaluator.Evaluate(ctx, rules, today)
	if evalErr != nil {
		report.Errors = append(report.Errors, evalErr.Error())
	}
	report.IntentsEmitted = len(intents)

	for _, intent := range intents {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		claimed, err := s.sendLog.Claim(ctx, intent.Key)
		if err != nil {
			s.log.Error(err, "failed to claim send", "key", intent.Key.String())
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		if !claimed {
			s.metrics.DuplicatesSuppressed.Inc()
			report.Skipped++
			s.log.Debug("send already claimed", "key", intent.Key.String())
			continue
		}

		summary := s.dispatcher.DispatchIntent(ctx, intent, s.channel)
		report.Delivered += summary.Delivered()
		report.Failures = append(report.Failures, summary.Failures...)

		if summary.Delivered() == 0 {
			s.log.Warn("intent not delivered, will retry on next tick",
				"key", intent.Key.String(), "failures", len(summary.Failures))
			if err := s.sendLog.Release(ctx, intent.Key); err != nil {
				s.log.Error(err, "failed to release send", "key", intent.Key.String())
				report.Errors = append(report.Errors, err.Error())
			}
			continue
		}
		if err := s.sendLog.MarkFired(ctx, intent.Key, summary.Delivered()); err != nil {
			s.log.Error(err, "failed to record send", "key", intent.Key.String())
			report.Errors = append(report.Errors, err.Error())
		}
	}

	s.log.Info("reminder sweep finished",
		"date", report.Date,
		"rules", report.RulesEvaluated,
		"intents", report.IntentsEmitted,
		"delivered", report.Delivered,
		"failures", len(report.Failures),
	)
	return report, nil
}
