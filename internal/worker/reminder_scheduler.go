package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jwalitptl/academy-api/internal/service/reminder"
	"github.com/jwalitptl/academy-api/pkg/logger"
)

// Ticker runs the reminder rules that are due at now.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (*reminder.SweepReport, error)
}

type ReminderSchedulerConfig struct {
	// Spec is a five-field cron expression. Every tick evaluates the rules
	// whose send_time has passed, so a minute granularity matches HH:MM.
	Spec        string
	Location    *time.Location
	TickTimeout time.Duration
}

// ReminderScheduler drives the daily reminder sweep from cron. Ticks that
// overlap a still running one are skipped.
type ReminderScheduler struct {
	sweeper Ticker
	config  ReminderSchedulerConfig
	logger  *logger.Logger
	now     func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func NewReminderScheduler(sweeper Ticker, config ReminderSchedulerConfig, logger *logger.Logger) *ReminderScheduler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.TickTimeout <= 0 {
		config.TickTimeout = 5 * time.Minute
	}
	return &ReminderScheduler{
		sweeper: sweeper,
		config:  config,
		logger:  logger.With("reminder-scheduler"),
		now:     time.Now,
	}
}

func newCron(loc *time.Location) *cron.Cron {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
}

// Start schedules the sweep and blocks until ctx is cancelled.
func (s *ReminderScheduler) Start(ctx context.Context) error {
	c := newCron(s.config.Location)
	if _, err := c.AddFunc(s.config.Spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", s.config.Spec, err)
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	s.logger.Info("Starting reminder scheduler", "spec", s.config.Spec, "location", s.config.Location.String())

	<-ctx.Done()
	s.logger.Info("Shutting down reminder scheduler")
	<-c.Stop().Done()
	return nil
}

func (s *ReminderScheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	tickCtx, cancel := context.WithTimeout(ctx, s.config.TickTimeout)
	defer cancel()

	report, err := s.sweeper.Tick(tickCtx, s.now().In(s.config.Location))
	if err != nil {
		s.logger.Error(err, "reminder sweep failed")
		return
	}
	if len(report.Errors) > 0 {
		s.logger.Warn("reminder sweep finished with errors", "errors", len(report.Errors))
	}
}
