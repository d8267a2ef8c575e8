package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/service/audience"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/logger"
	"github.com/jwalitptl/academy-api/pkg/metrics"
)

var testToday = time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

func day(offset int) time.Time {
	return testToday.AddDate(0, 0, offset)
}

func intPtr(v int) *int { return &v }

type memRules struct {
	mu    sync.Mutex
	rules map[uuid.UUID]*model.ReminderRule
}

func newMemRules(rules ...*model.ReminderRule) *memRules {
	m := &memRules{rules: make(map[uuid.UUID]*model.ReminderRule)}
	for _, r := range rules {
		m.rules[r.ID] = r
	}
	return m
}

func (m *memRules) Create(_ context.Context, rule *model.ReminderRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule
	return nil
}

func (m *memRules) Get(_ context.Context, id uuid.UUID) (*model.ReminderRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, apperrors.NotFound("reminder rule", nil)
	}
	cp := *r
	return &cp, nil
}

func (m *memRules) Update(_ context.Context, rule *model.ReminderRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[rule.ID]; !ok {
		return apperrors.NotFound("reminder rule", nil)
	}
	m.rules[rule.ID] = rule
	return nil
}

func (m *memRules) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return apperrors.NotFound("reminder rule", nil)
	}
	delete(m.rules, id)
	return nil
}

func (m *memRules) List(_ context.Context) ([]*model.ReminderRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.ReminderRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRules) ListEnabled(ctx context.Context) ([]*model.ReminderRule, error) {
	all, _ := m.List(ctx)
	var out []*model.ReminderRule
	for _, r := range all {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRules) Toggle(_ context.Context, id uuid.UUID, updatedBy *uuid.UUID) (*model.ReminderRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, apperrors.NotFound("reminder rule", nil)
	}
	r.Enabled = !r.Enabled
	r.LastUpdatedBy = updatedBy
	cp := *r
	return &cp, nil
}

type memSubscriptions struct {
	subs []*model.Subscription
}

func (m *memSubscriptions) Get(_ context.Context, id uuid.UUID) (*model.Subscription, error) {
	for _, s := range m.subs {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, apperrors.NotFound("subscription", nil)
}

func (m *memSubscriptions) List(_ context.Context, f *model.SubscriptionFilters) ([]*model.Subscription, error) {
	var out []*model.Subscription
	for _, s := range m.subs {
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.EndingFrom != nil && s.EndDate.Before(model.DateOf(*f.EndingFrom)) {
			continue
		}
		if f.EndingUntil != nil && s.EndDate.After(model.DateOf(*f.EndingUntil)) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type memPayments struct {
	payments []*model.Payment
}

func (m *memPayments) Get(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	for _, p := range m.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apperrors.NotFound("payment", nil)
}

func (m *memPayments) ListOverdue(_ context.Context, asOf time.Time) ([]*model.Payment, error) {
	var out []*model.Payment
	for _, p := range m.payments {
		if (p.Status == model.PaymentPending || p.Status == model.PaymentOverdue) && p.DueDate.Before(model.DateOf(asOf)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPayments) Create(_ context.Context, p *model.Payment) error {
	m.payments = append(m.payments, p)
	return nil
}

type memDirectory struct {
	accounts map[uuid.UUID]*model.Account
	parents  map[uuid.UUID][]uuid.UUID
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		accounts: make(map[uuid.UUID]*model.Account),
		parents:  make(map[uuid.UUID][]uuid.UUID),
	}
}

func (d *memDirectory) add(role model.Role, name string) uuid.UUID {
	id := uuid.New()
	d.accounts[id] = &model.Account{ID: id, Role: role, FullName: name, Active: true}
	return id
}

func (d *memDirectory) BranchMembers(context.Context, uuid.UUID, model.Group) ([]uuid.UUID, error) {
	return nil, nil
}

func (d *memDirectory) ActiveAccounts(_ context.Context, roles []model.Role) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id, a := range d.accounts {
		for _, r := range roles {
			if a.Active && a.Role == r {
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (d *memDirectory) ExistingAccounts(_ context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, id := range ids {
		if _, ok := d.accounts[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (d *memDirectory) ParentsOfPlayer(_ context.Context, playerID uuid.UUID) ([]uuid.UUID, error) {
	return d.parents[playerID], nil
}

func (d *memDirectory) Account(_ context.Context, id uuid.UUID) (*model.Account, error) {
	a, ok := d.accounts[id]
	if !ok {
		return nil, apperrors.NotFound("account", nil)
	}
	return a, nil
}

type memSendLog struct {
	mu    sync.Mutex
	fired map[string]int
}

func newMemSendLog() *memSendLog {
	return &memSendLog{fired: make(map[string]int)}
}

func (l *memSendLog) Fired(_ context.Context, keys []model.SendKey) (map[string]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]bool)
	for _, k := range keys {
		if _, ok := l.fired[k.String()]; ok {
			out[k.String()] = true
		}
	}
	return out, nil
}

func (l *memSendLog) Claim(_ context.Context, key model.SendKey) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.fired[key.String()]; ok {
		return false, nil
	}
	l.fired[key.String()] = 0
	return true, nil
}

func (l *memSendLog) Release(_ context.Context, key model.SendKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.fired, key.String())
	return nil
}

func (l *memSendLog) MarkFired(_ context.Context, key model.SendKey, recipients int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fired[key.String()] = recipients
	return nil
}

func (l *memSendLog) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type sentMessage struct {
	UserID  uuid.UUID
	Message string
	Channel model.Channel
}

type recordingGateway struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[uuid.UUID]bool
	delay   time.Duration
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{failFor: make(map[uuid.UUID]bool)}
}

func (g *recordingGateway) Send(_ context.Context, userID uuid.UUID, message string, channel model.Channel) error {
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failFor[userID] {
		return apperrors.NewExternalDelivery(string(channel), errors.New("gateway timeout"))
	}
	g.sent = append(g.sent, sentMessage{UserID: userID, Message: message, Channel: channel})
	return nil
}

func (g *recordingGateway) recipients() []uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]uuid.UUID, 0, len(g.sent))
	for _, s := range g.sent {
		out = append(out, s.UserID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

type fixture struct {
	rules      *memRules
	subs       *memSubscriptions
	payments   *memPayments
	dir        *memDirectory
	sendLog    *memSendLog
	gateway    *recordingGateway
	metrics    *metrics.Metrics
	evaluator  *Evaluator
	dispatcher *Dispatcher
	sweeper    *Sweeper
}

func newFixture(t *testing.T, cfg EvaluatorConfig) *fixture {
	t.Helper()
	f := &fixture{
		rules:    newMemRules(),
		subs:     &memSubscriptions{},
		payments: &memPayments{},
		dir:      newMemDirectory(),
		sendLog:  newMemSendLog(),
		gateway:  newRecordingGateway(),
		metrics:  metrics.NewNop(),
	}
	log := logger.NewNop()
	renderer := NewRenderer()
	f.evaluator = NewEvaluator(f.subs, f.payments, f.dir, audience.NewResolver(f.dir), f.sendLog,
		NewRuleValidator(renderer), cfg, f.metrics, log)
	f.dispatcher = NewDispatcher(f.subs, f.dir, f.gateway, renderer, DispatcherConfig{
		DefaultTemplate: "Hi {{ recipient_name }}, {{ player_name }} ends on {{ end_date }}",
		Workers:         3,
	}, f.metrics, log)
	f.dispatcher.now = func() time.Time { return testToday.Add(9 * time.Hour) }
	f.sweeper = NewSweeper(f.rules, f.evaluator, f.dispatcher, f.sendLog, model.ChannelNotification, time.UTC, f.metrics, log)
	return f
}

// addFamily creates a player with one parent and an active subscription
// ending on end.
func (f *fixture) addFamily(end time.Time) (*model.Subscription, uuid.UUID, uuid.UUID) {
	player := f.dir.add(model.RolePlayer, "Sara")
	parent := f.dir.add(model.RoleParent, "Omar")
	f.dir.parents[player] = []uuid.UUID{parent}
	sub := &model.Subscription{
		ID:          uuid.New(),
		PlayerID:    player,
		ProgramID:   uuid.New(),
		BranchID:    uuid.New(),
		EndDate:     end,
		Status:      model.SubscriptionActive,
		TotalAmount: 300,
	}
	f.subs.subs = append(f.subs.subs, sub)
	return sub, player, parent
}

func (f *fixture) addRule(rule *model.ReminderRule) *model.ReminderRule {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.Title == "" {
		rule.Title = "reminder"
	}
	if rule.SendTime == "" {
		rule.SendTime = "09:00"
	}
	if rule.Message == "" {
		rule.Message = "{{ player_name }}: {{ days_remaining }} days left"
	}
	if rule.TargetAudience.Kind == "" {
		rule.TargetAudience = model.AudienceSpec{Kind: model.AudienceAll}
	}
	rule.Enabled = true
	f.rules.rules[rule.ID] = rule
	return rule
}

func daysRule(daysBefore int) *model.ReminderRule {
	return &model.ReminderRule{
		Type:        model.RuleSubscriptionExpiring,
		TriggerMode: model.TriggerDays,
		DaysBefore:  intPtr(daysBefore),
	}
}
