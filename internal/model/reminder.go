package model

import (
	"time"

	"github.com/google/uuid"
)

type RuleType string

const (
	RuleSubscriptionExpiring RuleType = "subscription_expiring"
	RulePaymentOverdue       RuleType = "payment_overdue"
)

type TriggerMode string

const (
	TriggerDays         TriggerMode = "days"
	TriggerSpecificDate TriggerMode = "specific_date"
)

// ReminderRule is a staff-managed rule read by the daily sweep.
type ReminderRule struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	Title          string       `json:"title" db:"title" validate:"required,max=200"`
	Type           RuleType     `json:"type" db:"type" validate:"required,oneof=subscription_expiring payment_overdue"`
	TriggerMode    TriggerMode  `json:"trigger_mode,omitempty" db:"trigger_mode" validate:"omitempty,oneof=days specific_date"`
	DaysBefore     *int         `json:"days_before,omitempty" db:"days_before" validate:"omitempty,min=1,max=60"`
	DaysAfter      *int         `json:"days_after,omitempty" db:"days_after" validate:"omitempty,min=1,max=60"`
	SpecificDate   *time.Time   `json:"specific_date,omitempty" db:"specific_date"`
	SendTime       string       `json:"send_time" db:"send_time" validate:"required,datetime=15:04"`
	Message        string       `json:"message" db:"message" validate:"required,max=1000"`
	Enabled        bool         `json:"enabled" db:"enabled"`
	TargetAudience AudienceSpec `json:"target_audience" db:"target_audience"`
	LastUpdatedBy  *uuid.UUID   `json:"last_updated_by,omitempty" db:"last_updated_by"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// SendClock returns the hour and minute of SendTime. Invalid values yield
// midnight; rules are validated before they are stored.
func (r *ReminderRule) SendClock() (int, int) {
	t, err := time.Parse("15:04", r.SendTime)
	if err != nil {
		return 0, 0
	}
	return t.Hour(), t.Minute()
}

// DueAt reports whether the rule's send time has been reached on now's day.
func (r *ReminderRule) DueAt(now time.Time) bool {
	h, m := r.SendClock()
	return now.Hour() > h || (now.Hour() == h && now.Minute() >= m)
}

// TargetKind names what a send intent points at.
type TargetKind string

const (
	TargetSubscription TargetKind = "subscription"
	TargetPayment      TargetKind = "payment"
)

// SendKey is the idempotency unit of the reminder engine.
type SendKey struct {
	RuleID   uuid.UUID `json:"rule_id" db:"rule_id"`
	TargetID uuid.UUID `json:"target_id" db:"target_id"`
	Date     time.Time `json:"date" db:"send_date"`
}

func (k SendKey) String() string {
	return k.RuleID.String() + ":" + k.TargetID.String() + ":" + DateOf(k.Date).Format(DateLayout)
}

// SendIntent is one rule firing for one target, ready for dispatch.
// Template is rendered per recipient with Vars plus the recipient's name.
type SendIntent struct {
	Key        SendKey
	Rule       *ReminderRule
	TargetKind TargetKind
	Recipients []uuid.UUID
	Template   string
	Vars       map[string]interface{}
}
