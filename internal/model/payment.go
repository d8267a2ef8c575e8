package model

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentOverdue   PaymentStatus = "overdue"
	PaymentCancelled PaymentStatus = "cancelled"
)

type Payment struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	SubscriptionID uuid.UUID     `json:"subscription_id" db:"subscription_id"`
	PlayerID       uuid.UUID     `json:"player_id" db:"player_id"`
	Amount         float64       `json:"amount" db:"amount"`
	DiscountID     *uuid.UUID    `json:"discount_id,omitempty" db:"discount_id"`
	DiscountAmount float64       `json:"discount_amount" db:"discount_amount"`
	FinalAmount    float64       `json:"final_amount" db:"final_amount"`
	Status         PaymentStatus `json:"status" db:"status"`
	DueDate        time.Time     `json:"due_date" db:"due_date"`
	PaidAt         *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	Method         string        `json:"method,omitempty" db:"method"`
	Notes          string        `json:"notes,omitempty" db:"notes"`
	RecordedBy     *uuid.UUID    `json:"recorded_by,omitempty" db:"recorded_by"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// DaysOverdue returns how many days past due the payment is on today.
func (p *Payment) DaysOverdue(today time.Time) int {
	return DaysBetween(p.DueDate, today)
}
