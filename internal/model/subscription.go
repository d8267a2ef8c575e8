package model

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type Subscription struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	PlayerID    uuid.UUID          `json:"player_id" db:"player_id"`
	ProgramID   uuid.UUID          `json:"program_id" db:"program_id"`
	BranchID    uuid.UUID          `json:"branch_id" db:"branch_id"`
	EndDate     time.Time          `json:"end_date" db:"end_date"`
	Status      SubscriptionStatus `json:"status" db:"status"`
	TotalAmount float64            `json:"total_amount" db:"total_amount"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
}

// SubscriptionFilters narrows subscription listings.
type SubscriptionFilters struct {
	Status      SubscriptionStatus
	EndingFrom  *time.Time
	EndingUntil *time.Time
	BranchID    *uuid.UUID
}
