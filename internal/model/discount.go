package model

import (
	"time"

	"github.com/google/uuid"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type DiscountStatus string

const (
	DiscountActive    DiscountStatus = "active"
	DiscountUsed      DiscountStatus = "used"
	DiscountExpired   DiscountStatus = "expired"
	DiscountCancelled DiscountStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s DiscountStatus) Terminal() bool {
	return s == DiscountUsed || s == DiscountExpired || s == DiscountCancelled
}

// DiscountScope holds the optional filters narrowing who a discount is for.
// A nil filter matches anything.
type DiscountScope struct {
	BranchID      *uuid.UUID `json:"branch_id,omitempty" db:"branch_id"`
	ProgramID     *uuid.UUID `json:"program_id,omitempty" db:"program_id"`
	ParentID      *uuid.UUID `json:"parent_id,omitempty" db:"parent_id"`
	PlayerID      *uuid.UUID `json:"player_id,omitempty" db:"player_id"`
	PricingPlanID *uuid.UUID `json:"pricing_plan_id,omitempty" db:"pricing_plan_id"`
}

type Discount struct {
	ID uuid.UUID `json:"id" db:"id"`
	DiscountScope
	DiscountType  DiscountType   `json:"discount_type" db:"discount_type"`
	DiscountValue float64        `json:"discount_value" db:"discount_value"`
	Status        DiscountStatus `json:"status" db:"status"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty" db:"expires_at"`
	UsedAt        *time.Time     `json:"used_at,omitempty" db:"used_at"`
	PaymentID     *uuid.UUID     `json:"payment_id,omitempty" db:"payment_id"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the discount's expiry has passed at now.
func (d *Discount) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && !now.Before(*d.ExpiresAt)
}

// PaymentContext describes the payment a discount lookup is made for.
type PaymentContext struct {
	BranchID      *uuid.UUID
	ProgramID     *uuid.UUID
	ParentID      *uuid.UUID
	PlayerID      *uuid.UUID
	PricingPlanID *uuid.UUID
}
