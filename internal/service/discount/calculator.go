package discount

import (
	"math"

	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/model"
)

// Result is what a payment owes after a discount.
type Result struct {
	BaseAmount     float64 `json:"base_amount"`
	DiscountAmount float64 `json:"discount_amount"`
	FinalAmount    float64 `json:"final_amount"`
}

// Compute returns the discount for base, clamped to [0, base] and rounded
// to cents. A nil discount or an unknown type discounts nothing.
func Compute(base float64, d *model.Discount) Result {
	if base < 0 {
		base = 0
	}
	base = round2(base)

	var amount float64
	if d != nil {
		switch d.DiscountType {
		case model.DiscountPercentage:
			amount = base * d.DiscountValue / 100
		case model.DiscountFixed:
			amount = math.Min(d.DiscountValue, base)
		}
	}

	amount = round2(math.Max(0, math.Min(amount, base)))
	return Result{
		BaseAmount:     base,
		DiscountAmount: amount,
		FinalAmount:    round2(base - amount),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Matches reports whether every filter set on the discount agrees with pc.
func Matches(d *model.Discount, pc model.PaymentContext) bool {
	return matchOne(d.BranchID, pc.BranchID) &&
		matchOne(d.ProgramID, pc.ProgramID) &&
		matchOne(d.ParentID, pc.ParentID) &&
		matchOne(d.PlayerID, pc.PlayerID) &&
		matchOne(d.PricingPlanID, pc.PricingPlanID)
}

func matchOne(filter, actual *uuid.UUID) bool {
	if filter == nil {
		return true
	}
	return actual != nil && *filter == *actual
}

// Specificity counts the filters a discount sets; narrower discounts win.
func Specificity(d *model.Discount) int {
	n := 0
	for _, f := range []*uuid.UUID{d.BranchID, d.ProgramID, d.ParentID, d.PlayerID, d.PricingPlanID} {
		if f != nil {
			n++
		}
	}
	return n
}
