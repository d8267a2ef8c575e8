// Package urgency buckets days-until-expiry into severity tiers.
package urgency

import (
	"fmt"
	"time"

	"github.com/jwalitptl/academy-api/internal/model"
)

type Tier string

const (
	Expired  Tier = "expired"
	Critical Tier = "critical"
	Urgent   Tier = "urgent"
	Soon     Tier = "soon"
	Upcoming Tier = "upcoming"
	Safe     Tier = "safe"
)

// Tiers are ordered from most to least severe.
var Tiers = []Tier{Expired, Critical, Urgent, Soon, Upcoming, Safe}

// Classify maps days remaining (negative once past the end date) to a tier.
func Classify(daysRemaining int) Tier {
	switch {
	case daysRemaining < 0:
		return Expired
	case daysRemaining <= 3:
		return Critical
	case daysRemaining <= 7:
		return Urgent
	case daysRemaining <= 14:
		return Soon
	case daysRemaining <= 30:
		return Upcoming
	default:
		return Safe
	}
}

// DaysRemaining counts calendar days from today to end.
func DaysRemaining(end, today time.Time) int {
	return model.DaysBetween(today, end)
}

func (t Tier) rank() int {
	for i, tier := range Tiers {
		if tier == t {
			return i
		}
	}
	return len(Tiers)
}

// AtLeast reports whether t is as severe as other or more.
func (t Tier) AtLeast(other Tier) bool {
	return t.rank() <= other.rank()
}

func ParseTier(s string) (Tier, error) {
	for _, tier := range Tiers {
		if string(tier) == s {
			return tier, nil
		}
	}
	return "", fmt.Errorf("unknown urgency tier %q", s)
}
