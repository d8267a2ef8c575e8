package subscription

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	"github.com/jwalitptl/academy-api/internal/service/urgency"
)

// upcomingDays is the upper bound of the upcoming tier; later end dates
// are safe and never listed.
const upcomingDays = 30

// Expiring is an active subscription with its urgency classification.
type Expiring struct {
	*model.Subscription
	DaysRemaining int          `json:"days_remaining"`
	Tier          urgency.Tier `json:"tier"`
}

// ExpiringFilter narrows the listing. Tier matches exactly; MinTier keeps
// that tier and every more severe one.
type ExpiringFilter struct {
	Tier     *urgency.Tier
	MinTier  *urgency.Tier
	BranchID *uuid.UUID
}

type Service interface {
	ListExpiring(ctx context.Context, filter ExpiringFilter) ([]Expiring, error)
}

type service struct {
	repo     repository.SubscriptionRepository
	location *time.Location
	now      func() time.Time
}

func NewService(repo repository.SubscriptionRepository, location *time.Location) Service {
	if location == nil {
		location = time.UTC
	}
	return &service{repo: repo, location: location, now: time.Now}
}

func (s *service) ListExpiring(ctx context.Context, filter ExpiringFilter) ([]Expiring, error) {
	today := model.DateOf(s.now().In(s.location))
	until := today.AddDate(0, 0, upcomingDays)

	subs, err := s.repo.List(ctx, &model.SubscriptionFilters{
		Status:      model.SubscriptionActive,
		EndingUntil: &until,
		BranchID:    filter.BranchID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	out := make([]Expiring, 0, len(subs))
	for _, sub := range subs {
		days := urgency.DaysRemaining(sub.EndDate, today)
		tier := urgency.Classify(days)
		if filter.Tier != nil && tier != *filter.Tier {
			continue
		}
		if filter.MinTier != nil && !tier.AtLeast(*filter.MinTier) {
			continue
		}
		out = append(out, Expiring{Subscription: sub, DaysRemaining: days, Tier: tier})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DaysRemaining < out[j].DaysRemaining
	})
	return out, nil
}
