package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
)

type subscriptionRepository struct {
	BaseRepository
}

func NewSubscriptionRepository(base BaseRepository) repository.SubscriptionRepository {
	return &subscriptionRepository{base}
}

func (r *subscriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Subscription, error) {
	query := `
		SELECT id, player_id, program_id, branch_id, end_date, status,
			total_amount, created_at, updated_at
		FROM subscriptions
		WHERE id = $1
	`
	var sub model.Subscription
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("subscription", err)
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

func (r *subscriptionRepository) List(ctx context.Context, filters *model.SubscriptionFilters) ([]*model.Subscription, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filters != nil {
		if filters.Status != "" {
			add("status = $%d", filters.Status)
		}
		if filters.EndingFrom != nil {
			add("end_date >= $%d", model.DateOf(*filters.EndingFrom))
		}
		if filters.EndingUntil != nil {
			add("end_date <= $%d", model.DateOf(*filters.EndingUntil))
		}
		if filters.BranchID != nil {
			add("branch_id = $%d", *filters.BranchID)
		}
	}

	query := `
		SELECT id, player_id, program_id, branch_id, end_date, status,
			total_amount, created_at, updated_at
		FROM subscriptions`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY end_date ASC, id ASC"

	var subs []*model.Subscription
	if err := r.db.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}
