package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
)

const discountColumns = `
	id, branch_id, program_id, parent_id, player_id, pricing_plan_id,
	discount_type, discount_value, status, expires_at, used_at, payment_id,
	created_at, updated_at`

type discountRepository struct {
	BaseRepository
}

func NewDiscountRepository(base BaseRepository) repository.DiscountRepository {
	return &discountRepository{base}
}

func (r *discountRepository) Create(ctx context.Context, d *model.Discount) error {
	query := `
		INSERT INTO discounts (` + discountColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = model.DiscountActive
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.BranchID, d.ProgramID, d.ParentID, d.PlayerID, d.PricingPlanID,
		d.DiscountType, d.DiscountValue, d.Status, d.ExpiresAt, d.UsedAt, d.PaymentID,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create discount: %w", err)
	}
	return nil
}

func (r *discountRepository) Get(ctx context.Context, id uuid.UUID) (*model.Discount, error) {
	return getDiscount(ctx, r.db, id)
}

func getDiscount(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*model.Discount, error) {
	query := `SELECT ` + discountColumns + ` FROM discounts WHERE id = $1`

	var d model.Discount
	if err := sqlx.GetContext(ctx, q, &d, query, id); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("discount", err)
		}
		return nil, fmt.Errorf("failed to get discount: %w", err)
	}
	return &d, nil
}

func (r *discountRepository) ListActive(ctx context.Context, asOf time.Time) ([]*model.Discount, error) {
	query := `
		SELECT ` + discountColumns + `
		FROM discounts
		WHERE status = 'active'
		AND (expires_at IS NULL OR expires_at > $1)
		ORDER BY created_at ASC
	`
	var discounts []*model.Discount
	if err := r.db.SelectContext(ctx, &discounts, query, asOf); err != nil {
		return nil, fmt.Errorf("failed to list active discounts: %w", err)
	}
	return discounts, nil
}

func (r *discountRepository) Consume(ctx context.Context, id uuid.UUID, paymentID *uuid.UUID, at time.Time) error {
	return consumeDiscount(ctx, r.db, id, paymentID, at)
}

// consumeDiscount is the compare-and-swap active -> used. When no row
// matches, the current row decides between not-found and conflict.
func consumeDiscount(ctx context.Context, db sqlx.ExtContext, id uuid.UUID, paymentID *uuid.UUID, at time.Time) error {
	query := `
		UPDATE discounts
		SET status = 'used', used_at = $2, payment_id = $3, updated_at = $2
		WHERE id = $1
		AND status = 'active'
		AND (expires_at IS NULL OR expires_at > $2)
	`
	result, err := db.ExecContext(ctx, query, id, at, paymentID)
	if err != nil {
		return fmt.Errorf("failed to consume discount: %w", err)
	}

	ok, err := affectedOne(result)
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ok {
		return nil
	}
	return transitionFailure(ctx, db, id, "already consumed or no longer active")
}

func (r *discountRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE discounts
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to cancel discount: %w", err)
	}

	ok, err := affectedOne(result)
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ok {
		return nil
	}
	return transitionFailure(ctx, r.db, id, "is not active")
}

func transitionFailure(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, reason string) error {
	current, err := getDiscount(ctx, q, id)
	if err != nil {
		return err
	}
	return apperrors.Conflict(
		fmt.Sprintf("discount %s %s", id, reason),
		fmt.Errorf("current status %s", current.Status),
	)
}

func (r *discountRepository) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE discounts
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'active'
		AND expires_at IS NOT NULL
		AND expires_at <= $1
	`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire discounts: %w", err)
	}
	return result.RowsAffected()
}
