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

const paymentColumns = `
	id, subscription_id, player_id, amount, discount_id, discount_amount,
	final_amount, status, due_date, paid_at, method, notes, recorded_by,
	created_at, updated_at`

type paymentRepository struct {
	BaseRepository
}

func NewPaymentRepository(base BaseRepository) repository.PaymentRepository {
	return &paymentRepository{base}
}

func (r *paymentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	var p model.Payment
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("payment", err)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

func (r *paymentRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]*model.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status IN ('pending', 'overdue')
		AND due_date < $1
		ORDER BY due_date ASC, id ASC
	`
	var payments []*model.Payment
	if err := r.db.SelectContext(ctx, &payments, query, model.DateOf(asOf)); err != nil {
		return nil, fmt.Errorf("failed to list overdue payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) Create(ctx context.Context, p *model.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if p.DiscountID != nil {
			if err := consumeDiscount(ctx, tx, *p.DiscountID, &p.ID, now); err != nil {
				return err
			}
		}

		query := `
			INSERT INTO payments (` + paymentColumns + `
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
			)
		`
		_, err := tx.ExecContext(ctx, query,
			p.ID, p.SubscriptionID, p.PlayerID, p.Amount, p.DiscountID, p.DiscountAmount,
			p.FinalAmount, p.Status, model.DateOf(p.DueDate), p.PaidAt, p.Method, p.Notes, p.RecordedBy,
			p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		return nil
	})
}
