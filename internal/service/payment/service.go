package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	"github.com/jwalitptl/academy-api/internal/service/discount"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/logger"
	"github.com/jwalitptl/academy-api/pkg/metrics"
)

// RecordPaymentRequest is what staff submit when recording a payment.
type RecordPaymentRequest struct {
	SubscriptionID uuid.UUID           `json:"subscription_id" binding:"required"`
	Amount         float64             `json:"amount" binding:"gte=0"`
	DiscountID     *uuid.UUID          `json:"discount_id,omitempty"`
	Status         model.PaymentStatus `json:"status" binding:"omitempty,oneof=pending paid overdue"`
	DueDate        string              `json:"due_date" binding:"omitempty,datetime=2006-01-02"`
	Method         string              `json:"method,omitempty"`
	Notes          string              `json:"notes,omitempty" binding:"max=1000"`
	ParentID       *uuid.UUID          `json:"parent_id,omitempty"`
	PricingPlanID  *uuid.UUID          `json:"pricing_plan_id,omitempty"`
	RecordedBy     *uuid.UUID          `json:"-"`
}

type Service interface {
	// RecordPayment stores a payment, consuming its discount in the same
	// transaction. A discount lost to a concurrent payment aborts the whole
	// payment with a conflict error.
	RecordPayment(ctx context.Context, req *RecordPaymentRequest) (*model.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
}

type service struct {
	payments      repository.PaymentRepository
	subscriptions repository.SubscriptionRepository
	discounts     discount.Service
	metrics       *metrics.Metrics
	log           *logger.Logger
	now           func() time.Time
}

func NewService(
	payments repository.PaymentRepository,
	subscriptions repository.SubscriptionRepository,
	discounts discount.Service,
	m *metrics.Metrics,
	log *logger.Logger,
) Service {
	return &service{
		payments:      payments,
		subscriptions: subscriptions,
		discounts:     discounts,
		metrics:       m,
		log:           log.With("payments"),
		now:           time.Now,
	}
}

func (s *service) RecordPayment(ctx context.Context, req *RecordPaymentRequest) (*model.Payment, error) {
	if req.Amount < 0 {
		return nil, apperrors.Validation("amount must not be negative", nil)
	}

	sub, err := s.subscriptions.Get(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &model.Payment{
		SubscriptionID: sub.ID,
		PlayerID:       sub.PlayerID,
		Amount:         req.Amount,
		Status:         req.Status,
		DueDate:        model.DateOf(now),
		Method:         req.Method,
		Notes:          req.Notes,
		RecordedBy:     req.RecordedBy,
	}
	if p.Status == "" {
		p.Status = model.PaymentPaid
	}
	if req.DueDate != "" {
		due, err := model.ParseDate(req.DueDate)
		if err != nil {
			return nil, apperrors.Validation("invalid due_date", err)
		}
		p.DueDate = due
	}
	if p.Status == model.PaymentPaid {
		p.PaidAt = &now
	}

	result := discount.Compute(req.Amount, nil)
	if req.DiscountID != nil {
		res, d, err := s.discounts.Quote(ctx, *req.DiscountID, req.Amount)
		if err != nil {
			return nil, err
		}
		pc := model.PaymentContext{
			BranchID:      &sub.BranchID,
			ProgramID:     &sub.ProgramID,
			PlayerID:      &sub.PlayerID,
			ParentID:      req.ParentID,
			PricingPlanID: req.PricingPlanID,
		}
		if !discount.Matches(d, pc) {
			return nil, apperrors.Validation("discount does not apply to this payment", nil)
		}
		result = res
		p.DiscountID = req.DiscountID
	}
	p.DiscountAmount = result.DiscountAmount
	p.FinalAmount = result.FinalAmount

	if err := s.payments.Create(ctx, p); err != nil {
		if p.DiscountID != nil {
			s.metrics.DiscountApplications.WithLabelValues(resultLabel(err)).Inc()
		}
		if apperrors.IsConflict(err) || apperrors.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	if p.DiscountID != nil {
		s.metrics.DiscountApplications.WithLabelValues("applied").Inc()
	}

	s.log.Info("payment recorded",
		"payment_id", p.ID.String(),
		"subscription_id", sub.ID.String(),
		"final_amount", p.FinalAmount,
	)
	return p, nil
}

func resultLabel(err error) string {
	if apperrors.IsConflict(err) {
		return "conflict"
	}
	return "error"
}

func (s *service) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return s.payments.Get(ctx, id)
}
