package discount

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/logger"
	"github.com/jwalitptl/academy-api/pkg/metrics"
)

type Service interface {
	CreateDiscount(ctx context.Context, d *model.Discount) error
	GetDiscount(ctx context.Context, id uuid.UUID) (*model.Discount, error)
	ComputeDiscount(base float64, d *model.Discount) (Result, error)
	// Quote computes the discount stored under id for base without
	// consuming it. Inactive or expired discounts are a conflict.
	Quote(ctx context.Context, id uuid.UUID, base float64) (Result, *model.Discount, error)
	// ApplyDiscount consumes the discount. Exactly one caller wins a race;
	// the others get a conflict error.
	ApplyDiscount(ctx context.Context, id uuid.UUID) error
	CancelDiscount(ctx context.Context, id uuid.UUID) error
	FindApplicable(ctx context.Context, pc model.PaymentContext) ([]*model.Discount, error)
	ExpireDue(ctx context.Context) (int64, error)
}

type service struct {
	repo    repository.DiscountRepository
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewService(repo repository.DiscountRepository, m *metrics.Metrics, log *logger.Logger) Service {
	return &service{
		repo:    repo,
		metrics: m,
		log:     log.With("discounts"),
		now:     time.Now,
	}
}

func (s *service) CreateDiscount(ctx context.Context, d *model.Discount) error {
	if err := validateDiscount(d); err != nil {
		return err
	}
	d.Status = model.DiscountActive
	d.UsedAt = nil
	d.PaymentID = nil
	if err := s.repo.Create(ctx, d); err != nil {
		return fmt.Errorf("failed to create discount: %w", err)
	}
	return nil
}

func validateDiscount(d *model.Discount) error {
	switch d.DiscountType {
	case model.DiscountPercentage:
		if d.DiscountValue <= 0 || d.DiscountValue > 100 {
			return apperrors.Validation("percentage discount must be in (0, 100]", nil)
		}
	case model.DiscountFixed:
		if d.DiscountValue <= 0 {
			return apperrors.Validation("fixed discount must be positive", nil)
		}
	default:
		return apperrors.Validation(fmt.Sprintf("unknown discount type %q", d.DiscountType), nil)
	}
	return nil
}

func (s *service) GetDiscount(ctx context.Context, id uuid.UUID) (*model.Discount, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) ComputeDiscount(base float64, d *model.Discount) (Result, error) {
	if base < 0 {
		return Result{}, apperrors.Validation("base amount must not be negative", nil)
	}
	if d == nil {
		return Compute(base, nil), nil
	}
	if err := validateDiscount(d); err != nil {
		return Result{}, err
	}
	return Compute(base, d), nil
}

func (s *service) Quote(ctx context.Context, id uuid.UUID, base float64) (Result, *model.Discount, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Result{}, nil, err
	}
	if d.Status != model.DiscountActive || d.Expired(s.now()) {
		return Result{}, d, apperrors.Conflict(fmt.Sprintf("discount %s is not active", id), nil)
	}
	res, err := s.ComputeDiscount(base, d)
	return res, d, err
}

func (s *service) ApplyDiscount(ctx context.Context, id uuid.UUID) error {
	err := s.repo.Consume(ctx, id, nil, s.now())
	s.metrics.DiscountApplications.WithLabelValues(applyResult(err)).Inc()
	if err != nil {
		if apperrors.IsConflict(err) {
			s.log.Warn("discount already consumed", "discount_id", id.String())
		}
		return err
	}
	s.log.Info("discount consumed", "discount_id", id.String())
	return nil
}

func applyResult(err error) string {
	switch {
	case err == nil:
		return "applied"
	case apperrors.IsConflict(err):
		return "conflict"
	case apperrors.IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}

func (s *service) CancelDiscount(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Cancel(ctx, id); err != nil {
		return err
	}
	s.log.Info("discount cancelled", "discount_id", id.String())
	return nil
}

func (s *service) FindApplicable(ctx context.Context, pc model.PaymentContext) ([]*model.Discount, error) {
	active, err := s.repo.ListActive(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list discounts: %w", err)
	}

	var matches []*model.Discount
	for _, d := range active {
		if Matches(d, pc) {
			matches = append(matches, d)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return Specificity(matches[i]) > Specificity(matches[j])
	})
	return matches, nil
}

func (s *service) ExpireDue(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireBefore(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired discounts", "count", n)
	}
	return n, nil
}
