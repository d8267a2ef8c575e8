package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/service/discount"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/logger"
	"github.com/jwalitptl/academy-api/pkg/metrics"
)

type discountStore struct {
	mu        sync.Mutex
	discounts map[uuid.UUID]*model.Discount
}

func (s *discountStore) Create(_ context.Context, d *model.Discount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discounts[d.ID] = d
	return nil
}

func (s *discountStore) Get(_ context.Context, id uuid.UUID) (*model.Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.discounts[id]
	if !ok {
		return nil, apperrors.NotFound("discount", nil)
	}
	cp := *d
	return &cp, nil
}

func (s *discountStore) ListActive(context.Context, time.Time) ([]*model.Discount, error) {
	return nil, nil
}

func (s *discountStore) Consume(_ context.Context, id uuid.UUID, paymentID *uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.discounts[id]
	if !ok {
		return apperrors.NotFound("discount", nil)
	}
	if d.Status != model.DiscountActive {
		return apperrors.Conflict("discount already consumed", nil)
	}
	d.Status = model.DiscountUsed
	d.UsedAt = &at
	d.PaymentID = paymentID
	return nil
}

func (s *discountStore) Cancel(context.Context, uuid.UUID) error { return nil }

func (s *discountStore) ExpireBefore(context.Context, time.Time) (int64, error) { return 0, nil }

// paymentStore consumes the discount before storing, as the postgres
// repository does inside its transaction.
type paymentStore struct {
	mu        sync.Mutex
	discounts *discountStore
	payments  []*model.Payment
}

func (s *paymentStore) Get(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apperrors.NotFound("payment", nil)
}

func (s *paymentStore) ListOverdue(context.Context, time.Time) ([]*model.Payment, error) {
	return nil, nil
}

func (s *paymentStore) Create(ctx context.Context, p *model.Payment) error {
	p.ID = uuid.New()
	if p.DiscountID != nil {
		if err := s.discounts.Consume(ctx, *p.DiscountID, &p.ID, time.Now()); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, p)
	return nil
}

type subscriptionStore struct {
	sub *model.Subscription
}

func (s *subscriptionStore) Get(_ context.Context, id uuid.UUID) (*model.Subscription, error) {
	if s.sub == nil || s.sub.ID != id {
		return nil, apperrors.NotFound("subscription", nil)
	}
	return s.sub, nil
}

func (s *subscriptionStore) List(context.Context, *model.SubscriptionFilters) ([]*model.Subscription, error) {
	return []*model.Subscription{s.sub}, nil
}

type harness struct {
	svc       Service
	sub       *model.Subscription
	discounts *discountStore
	payments  *paymentStore
}

func newHarness() *harness {
	sub := &model.Subscription{
		ID:        uuid.New(),
		PlayerID:  uuid.New(),
		ProgramID: uuid.New(),
		BranchID:  uuid.New(),
		Status:    model.SubscriptionActive,
	}
	discounts := &discountStore{discounts: make(map[uuid.UUID]*model.Discount)}
	payments := &paymentStore{discounts: discounts}
	m := metrics.NewNop()
	log := logger.NewNop()
	return &harness{
		svc:       NewService(payments, &subscriptionStore{sub: sub}, discount.NewService(discounts, m, log), m, log),
		sub:       sub,
		discounts: discounts,
		payments:  payments,
	}
}

func (h *harness) addDiscount(d *model.Discount) uuid.UUID {
	d.ID = uuid.New()
	d.Status = model.DiscountActive
	h.discounts.discounts[d.ID] = d
	return d.ID
}

func TestRecordPayment_WithoutDiscount(t *testing.T) {
	h := newHarness()

	p, err := h.svc.RecordPayment(context.Background(), &RecordPaymentRequest{
		SubscriptionID: h.sub.ID,
		Amount:         250,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, p.Status)
	assert.NotNil(t, p.PaidAt)
	assert.Equal(t, 250.0, p.FinalAmount)
	assert.Zero(t, p.DiscountAmount)
	assert.Equal(t, h.sub.PlayerID, p.PlayerID)
}

func TestRecordPayment_ConsumesDiscountOnce(t *testing.T) {
	h := newHarness()
	id := h.addDiscount(&model.Discount{DiscountType: model.DiscountPercentage, DiscountValue: 20})

	req := &RecordPaymentRequest{SubscriptionID: h.sub.ID, Amount: 300, DiscountID: &id}
	p, err := h.svc.RecordPayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 60.0, p.DiscountAmount)
	assert.Equal(t, 240.0, p.FinalAmount)

	stored := h.discounts.discounts[id]
	assert.Equal(t, model.DiscountUsed, stored.Status)
	assert.Equal(t, &p.ID, stored.PaymentID)

	_, err = h.svc.RecordPayment(context.Background(), req)
	assert.True(t, apperrors.IsConflict(err))
	assert.Len(t, h.payments.payments, 1)
}

func TestRecordPayment_ScopedDiscount(t *testing.T) {
	h := newHarness()
	otherBranch := uuid.New()
	id := h.addDiscount(&model.Discount{
		DiscountScope: model.DiscountScope{BranchID: &otherBranch},
		DiscountType:  model.DiscountFixed,
		DiscountValue: 50,
	})

	_, err := h.svc.RecordPayment(context.Background(), &RecordPaymentRequest{
		SubscriptionID: h.sub.ID,
		Amount:         300,
		DiscountID:     &id,
	})
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, model.DiscountActive, h.discounts.discounts[id].Status)
}

func TestRecordPayment_Errors(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.svc.RecordPayment(ctx, &RecordPaymentRequest{SubscriptionID: uuid.New(), Amount: 10})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = h.svc.RecordPayment(ctx, &RecordPaymentRequest{SubscriptionID: h.sub.ID, Amount: -1})
	assert.True(t, apperrors.IsValidation(err))

	_, err = h.svc.RecordPayment(ctx, &RecordPaymentRequest{SubscriptionID: h.sub.ID, Amount: 10, DueDate: "10/05/2026"})
	assert.True(t, apperrors.IsValidation(err))

	missing := uuid.New()
	_, err = h.svc.RecordPayment(ctx, &RecordPaymentRequest{SubscriptionID: h.sub.ID, Amount: 10, DiscountID: &missing})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRecordPayment_PendingHasNoPaidAt(t *testing.T) {
	h := newHarness()

	p, err := h.svc.RecordPayment(context.Background(), &RecordPaymentRequest{
		SubscriptionID: h.sub.ID,
		Amount:         100,
		Status:         model.PaymentPending,
		DueDate:        "2026-06-01",
	})
	require.NoError(t, err)
	assert.Nil(t, p.PaidAt)
	assert.Equal(t, "2026-06-01", p.DueDate.Format(model.DateLayout))

	got, err := h.svc.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}
