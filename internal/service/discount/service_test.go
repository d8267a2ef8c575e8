package discount

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/academy-api/internal/model"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/logger"
	"github.com/jwalitptl/academy-api/pkg/metrics"
)

// memRepo applies the same compare-and-swap the postgres query does.
type memRepo struct {
	mu        sync.Mutex
	discounts map[uuid.UUID]*model.Discount
	consumed  int
}

func newMemRepo(ds ...*model.Discount) *memRepo {
	r := &memRepo{discounts: make(map[uuid.UUID]*model.Discount)}
	for _, d := range ds {
		r.discounts[d.ID] = d
	}
	return r
}

func (r *memRepo) Create(_ context.Context, d *model.Discount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.discounts[d.ID] = d
	return nil
}

func (r *memRepo) Get(_ context.Context, id uuid.UUID) (*model.Discount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.discounts[id]
	if !ok {
		return nil, apperrors.NotFound("discount", nil)
	}
	cp := *d
	return &cp, nil
}

func (r *memRepo) ListActive(_ context.Context, asOf time.Time) ([]*model.Discount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Discount
	for _, d := range r.discounts {
		if d.Status == model.DiscountActive && !d.Expired(asOf) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memRepo) transition(id uuid.UUID, to model.DiscountStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.discounts[id]
	if !ok {
		return apperrors.NotFound("discount", nil)
	}
	if d.Status != model.DiscountActive || d.Expired(at) {
		return apperrors.Conflict("discount is not active", nil)
	}
	d.Status = to
	if to == model.DiscountUsed {
		d.UsedAt = &at
		r.consumed++
	}
	return nil
}

func (r *memRepo) Consume(_ context.Context, id uuid.UUID, _ *uuid.UUID, at time.Time) error {
	return r.transition(id, model.DiscountUsed, at)
}

func (r *memRepo) Cancel(_ context.Context, id uuid.UUID) error {
	return r.transition(id, model.DiscountCancelled, time.Now())
}

func (r *memRepo) ExpireBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, d := range r.discounts {
		if d.Status == model.DiscountActive && d.Expired(cutoff) {
			d.Status = model.DiscountExpired
			n++
		}
	}
	return n, nil
}

func newTestService(repo *memRepo) Service {
	return NewService(repo, metrics.NewNop(), logger.NewNop())
}

func activeDiscount() *model.Discount {
	return &model.Discount{
		ID:            uuid.New(),
		DiscountType:  model.DiscountFixed,
		DiscountValue: 25,
		Status:        model.DiscountActive,
	}
}

func TestApplyDiscount_ConcurrentCallsConsumeOnce(t *testing.T) {
	d := activeDiscount()
	repo := newMemRepo(d)
	svc := newTestService(repo)

	const callers = 2
	errs := make([]error, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = svc.ApplyDiscount(context.Background(), d.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperrors.IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 1, repo.consumed)

	stored, err := repo.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DiscountUsed, stored.Status)
}

func TestApplyDiscount_Missing(t *testing.T) {
	svc := newTestService(newMemRepo())
	err := svc.ApplyDiscount(context.Background(), uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCancelDiscount_TerminalIsConflict(t *testing.T) {
	d := activeDiscount()
	svc := newTestService(newMemRepo(d))
	ctx := context.Background()

	require.NoError(t, svc.CancelDiscount(ctx, d.ID))
	assert.True(t, apperrors.IsConflict(svc.CancelDiscount(ctx, d.ID)))
	assert.True(t, apperrors.IsConflict(svc.ApplyDiscount(ctx, d.ID)))
}

func TestQuote_RejectsExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	d := activeDiscount()
	d.ExpiresAt = &past
	svc := newTestService(newMemRepo(d))

	_, _, err := svc.Quote(context.Background(), d.ID, 100)
	assert.True(t, apperrors.IsConflict(err))
}

func TestQuote_ComputesActive(t *testing.T) {
	d := activeDiscount()
	svc := newTestService(newMemRepo(d))

	res, got, err := svc.Quote(context.Background(), d.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.InDelta(t, 25, res.DiscountAmount, 1e-9)
	assert.InDelta(t, 75, res.FinalAmount, 1e-9)
}

func TestComputeDiscount_Validation(t *testing.T) {
	svc := newTestService(newMemRepo())

	_, err := svc.ComputeDiscount(-1, nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.ComputeDiscount(100, &model.Discount{DiscountType: model.DiscountPercentage, DiscountValue: 120})
	assert.True(t, apperrors.IsValidation(err))

	res, err := svc.ComputeDiscount(200, &model.Discount{DiscountType: model.DiscountPercentage, DiscountValue: 10})
	require.NoError(t, err)
	assert.InDelta(t, 180, res.FinalAmount, 1e-9)
}

func TestFindApplicable_MostSpecificFirst(t *testing.T) {
	branch, player := uuid.New(), uuid.New()
	broad := activeDiscount()
	specific := activeDiscount()
	specific.BranchID = &branch
	specific.PlayerID = &player
	otherBranch := uuid.New()
	elsewhere := activeDiscount()
	elsewhere.BranchID = &otherBranch

	svc := newTestService(newMemRepo(broad, specific, elsewhere))
	got, err := svc.FindApplicable(context.Background(), model.PaymentContext{BranchID: &branch, PlayerID: &player})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, specific.ID, got[0].ID)
	assert.Equal(t, broad.ID, got[1].ID)
}

func TestExpireDue(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	stale := activeDiscount()
	stale.ExpiresAt = &past
	svc := newTestService(newMemRepo(stale, activeDiscount()))

	n, err := svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
