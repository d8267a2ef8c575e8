package discount

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/academy-api/internal/model"
	discountService "github.com/jwalitptl/academy-api/internal/service/discount"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
)

type fakeService struct {
	discountService.Service
	used       map[uuid.UUID]bool
	applicable model.PaymentContext
}

func (f *fakeService) ComputeDiscount(base float64, d *model.Discount) (discountService.Result, error) {
	return discountService.Compute(base, d), nil
}

func (f *fakeService) ApplyDiscount(_ context.Context, id uuid.UUID) error {
	if f.used[id] {
		return apperrors.Conflict("discount already consumed", nil)
	}
	f.used[id] = true
	return nil
}

func (f *fakeService) Quote(_ context.Context, id uuid.UUID, base float64) (discountService.Result, *model.Discount, error) {
	d := &model.Discount{ID: id, DiscountType: model.DiscountFixed, DiscountValue: 50}
	return discountService.Compute(base, d), d, nil
}

func (f *fakeService) FindApplicable(_ context.Context, pc model.PaymentContext) ([]*model.Discount, error) {
	f.applicable = pc
	return []*model.Discount{}, nil
}

func newEngine(svc *fakeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewHandler(svc).RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func serve(engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestApplyDiscount_SecondUseConflicts(t *testing.T) {
	engine := newEngine(&fakeService{used: map[uuid.UUID]bool{}})
	path := "/api/v1/discounts/" + uuid.New().String() + "/apply"

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodPost, path, nil).Code)

	w := serve(engine, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already consumed")
}

func TestComputeDiscount(t *testing.T) {
	engine := newEngine(&fakeService{})

	w := serve(engine, http.MethodPost, "/api/v1/discounts/compute", gin.H{
		"base_amount":    300,
		"discount_type":  "percentage",
		"discount_value": 20,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data discountService.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 60.0, resp.Data.DiscountAmount)
	assert.Equal(t, 240.0, resp.Data.FinalAmount)

	w = serve(engine, http.MethodPost, "/api/v1/discounts/compute", gin.H{
		"base_amount":   100,
		"discount_type": "bogus",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuote(t *testing.T) {
	engine := newEngine(&fakeService{})

	w := serve(engine, http.MethodGet, "/api/v1/discounts/"+uuid.New().String()+"/quote?amount=30", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"final_amount":0`)

	w = serve(engine, http.MethodGet, "/api/v1/discounts/nope/quote?amount=30", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFindApplicable_ParsesScope(t *testing.T) {
	svc := &fakeService{}
	engine := newEngine(svc)
	playerID := uuid.New()

	w := serve(engine, http.MethodGet, "/api/v1/discounts/applicable?player_id="+playerID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.applicable.PlayerID)
	assert.Equal(t, playerID, *svc.applicable.PlayerID)
	assert.Nil(t, svc.applicable.BranchID)

	w = serve(engine, http.MethodGet, "/api/v1/discounts/applicable?branch_id=xyz", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
