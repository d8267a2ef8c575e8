package discount

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/model"
	discountService "github.com/jwalitptl/academy-api/internal/service/discount"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/httputil"
)

type Handler struct {
	service discountService.Service
}

func NewHandler(service discountService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	discounts := r.Group("/discounts")
	{
		discounts.POST("", h.CreateDiscount)
		discounts.GET("/applicable", h.FindApplicable)
		discounts.POST("/compute", h.ComputeDiscount)
		discounts.GET("/:id", h.GetDiscount)
		discounts.GET("/:id/quote", h.Quote)
		discounts.POST("/:id/apply", h.ApplyDiscount)
		discounts.POST("/:id/cancel", h.CancelDiscount)
	}
}

type createDiscountRequest struct {
	model.DiscountScope
	DiscountType  model.DiscountType `json:"discount_type" binding:"required,oneof=percentage fixed"`
	DiscountValue float64            `json:"discount_value" binding:"required,gt=0"`
	ExpiresAt     *time.Time         `json:"expires_at"`
}

func (h *Handler) CreateDiscount(c *gin.Context) {
	var req createDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	d := &model.Discount{
		DiscountScope: req.DiscountScope,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		ExpiresAt:     req.ExpiresAt,
	}
	if err := h.service.CreateDiscount(c.Request.Context(), d); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, d)
}

func (h *Handler) GetDiscount(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	d, err := h.service.GetDiscount(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, d)
}

type computeRequest struct {
	BaseAmount    float64            `json:"base_amount" binding:"gte=0"`
	DiscountType  model.DiscountType `json:"discount_type" binding:"omitempty,oneof=percentage fixed"`
	DiscountValue float64            `json:"discount_value"`
}

// ComputeDiscount prices an ad-hoc discount without touching stored ones.
func (h *Handler) ComputeDiscount(c *gin.Context) {
	var req computeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	var d *model.Discount
	if req.DiscountType != "" {
		d = &model.Discount{DiscountType: req.DiscountType, DiscountValue: req.DiscountValue}
	}
	result, err := h.service.ComputeDiscount(req.BaseAmount, d)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}

type quoteQuery struct {
	Amount float64 `form:"amount" binding:"gte=0"`
}

func (h *Handler) Quote(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var q quoteQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid amount", err))
		return
	}
	result, _, err := h.service.Quote(c.Request.Context(), id, q.Amount)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}

func (h *Handler) ApplyDiscount(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.service.ApplyDiscount(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"id": id, "status": model.DiscountUsed})
}

func (h *Handler) CancelDiscount(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.service.CancelDiscount(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"id": id, "status": model.DiscountCancelled})
}

type applicableQuery struct {
	BranchID      string `form:"branch_id"`
	ProgramID     string `form:"program_id"`
	ParentID      string `form:"parent_id"`
	PlayerID      string `form:"player_id"`
	PricingPlanID string `form:"pricing_plan_id"`
}

func (h *Handler) FindApplicable(c *gin.Context) {
	var q applicableQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid query", err))
		return
	}

	var pc model.PaymentContext
	fields := []struct {
		name  string
		value string
		dst   **uuid.UUID
	}{
		{"branch_id", q.BranchID, &pc.BranchID},
		{"program_id", q.ProgramID, &pc.ProgramID},
		{"parent_id", q.ParentID, &pc.ParentID},
		{"player_id", q.PlayerID, &pc.PlayerID},
		{"pricing_plan_id", q.PricingPlanID, &pc.PricingPlanID},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		id, err := uuid.Parse(f.value)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid "+f.name, err))
			return
		}
		*f.dst = &id
	}

	discounts, err := h.service.FindApplicable(c.Request.Context(), pc)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, discounts)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid discount id", err))
		return uuid.Nil, false
	}
	return id, true
}
