package payment

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/middleware"
	paymentService "github.com/jwalitptl/academy-api/internal/service/payment"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/httputil"
)

type Handler struct {
	service paymentService.Service
}

func NewHandler(service paymentService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		payments.POST("", h.RecordPayment)
		payments.GET("/:id", h.GetPayment)
	}
}

// RecordPayment stores a payment; a discount already spent by another
// payment yields 409 and nothing is recorded.
func (h *Handler) RecordPayment(c *gin.Context) {
	var req paymentService.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	req.RecordedBy = middleware.StaffID(c)

	p, err := h.service.RecordPayment(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, p)
}

func (h *Handler) GetPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid payment id", err))
		return
	}
	p, err := h.service.GetPayment(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, p)
}
