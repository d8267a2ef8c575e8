package subscription

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	subscriptionService "github.com/jwalitptl/academy-api/internal/service/subscription"
	"github.com/jwalitptl/academy-api/internal/service/urgency"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/httputil"
)

type Handler struct {
	service subscriptionService.Service
}

func NewHandler(service subscriptionService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/subscriptions/expiring", h.ListExpiring)
}

// ListExpiring accepts ?tier=, ?min_tier= and ?branch_id=.
func (h *Handler) ListExpiring(c *gin.Context) {
	var filter subscriptionService.ExpiringFilter

	if v := c.Query("tier"); v != "" {
		tier, err := urgency.ParseTier(v)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
			return
		}
		filter.Tier = &tier
	}
	if v := c.Query("min_tier"); v != "" {
		tier, err := urgency.ParseTier(v)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), err))
			return
		}
		filter.MinTier = &tier
	}
	if v := c.Query("branch_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid branch_id", err))
			return
		}
		filter.BranchID = &id
	}

	subs, err := h.service.ListExpiring(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, subs)
}
