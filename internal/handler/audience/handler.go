package audience

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/academy-api/internal/model"
	audienceService "github.com/jwalitptl/academy-api/internal/service/audience"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/httputil"
)

type Handler struct {
	resolver audienceService.Resolver
}

func NewHandler(resolver audienceService.Resolver) *Handler {
	return &Handler{resolver: resolver}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/audience/resolve", h.Resolve)
}

// Resolve previews who an audience reaches right now.
func (h *Handler) Resolve(c *gin.Context) {
	var spec model.AudienceSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	ids, err := h.resolver.Resolve(c.Request.Context(), spec)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{
		"user_ids": ids,
		"count":    len(ids),
	})
}
