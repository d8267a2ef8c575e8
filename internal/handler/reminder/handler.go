package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/middleware"
	"github.com/jwalitptl/academy-api/internal/model"
	reminderService "github.com/jwalitptl/academy-api/internal/service/reminder"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/httputil"
)

type Sender interface {
	SendReminder(ctx context.Context, subscriptionID uuid.UUID, channel model.Channel) (*reminderService.Summary, error)
	SendBulkReminders(ctx context.Context, subscriptionIDs []uuid.UUID, channel model.Channel) (*reminderService.Summary, error)
}

type Sweeper interface {
	Sweep(ctx context.Context, date time.Time) (*reminderService.SweepReport, error)
}

type Handler struct {
	rules    reminderService.RuleService
	sender   Sender
	sweeper  Sweeper
	location *time.Location
}

func NewHandler(rules reminderService.RuleService, sender Sender, sweeper Sweeper, location *time.Location) *Handler {
	if location == nil {
		location = time.UTC
	}
	return &Handler{rules: rules, sender: sender, sweeper: sweeper, location: location}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rules := r.Group("/reminder-rules")
	{
		rules.GET("", h.ListRules)
		rules.POST("", h.CreateRule)
		rules.GET("/:id", h.GetRule)
		rules.PUT("/:id", h.UpdateRule)
		rules.DELETE("/:id", h.DeleteRule)
		rules.POST("/:id/toggle", h.ToggleRule)
	}

	reminders := r.Group("/reminders")
	{
		reminders.POST("/send", h.SendReminder)
		reminders.POST("/bulk", h.SendBulkReminders)
		reminders.POST("/sweep", h.Sweep)
	}
}

type ruleRequest struct {
	Title          string             `json:"title" binding:"required"`
	Type           model.RuleType     `json:"type" binding:"required"`
	TriggerMode    model.TriggerMode  `json:"trigger_mode"`
	DaysBefore     *int               `json:"days_before"`
	DaysAfter      *int               `json:"days_after"`
	SpecificDate   string             `json:"specific_date" binding:"omitempty,datetime=2006-01-02"`
	SendTime       string             `json:"send_time" binding:"required"`
	Message        string             `json:"message" binding:"required"`
	Enabled        *bool              `json:"enabled"`
	TargetAudience model.AudienceSpec `json:"target_audience"`
}

func (req *ruleRequest) toModel() (*model.ReminderRule, error) {
	rule := &model.ReminderRule{
		Title:          req.Title,
		Type:           req.Type,
		TriggerMode:    req.TriggerMode,
		DaysBefore:     req.DaysBefore,
		DaysAfter:      req.DaysAfter,
		SendTime:       req.SendTime,
		Message:        req.Message,
		Enabled:        true,
		TargetAudience: req.TargetAudience,
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.SpecificDate != "" {
		date, err := model.ParseDate(req.SpecificDate)
		if err != nil {
			return nil, apperrors.BadRequest("invalid specific_date", err)
		}
		rule.SpecificDate = &date
	}
	return rule, nil
}

func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.rules.ListRules(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	rules, err = inAudienceForm(c.Query("audience_form"), rules...)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, rules)
}

func (h *Handler) GetRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rule, err := h.rules.GetRule(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	out, err := inAudienceForm(c.Query("audience_form"), rule)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, out[0])
}

// inAudienceForm returns copies of rules with target_audience in the
// requested form. "roles" expands all into its roles list for clients that
// only read roles; audiences with no roles form are left as stored.
func inAudienceForm(form string, rules ...*model.ReminderRule) ([]*model.ReminderRule, error) {
	switch form {
	case "", "canonical":
		return rules, nil
	case "roles":
		out := make([]*model.ReminderRule, len(rules))
		for i, rule := range rules {
			cp := *rule
			if roles, ok := rule.TargetAudience.RolesForm(); ok {
				cp.TargetAudience = roles
			}
			out[i] = &cp
		}
		return out, nil
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown audience_form %q", form), nil)
	}
}

func (h *Handler) CreateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	rule, err := req.toModel()
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	created, err := h.rules.CreateRule(c.Request.Context(), rule, middleware.StaffID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, created)
}

func (h *Handler) UpdateRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	rule, err := req.toModel()
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	updated, err := h.rules.UpdateRule(c.Request.Context(), id, rule, middleware.StaffID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, updated)
}

func (h *Handler) DeleteRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.rules.DeleteRule(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"id": id})
}

func (h *Handler) ToggleRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rule, err := h.rules.ToggleRule(c.Request.Context(), id, middleware.StaffID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, rule)
}

type sendRequest struct {
	SubscriptionID uuid.UUID     `json:"subscription_id" binding:"required"`
	Channel        model.Channel `json:"channel" binding:"required"`
}

func (h *Handler) SendReminder(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	summary, err := h.sender.SendReminder(c.Request.Context(), req.SubscriptionID, req.Channel)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, summary)
}

type bulkRequest struct {
	SubscriptionIDs []uuid.UUID   `json:"subscription_ids" binding:"required,min=1,max=500"`
	Channel         model.Channel `json:"channel" binding:"required"`
}

func (h *Handler) SendBulkReminders(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	summary, err := h.sender.SendBulkReminders(c.Request.Context(), req.SubscriptionIDs, req.Channel)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, summary)
}

type sweepRequest struct {
	Date string `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

// Sweep runs every enabled rule for a date, today by default. Targets
// already reminded for that date are skipped.
func (h *Handler) Sweep(c *gin.Context) {
	var req sweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
			return
		}
	}

	date := model.DateOf(time.Now().In(h.location))
	if req.Date != "" {
		parsed, err := model.ParseDate(req.Date)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid date", err))
			return
		}
		date = parsed
	}

	report, err := h.sweeper.Sweep(c.Request.Context(), date)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, report)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid id", err))
		return uuid.Nil, false
	}
	return id, true
}
