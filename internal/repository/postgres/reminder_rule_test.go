package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/academy-api/internal/model"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
)

var ruleColumnNames = []string{
	"id", "title", "type", "trigger_mode", "days_before", "days_after", "specific_date",
	"send_time", "message", "enabled", "target_audience", "last_updated_by",
	"created_at", "updated_at",
}

func TestReminderRuleRepository_Toggle(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewReminderRuleRepository(base)
	id := uuid.New()
	actor := uuid.New()
	now := time.Now()

	mock.ExpectQuery("UPDATE reminder_rules\\s+SET enabled = NOT enabled").
		WithArgs(id, &actor).
		WillReturnRows(sqlmock.NewRows(ruleColumnNames).AddRow(
			id.String(), "Renewal", "subscription_expiring", "days", int64(7), nil, nil,
			"09:00", "{{ player_name }}", false, []byte(`{"kind":"all"}`), actor.String(),
			now, now,
		))

	rule, err := repo.Toggle(context.Background(), id, &actor)
	require.NoError(t, err)
	assert.False(t, rule.Enabled)
	assert.Equal(t, model.TriggerDays, rule.TriggerMode)
	require.NotNil(t, rule.DaysBefore)
	assert.Equal(t, 7, *rule.DaysBefore)
	assert.Nil(t, rule.DaysAfter)
	assert.Equal(t, model.AudienceAll, rule.TargetAudience.Kind)
	assert.Equal(t, &actor, rule.LastUpdatedBy)
}

func TestReminderRuleRepository_PaymentRuleHasNoMode(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewReminderRuleRepository(base)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM reminder_rules WHERE enabled = TRUE").
		WillReturnRows(sqlmock.NewRows(ruleColumnNames).AddRow(
			id.String(), "Overdue", "payment_overdue", nil, nil, int64(3), nil,
			"10:30", "Payment due", true, []byte(`{"kind":"roles","roles":["parent"]}`), nil,
			now, now,
		))

	rules, err := repo.ListEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Empty(t, rules[0].TriggerMode)
	assert.Equal(t, 3, *rules[0].DaysAfter)
	assert.Equal(t, []model.Role{model.RoleParent}, rules[0].TargetAudience.Roles)
}

func TestReminderRuleRepository_NotFound(t *testing.T) {
	base, mock := setupMockDB(t)
	repo := NewReminderRuleRepository(base)
	id := uuid.New()

	mock.ExpectQuery("UPDATE reminder_rules").WillReturnRows(sqlmock.NewRows(ruleColumnNames))
	_, err := repo.Toggle(context.Background(), id, nil)
	assert.True(t, apperrors.IsNotFound(err))

	mock.ExpectExec("DELETE FROM reminder_rules").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, apperrors.IsNotFound(repo.Delete(context.Background(), id)))

	mock.ExpectExec("UPDATE reminder_rules").WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.Update(context.Background(), &model.ReminderRule{ID: id})
	assert.True(t, apperrors.IsNotFound(err))
}
