package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
)

const reminderRuleColumns = `
	id, title, type, trigger_mode, days_before, days_after, specific_date,
	send_time, message, enabled, target_audience, last_updated_by,
	created_at, updated_at`

type reminderRuleRepository struct {
	BaseRepository
}

func NewReminderRuleRepository(base BaseRepository) repository.ReminderRuleRepository {
	return &reminderRuleRepository{base}
}

func (r *reminderRuleRepository) Create(ctx context.Context, rule *model.ReminderRule) error {
	query := `
		INSERT INTO reminder_rules (` + reminderRuleColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Title,
		rule.Type,
		nullableMode(rule.TriggerMode),
		rule.DaysBefore,
		rule.DaysAfter,
		rule.SpecificDate,
		rule.SendTime,
		rule.Message,
		rule.Enabled,
		rule.TargetAudience,
		rule.LastUpdatedBy,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reminder rule: %w", err)
	}
	return nil
}

func (r *reminderRuleRepository) Get(ctx context.Context, id uuid.UUID) (*model.ReminderRule, error) {
	query := `SELECT ` + reminderRuleColumns + ` FROM reminder_rules WHERE id = $1`

	var row reminderRuleRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("reminder rule", err)
		}
		return nil, fmt.Errorf("failed to get reminder rule: %w", err)
	}
	return row.toModel(), nil
}

func (r *reminderRuleRepository) Update(ctx context.Context, rule *model.ReminderRule) error {
	query := `
		UPDATE reminder_rules
		SET title = $1, type = $2, trigger_mode = $3, days_before = $4,
			days_after = $5, specific_date = $6, send_time = $7, message = $8,
			enabled = $9, target_audience = $10, last_updated_by = $11,
			updated_at = $12
		WHERE id = $13
	`
	rule.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		rule.Title,
		rule.Type,
		nullableMode(rule.TriggerMode),
		rule.DaysBefore,
		rule.DaysAfter,
		rule.SpecificDate,
		rule.SendTime,
		rule.Message,
		rule.Enabled,
		rule.TargetAudience,
		rule.LastUpdatedBy,
		rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update reminder rule: %w", err)
	}

	ok, err := affectedOne(result)
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if !ok {
		return apperrors.NotFound("reminder rule", nil)
	}
	return nil
}

func (r *reminderRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reminder_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reminder rule: %w", err)
	}

	ok, err := affectedOne(result)
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if !ok {
		return apperrors.NotFound("reminder rule", nil)
	}
	return nil
}

func (r *reminderRuleRepository) List(ctx context.Context) ([]*model.ReminderRule, error) {
	query := `SELECT ` + reminderRuleColumns + ` FROM reminder_rules ORDER BY created_at DESC`
	return r.selectRules(ctx, r.db, query)
}

func (r *reminderRuleRepository) ListEnabled(ctx context.Context) ([]*model.ReminderRule, error) {
	query := `SELECT ` + reminderRuleColumns + ` FROM reminder_rules WHERE enabled = TRUE ORDER BY send_time, created_at`
	return r.selectRules(ctx, r.db, query)
}

func (r *reminderRuleRepository) Toggle(ctx context.Context, id uuid.UUID, updatedBy *uuid.UUID) (*model.ReminderRule, error) {
	query := `
		UPDATE reminder_rules
		SET enabled = NOT enabled, last_updated_by = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + reminderRuleColumns

	var row reminderRuleRow
	if err := r.db.GetContext(ctx, &row, query, id, updatedBy); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound("reminder rule", err)
		}
		return nil, fmt.Errorf("failed to toggle reminder rule: %w", err)
	}
	return row.toModel(), nil
}

func (r *reminderRuleRepository) selectRules(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) ([]*model.ReminderRule, error) {
	var rows []reminderRuleRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list reminder rules: %w", err)
	}
	rules := make([]*model.ReminderRule, 0, len(rows))
	for i := range rows {
		rules = append(rules, rows[i].toModel())
	}
	return rules, nil
}

// reminderRuleRow mirrors the table; trigger_mode is nullable for
// payment_overdue rules.
type reminderRuleRow struct {
	model.ReminderRule
	TriggerMode *string `db:"trigger_mode"`
}

func (row *reminderRuleRow) toModel() *model.ReminderRule {
	rule := row.ReminderRule
	if row.TriggerMode != nil {
		rule.TriggerMode = model.TriggerMode(*row.TriggerMode)
	}
	return &rule
}

func nullableMode(m model.TriggerMode) interface{} {
	if m == "" {
		return nil
	}
	return string(m)
}
