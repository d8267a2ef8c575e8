package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
)

type sendLogRepository struct {
	BaseRepository
}

// NewSendLogRepository returns the durable idempotency store backed by the
// reminder_send_log table, unique on (rule_id, target_id, send_date).
func NewSendLogRepository(base BaseRepository) repository.SendLogRepository {
	return &sendLogRepository{base}
}

func (r *sendLogRepository) Fired(ctx context.Context, keys []model.SendKey) (map[string]bool, error) {
	fired := make(map[string]bool)
	if len(keys) == 0 {
		return fired, nil
	}

	rules := make([]string, len(keys))
	targets := make([]string, len(keys))
	dates := make([]string, len(keys))
	for i, k := range keys {
		rules[i] = k.RuleID.String()
		targets[i] = k.TargetID.String()
		dates[i] = model.DateOf(k.Date).Format(model.DateLayout)
	}

	query := `
		SELECT l.rule_id, l.target_id, l.send_date
		FROM reminder_send_log l
		JOIN unnest($1::uuid[], $2::uuid[], $3::date[]) AS k(rule_id, target_id, send_date)
			ON l.rule_id = k.rule_id
			AND l.target_id = k.target_id
			AND l.send_date = k.send_date
	`
	var found []model.SendKey
	err := r.db.SelectContext(ctx, &found, query, pq.Array(rules), pq.Array(targets), pq.Array(dates))
	if err != nil {
		return nil, fmt.Errorf("failed to read send log: %w", err)
	}
	for _, k := range found {
		fired[k.String()] = true
	}
	return fired, nil
}

func (r *sendLogRepository) Claim(ctx context.Context, key model.SendKey) (bool, error) {
	query := `
		INSERT INTO reminder_send_log (id, rule_id, target_id, send_date, recipients, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)
		ON CONFLICT (rule_id, target_id, send_date) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		uuid.New(), key.RuleID, key.TargetID, model.DateOf(key.Date), time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim send: %w", err)
	}

	ok, err := affectedOne(result)
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ok, nil
}

func (r *sendLogRepository) Release(ctx context.Context, key model.SendKey) error {
	query := `
		DELETE FROM reminder_send_log
		WHERE rule_id = $1 AND target_id = $2 AND send_date = $3
	`
	_, err := r.db.ExecContext(ctx, query, key.RuleID, key.TargetID, model.DateOf(key.Date))
	if err != nil {
		return fmt.Errorf("failed to release send: %w", err)
	}
	return nil
}

func (r *sendLogRepository) MarkFired(ctx context.Context, key model.SendKey, recipients int) error {
	query := `
		INSERT INTO reminder_send_log (id, rule_id, target_id, send_date, recipients, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (rule_id, target_id, send_date) DO UPDATE SET recipients = EXCLUDED.recipients
	`
	_, err := r.db.ExecContext(ctx, query,
		uuid.New(), key.RuleID, key.TargetID, model.DateOf(key.Date), recipients, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}
	return nil
}

func (r *sendLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM reminder_send_log WHERE send_date < $1`, model.DateOf(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune send log: %w", err)
	}
	return result.RowsAffected()
}
