package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		role VARCHAR(20) NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		phone VARCHAR(32) NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS player_parents (
		player_id UUID NOT NULL REFERENCES accounts(id),
		parent_id UUID NOT NULL REFERENCES accounts(id),
		PRIMARY KEY (player_id, parent_id)
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id UUID PRIMARY KEY,
		player_id UUID NOT NULL REFERENCES accounts(id),
		program_id UUID NOT NULL,
		branch_id UUID NOT NULL,
		end_date DATE NOT NULL,
		status VARCHAR(20) NOT NULL,
		total_amount NUMERIC(12, 2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_status_end ON subscriptions (status, end_date)`,
	`CREATE TABLE IF NOT EXISTS reminder_rules (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		type VARCHAR(40) NOT NULL,
		trigger_mode VARCHAR(20),
		days_before INT,
		days_after INT,
		specific_date DATE,
		send_time VARCHAR(5) NOT NULL,
		message TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		target_audience JSONB NOT NULL DEFAULT '{"kind":"all"}',
		last_updated_by UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS reminder_send_log (
		id UUID PRIMARY KEY,
		rule_id UUID NOT NULL,
		target_id UUID NOT NULL,
		send_date DATE NOT NULL,
		recipients INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (rule_id, target_id, send_date)
	)`,
	`CREATE TABLE IF NOT EXISTS discounts (
		id UUID PRIMARY KEY,
		branch_id UUID,
		program_id UUID,
		parent_id UUID,
		player_id UUID,
		pricing_plan_id UUID,
		discount_type VARCHAR(20) NOT NULL,
		discount_value NUMERIC(12, 2) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		expires_at TIMESTAMPTZ,
		used_at TIMESTAMPTZ,
		payment_id UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY,
		subscription_id UUID NOT NULL REFERENCES subscriptions(id),
		player_id UUID NOT NULL,
		amount NUMERIC(12, 2) NOT NULL,
		discount_id UUID REFERENCES discounts(id),
		discount_amount NUMERIC(12, 2) NOT NULL DEFAULT 0,
		final_amount NUMERIC(12, 2) NOT NULL,
		status VARCHAR(20) NOT NULL,
		due_date DATE,
		paid_at TIMESTAMPTZ,
		method VARCHAR(40) NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		recorded_by UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_discount ON payments (discount_id) WHERE discount_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		content TEXT NOT NULL,
		status VARCHAR(20) NOT NULL,
		read_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id UUID PRIMARY KEY,
		event_type VARCHAR(60) NOT NULL,
		channel TEXT NOT NULL,
		aggregate_id UUID NOT NULL,
		payload JSONB NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		error_message TEXT,
		retry_count INT NOT NULL DEFAULT 0,
		retry_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_events_pending ON outbox_events (created_at) WHERE status = 'pending'`,
}

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
