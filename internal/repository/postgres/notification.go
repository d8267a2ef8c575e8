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

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) CreateWithEvent(ctx context.Context, n *model.Notification, event *model.OutboxEvent) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = model.NotificationStatusPending
	}
	now := time.Now()
	n.CreatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO notifications (id, user_id, content, status, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := tx.ExecContext(ctx, query, n.ID, n.UserID, n.Content, n.Status, n.CreatedAt); err != nil {
			return fmt.Errorf("failed to create notification: %w", err)
		}

		event.AggregateID = n.ID
		return insertOutboxEvent(ctx, tx, event, now)
	})
}

func (r *notificationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.NotificationStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}

	ok, err := affectedOne(result)
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if !ok {
		return apperrors.NotFound("notification", nil)
	}
	return nil
}
