package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/messaging"
)

// EventInAppNotification is the outbox event type of a live inbox push.
const EventInAppNotification = "in_app_notification"

// InAppSender stores an inbox row and its live-push event in one
// transaction. The row is the delivery; the outbox relay publishes the push
// and marks the row sent.
type InAppSender struct {
	repo repository.NotificationRepository
	now  func() time.Time
}

func NewInAppSender(repo repository.NotificationRepository) *InAppSender {
	return &InAppSender{repo: repo, now: time.Now}
}

func (s *InAppSender) Deliver(ctx context.Context, userID uuid.UUID, message string) error {
	n := &model.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Content: message,
		Status:  model.NotificationStatusPending,
	}

	payload, err := json.Marshal(model.NotificationEvent{
		ID:             uuid.New(),
		NotificationID: n.ID,
		UserID:         userID,
		Type:           EventInAppNotification,
		Content:        message,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return apperrors.NewExternalDelivery(string(model.ChannelNotification), fmt.Errorf("failed to encode notification event: %w", err))
	}

	event := &model.OutboxEvent{
		EventType: EventInAppNotification,
		Channel:   messaging.InboxChannel(userID),
		Payload:   payload,
	}
	if err := s.repo.CreateWithEvent(ctx, n, event); err != nil {
		return apperrors.NewExternalDelivery(string(model.ChannelNotification), fmt.Errorf("failed to store notification: %w", err))
	}
	return nil
}
