package messaging

import (
	"context"

	"github.com/google/uuid"
)

// Broker publishes JSON messages on named channels.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// InboxChannel is the per-user channel live clients listen on.
func InboxChannel(userID uuid.UUID) string {
	return "inbox:" + userID.String()
}
