// Package gateway delivers rendered reminders to users over the in-app
// inbox and SMS.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/model"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
)

// Gateway sends one message to one user. Failures are ExternalDelivery
// errors.
type Gateway interface {
	Send(ctx context.Context, userID uuid.UUID, message string, channel model.Channel) error
}

// Sender is a single-transport delivery path.
type Sender interface {
	Deliver(ctx context.Context, userID uuid.UUID, message string) error
}

// Multiplexer routes a channel to its senders.
type Multiplexer struct {
	senders map[model.Channel]Sender
}

func NewMultiplexer(inApp, sms Sender) *Multiplexer {
	return &Multiplexer{senders: map[model.Channel]Sender{
		model.ChannelNotification: inApp,
		model.ChannelSMS:          sms,
	}}
}

func (m *Multiplexer) Send(ctx context.Context, userID uuid.UUID, message string, channel model.Channel) error {
	if !channel.Valid() {
		return apperrors.Validation(fmt.Sprintf("unknown channel %q", channel), nil)
	}

	var errs []error
	for _, ch := range channel.Expand() {
		sender := m.senders[ch]
		if sender == nil {
			errs = append(errs, apperrors.NewExternalDelivery(string(ch), errors.New("channel not configured")))
			continue
		}
		if err := sender.Deliver(ctx, userID, message); err != nil {
			if !apperrors.IsExternalDelivery(err) {
				err = apperrors.NewExternalDelivery(string(ch), err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
