package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/model"
)

// All repository interfaces in one file
type (
	// ReminderRuleRepository persists staff-managed reminder rules
	ReminderRuleRepository interface {
		Create(ctx context.Context, rule *model.ReminderRule) error
		Get(ctx context.Context, id uuid.UUID) (*model.ReminderRule, error)
		Update(ctx context.Context, rule *model.ReminderRule) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context) ([]*model.ReminderRule, error)
		ListEnabled(ctx context.Context) ([]*model.ReminderRule, error)
		// Toggle flips enabled and returns the stored rule.
		Toggle(ctx context.Context, id uuid.UUID, updatedBy *uuid.UUID) (*model.ReminderRule, error)
	}

	SubscriptionRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Subscription, error)
		List(ctx context.Context, filters *model.SubscriptionFilters) ([]*model.Subscription, error)
	}

	PaymentRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Payment, error)
		// ListOverdue returns unpaid payments whose due date is before asOf.
		ListOverdue(ctx context.Context, asOf time.Time) ([]*model.Payment, error)
		// Create stores payment. When payment.DiscountID is set the discount is
		// consumed in the same transaction; a lost race yields a conflict error
		// and nothing is written.
		Create(ctx context.Context, payment *model.Payment) error
	}

	DiscountRepository interface {
		Create(ctx context.Context, discount *model.Discount) error
		Get(ctx context.Context, id uuid.UUID) (*model.Discount, error)
		ListActive(ctx context.Context, asOf time.Time) ([]*model.Discount, error)
		// Consume moves status active -> used atomically.
		Consume(ctx context.Context, id uuid.UUID, paymentID *uuid.UUID, at time.Time) error
		// Cancel moves status active -> cancelled atomically.
		Cancel(ctx context.Context, id uuid.UUID) error
		// ExpireBefore moves active discounts expiring before cutoff to expired.
		ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	// DirectoryRepository is the roster collaborator.
	DirectoryRepository interface {
		BranchMembers(ctx context.Context, branchID uuid.UUID, group model.Group) ([]uuid.UUID, error)
		ActiveAccounts(ctx context.Context, roles []model.Role) ([]uuid.UUID, error)
		ExistingAccounts(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
		ParentsOfPlayer(ctx context.Context, playerID uuid.UUID) ([]uuid.UUID, error)
		Account(ctx context.Context, id uuid.UUID) (*model.Account, error)
	}

	// SendLogRepository is the durable idempotency key store.
	SendLogRepository interface {
		// Fired returns the already recorded keys, indexed by SendKey.String().
		Fired(ctx context.Context, keys []model.SendKey) (map[string]bool, error)
		// Claim reserves key before delivery. It reports false when the key
		// is already claimed or recorded, by this or another process.
		Claim(ctx context.Context, key model.SendKey) (bool, error)
		// Release drops a claim whose delivery reached nobody, so a later
		// sweep can retry it.
		Release(ctx context.Context, key model.SendKey) error
		// MarkFired records the delivered count on key.
		MarkFired(ctx context.Context, key model.SendKey, recipients int) error
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	// NotificationRepository stores inbox rows together with the outbox
	// event that pushes them to live clients.
	NotificationRepository interface {
		CreateWithEvent(ctx context.Context, notification *model.Notification, event *model.OutboxEvent) error
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.NotificationStatus) error
	}

	OutboxRepository interface {
		// ClaimPending leases up to limit due events for lease, so a
		// concurrent relay skips them until the lease runs out.
		ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
