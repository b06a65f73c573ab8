package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-api/internal/model"
)

// All repository interfaces in one file
type (
	// NotificationRepository is the server-side source of truth for
	// notification records: the batch fetch and write-back collaborators of
	// the inbox core both resolve to it.
	NotificationRepository interface {
		Create(ctx context.Context, rec *model.NotificationRecord) error
		Get(ctx context.Context, id uuid.UUID) (*model.NotificationRecord, error)
		ListPage(ctx context.Context, ownerID uuid.UUID, filter model.NotificationFilter, offset, limit int) ([]*model.NotificationRecord, error)
		UnreadCount(ctx context.Context, ownerID uuid.UUID) (int, error)
		MarkRead(ctx context.Context, ownerID, id uuid.UUID, at time.Time) error
		MarkUnread(ctx context.Context, ownerID, id uuid.UUID) error
		MarkAllRead(ctx context.Context, ownerID uuid.UUID, at time.Time) error
		MarkSeen(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID, at time.Time) error
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
		CreditBalance(ctx context.Context, id uuid.UUID, amount int64) error
	}

	TokenRepository interface {
		StoreVerificationToken(ctx context.Context, userID uuid.UUID, token string, expiry time.Time) error
		ValidateVerificationToken(ctx context.Context, token string) (uuid.UUID, error)
		InvalidateVerificationToken(ctx context.Context, token string) error
		StoreResetToken(ctx context.Context, userID uuid.UUID, token string, expiry time.Time) error
		ValidateResetToken(ctx context.Context, token string) (uuid.UUID, error)
		InvalidateResetToken(ctx context.Context, token string) error
	}

	// InviteRepository redeems an invite code for a user. Redeem returns
	// false without an error when the code is unknown, expired, or already
	// redeemed; callers only learn the boolean outcome.
	InviteRepository interface {
		Create(ctx context.Context, invite *model.Invite) error
		GetByCode(ctx context.Context, code string) (*model.Invite, error)
		Redeem(ctx context.Context, userID uuid.UUID, code string) (bool, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
