package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

// Create inserts the record and its outbox event in one transaction so the
// live feed never observes a notification that was not persisted.
func (r *notificationRepository) Create(ctx context.Context, rec *model.NotificationRecord) error {
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO notifications (
				id, user_id, title, body, link, kind, priority, payload, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		if _, err := tx.ExecContext(ctx, query,
			rec.ID,
			rec.UserID,
			rec.Title,
			rec.Body,
			rec.Link,
			rec.Kind,
			rec.Priority,
			rec.Payload,
			rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}

		outbox := `
			INSERT INTO outbox_events (
				id, event_type, user_id, payload, status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $6)
		`
		now := time.Now()
		if _, err := tx.ExecContext(ctx, outbox,
			uuid.New(),
			"notification.created",
			rec.UserID,
			payload,
			model.OutboxStatusPending,
			now,
		); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		return nil
	})
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.NotificationRecord, error) {
	query := `SELECT * FROM notifications WHERE id = $1`

	var rec model.NotificationRecord
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &rec, nil
}

// ListPage returns one page of the owner's notifications, newest first with
// id as the tiebreaker so pagination is stable across equal timestamps.
func (r *notificationRepository) ListPage(ctx context.Context, ownerID uuid.UUID, filter model.NotificationFilter, offset, limit int) ([]*model.NotificationRecord, error) {
	query := `
		SELECT * FROM notifications
		WHERE user_id = $1
	`
	switch filter {
	case model.NotificationFilterUnread:
		query += " AND read_at IS NULL"
	case model.NotificationFilterRead:
		query += " AND read_at IS NOT NULL"
	}
	query += `
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3
	`

	records := []*model.NotificationRecord{}
	if err := r.db.SelectContext(ctx, &records, query, ownerID, offset, limit); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return records, nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, ownerID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND read_at IS NULL
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, ownerID); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead stamps read_at only while still null, mirroring the forward-only
// merge rule of the client store. Zero rows affected is not an error.
func (r *notificationRepository) MarkRead(ctx context.Context, ownerID, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE notifications
		SET read_at = $1
		WHERE id = $2 AND user_id = $3 AND read_at IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, at, id, ownerID); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

func (r *notificationRepository) MarkUnread(ctx context.Context, ownerID, id uuid.UUID) error {
	query := `
		UPDATE notifications
		SET read_at = NULL
		WHERE id = $1 AND user_id = $2
	`

	if _, err := r.db.ExecContext(ctx, query, id, ownerID); err != nil {
		return fmt.Errorf("failed to mark notification unread: %w", err)
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, ownerID uuid.UUID, at time.Time) error {
	query := `
		UPDATE notifications
		SET read_at = $1
		WHERE user_id = $2 AND read_at IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, at, ownerID); err != nil {
		return fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return nil
}

// MarkSeen stamps seen_at for the given ids where still null. seen_at is
// monotonic and is never rewound once set.
func (r *notificationRepository) MarkSeen(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE notifications
		SET seen_at = $1
		WHERE user_id = $2 AND id = ANY($3) AND seen_at IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, at, ownerID, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to mark notifications seen: %w", err)
	}
	return nil
}
