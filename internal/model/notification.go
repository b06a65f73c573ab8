package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	NotificationKindSystem   NotificationKind = "system"
	NotificationKindMessage  NotificationKind = "message"
	NotificationKindComment  NotificationKind = "comment"
	NotificationKindBilling  NotificationKind = "billing"
	NotificationKindSecurity NotificationKind = "security"
)

type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// NotificationFilter selects a slice of a user's notifications by read state.
type NotificationFilter string

const (
	NotificationFilterAll    NotificationFilter = "all"
	NotificationFilterUnread NotificationFilter = "unread"
	NotificationFilterRead   NotificationFilter = "read"
)

func (f NotificationFilter) Valid() bool {
	switch f {
	case NotificationFilterAll, NotificationFilterUnread, NotificationFilterRead:
		return true
	}
	return false
}

// NotificationRecord is one notification addressed to one user.
//
// CreatedAt is set once by the producer and never changes. SeenAt is stamped
// the first time the record is rendered to the user and is never cleared.
// ReadAt is set on explicit acknowledgement and may be cleared again by
// "mark unread".
type NotificationRecord struct {
	ID        uuid.UUID            `json:"id" db:"id"`
	UserID    uuid.UUID            `json:"user_id" db:"user_id"`
	Title     string               `json:"title" db:"title"`
	Body      string               `json:"body,omitempty" db:"body"`
	Link      string               `json:"link,omitempty" db:"link"`
	Kind      NotificationKind     `json:"kind" db:"kind"`
	Priority  NotificationPriority `json:"priority" db:"priority"`
	Payload   JSONMap              `json:"payload" db:"payload"`
	CreatedAt time.Time            `json:"created_at" db:"created_at"`
	SeenAt    *time.Time           `json:"seen_at,omitempty" db:"seen_at"`
	ReadAt    *time.Time           `json:"read_at,omitempty" db:"read_at"`
}

func (n *NotificationRecord) IsUnread() bool {
	return n.ReadAt == nil
}

// IsSeen treats a read record as seen even if SeenAt was never stamped,
// so a single acknowledgement never needs two round trips.
func (n *NotificationRecord) IsSeen() bool {
	return n.SeenAt != nil || n.ReadAt != nil
}

// Matches reports whether the record belongs to the filtered view.
func (n *NotificationRecord) Matches(filter NotificationFilter) bool {
	switch filter {
	case NotificationFilterUnread:
		return n.IsUnread()
	case NotificationFilterRead:
		return !n.IsUnread()
	default:
		return true
	}
}

type CreateNotificationRequest struct {
	UserID   string  `json:"user_id" binding:"required,uuid"`
	Title    string  `json:"title" binding:"required"`
	Body     string  `json:"body"`
	Link     string  `json:"link" binding:"omitempty,uri"`
	Kind     string  `json:"kind" binding:"omitempty,oneof=system message comment billing security"`
	Priority string  `json:"priority" binding:"omitempty,oneof=low normal high"`
	Payload  JSONMap `json:"payload"`
}

type ListNotificationsRequest struct {
	Filter string `form:"filter" binding:"omitempty,oneof=all unread read"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

type MarkSeenRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,dive,uuid"`
}
