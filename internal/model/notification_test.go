package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotificationReadStateSemantics(t *testing.T) {
	now := time.Now()
	rec := &NotificationRecord{}

	assert.True(t, rec.IsUnread())
	assert.False(t, rec.IsSeen())
	assert.True(t, rec.Matches(NotificationFilterAll))
	assert.True(t, rec.Matches(NotificationFilterUnread))
	assert.False(t, rec.Matches(NotificationFilterRead))

	// A read record counts as seen without a separate SeenAt stamp.
	rec.ReadAt = &now
	assert.False(t, rec.IsUnread())
	assert.True(t, rec.IsSeen())
	assert.True(t, rec.Matches(NotificationFilterRead))
	assert.False(t, rec.Matches(NotificationFilterUnread))

	// Seen alone does not make a record read.
	rec = &NotificationRecord{SeenAt: &now}
	assert.True(t, rec.IsUnread())
	assert.True(t, rec.IsSeen())
}

func TestNotificationFilterValid(t *testing.T) {
	assert.True(t, NotificationFilterAll.Valid())
	assert.True(t, NotificationFilterUnread.Valid())
	assert.True(t, NotificationFilterRead.Valid())
	assert.False(t, NotificationFilter("").Valid())
	assert.False(t, NotificationFilter("archived").Valid())
}
