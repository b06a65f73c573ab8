package invite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
	"github.com/jwalitptl/notify-api/internal/service/notification"
)

type fakeInviteRepo struct {
	invites map[string]*model.Invite
	fail    bool
}

func newFakeInviteRepo() *fakeInviteRepo {
	return &fakeInviteRepo{invites: make(map[string]*model.Invite)}
}

func (r *fakeInviteRepo) Create(_ context.Context, inv *model.Invite) error {
	inv.ID = uuid.New()
	r.invites[inv.Code] = inv
	return nil
}

func (r *fakeInviteRepo) GetByCode(_ context.Context, code string) (*model.Invite, error) {
	return r.invites[code], nil
}

func (r *fakeInviteRepo) Redeem(_ context.Context, userID uuid.UUID, code string) (bool, error) {
	inv, ok := r.invites[code]
	if !ok || inv.Redeemed() || r.fail {
		return false, nil
	}
	now := time.Now()
	inv.RedeemedBy = &userID
	inv.RedeemedAt = &now
	return true, nil
}

type recordingNotificationRepo struct {
	created []*model.NotificationRecord
}

func (r *recordingNotificationRepo) Create(_ context.Context, rec *model.NotificationRecord) error {
	rec.ID = uuid.New()
	r.created = append(r.created, rec)
	return nil
}

func (r *recordingNotificationRepo) Get(context.Context, uuid.UUID) (*model.NotificationRecord, error) {
	return nil, nil
}

func (r *recordingNotificationRepo) ListPage(context.Context, uuid.UUID, model.NotificationFilter, int, int) ([]*model.NotificationRecord, error) {
	return nil, nil
}

func (r *recordingNotificationRepo) UnreadCount(context.Context, uuid.UUID) (int, error) {
	return 0, nil
}

func (r *recordingNotificationRepo) MarkRead(context.Context, uuid.UUID, uuid.UUID, time.Time) error {
	return nil
}

func (r *recordingNotificationRepo) MarkUnread(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func (r *recordingNotificationRepo) MarkAllRead(context.Context, uuid.UUID, time.Time) error {
	return nil
}

func (r *recordingNotificationRepo) MarkSeen(context.Context, uuid.UUID, []uuid.UUID, time.Time) error {
	return nil
}

var _ repository.InviteRepository = (*fakeInviteRepo)(nil)
var _ repository.NotificationRepository = (*recordingNotificationRepo)(nil)

func newTestService(invites *fakeInviteRepo, notifications *recordingNotificationRepo) *Service {
	notificationSvc := notification.NewService(notifications, zerolog.Nop())
	return NewService(invites, notificationSvc, zerolog.Nop())
}

func TestIssueGeneratesCode(t *testing.T) {
	svc := newTestService(newFakeInviteRepo(), &recordingNotificationRepo{})

	inv, err := svc.Issue(context.Background(), uuid.New(), 0)
	require.NoError(t, err)

	assert.Len(t, inv.Code, codeLength)
	assert.Equal(t, int64(defaultReward), inv.Reward)
	assert.NotNil(t, inv.ExpiresAt)
}

func TestRedeemNotifiesUser(t *testing.T) {
	invites := newFakeInviteRepo()
	notifications := &recordingNotificationRepo{}
	svc := newTestService(invites, notifications)

	issuer := uuid.New()
	inv, err := svc.Issue(context.Background(), issuer, 100)
	require.NoError(t, err)

	redeemer := uuid.New()
	ok, err := svc.Redeem(context.Background(), redeemer, inv.Code)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, notifications.created, 1)
	rec := notifications.created[0]
	assert.Equal(t, redeemer, rec.UserID)
	assert.Equal(t, model.NotificationKindBilling, rec.Kind)
	assert.Equal(t, inv.Code, rec.Payload["invite_code"])
}

func TestRedeemUnknownCodeIsSilent(t *testing.T) {
	notifications := &recordingNotificationRepo{}
	svc := newTestService(newFakeInviteRepo(), notifications)

	ok, err := svc.Redeem(context.Background(), uuid.New(), "NOSUCHCODE")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, notifications.created)
}

func TestRedeemIsSingleUse(t *testing.T) {
	invites := newFakeInviteRepo()
	svc := newTestService(invites, &recordingNotificationRepo{})

	inv, err := svc.Issue(context.Background(), uuid.New(), 100)
	require.NoError(t, err)

	ok, err := svc.Redeem(context.Background(), uuid.New(), inv.Code)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.Redeem(context.Background(), uuid.New(), inv.Code)
	require.NoError(t, err)
	assert.False(t, ok)
}
