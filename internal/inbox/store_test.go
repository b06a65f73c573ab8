package inbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-api/internal/model"
)

var (
	owner1 = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	owner2 = uuid.MustParse("22222222-2222-2222-2222-222222222222")

	baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func nid(n byte) uuid.UUID {
	var id uuid.UUID
	id[15] = n
	return id
}

func rec(n byte, owner uuid.UUID, created time.Time) *model.NotificationRecord {
	return &model.NotificationRecord{
		ID:        nid(n),
		UserID:    owner,
		Title:     "notification",
		Kind:      model.NotificationKindSystem,
		Priority:  model.NotificationPriorityNormal,
		CreatedAt: created,
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.now = func() time.Time { return baseTime.Add(time.Hour) }
	s.Initialize(owner1)
	return s
}

func ids(records []model.NotificationRecord) []uuid.UUID {
	out := make([]uuid.UUID, len(records))
	for i := range records {
		out[i] = records[i].ID
	}
	return out
}

func TestUpsertBatchRecentOrder(t *testing.T) {
	s := newTestStore(t)

	n1 := rec(1, owner1, baseTime.Add(2*time.Minute))
	n2 := rec(2, owner1, baseTime.Add(1*time.Minute))
	require.NoError(t, s.UpsertBatch([]*model.NotificationRecord{n1, n2}))

	assert.Equal(t, 2, s.UnreadCount())
	assert.Equal(t, []uuid.UUID{nid(1), nid(2)}, ids(s.Recent(10)))
}

func TestMarkReadMovesBetweenFilters(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertBatch([]*model.NotificationRecord{
		rec(1, owner1, baseTime.Add(2*time.Minute)),
		rec(2, owner1, baseTime.Add(1*time.Minute)),
	}))

	at, changed, err := s.MarkRead(nid(1))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, at.IsZero())

	assert.Equal(t, 1, s.UnreadCount())
	assert.Equal(t, []uuid.UUID{nid(2)}, ids(s.Page(model.NotificationFilterUnread, 0, 10)))
	assert.Equal(t, []uuid.UUID{nid(1)}, ids(s.Page(model.NotificationFilterRead, 0, 10)))
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	n1 := rec(1, owner1, baseTime.Add(2*time.Minute))
	n2 := rec(2, owner1, baseTime.Add(1*time.Minute))
	require.NoError(t, s.UpsertBatch([]*model.NotificationRecord{n1, n2}))

	// Same record delivered again over the live feed.
	require.NoError(t, s.UpsertOne(rec(1, owner1, baseTime.Add(2*time.Minute))))

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, s.UnreadCount())
}

func TestLiveInsertSortsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertBatch([]*model.NotificationRecord{
		rec(1, owner1, baseTime.Add(2*time.Minute)),
		rec(2, owner1, baseTime.Add(1*time.Minute)),
	}))

	n3 := rec(3, owner1, baseTime.Add(3*time.Minute))
	n3.Priority = model.NotificationPriorityHigh
	require.NoError(t, s.UpsertOne(n3))

	assert.Equal(t, 3, s.UnreadCount())
	assert.Equal(t, []uuid.UUID{nid(3), nid(1), nid(2)}, ids(s.Recent(10)))
}

func TestMarkAllRead(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertBatch([]*model.NotificationRecord{
		rec(1, owner1, baseTime.Add(2*time.Minute)),
		rec(2, owner1, baseTime.Add(1*time.Minute)),
		rec(3, owner1, baseTime.Add(3*time.Minute)),
	}))

	changed, _, err := s.MarkAllRead()
	require.NoError(t, err)
	assert.Len(t, changed, 3)
	assert.Equal(t, 0, s.UnreadCount())
	for _, r := range s.Recent(10) {
		assert.NotNil(t, r.ReadAt)
	}

	// Second call is a no-op.
	changed, _, err = s.MarkAllRead()
	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Equal(t, 0, s.UnreadCount())
}

func TestPageExhaustionSignal(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertBatch([]*model.NotificationRecord{
		rec(1, owner1, baseTime.Add(2*time.Minute)),
		rec(2, owner1, baseTime.Add(1*time.Minute)),
	}))

	page := s.Page(model.NotificationFilterAll, 0, 2)
	assert.Len(t, page, 2)

	next := s.Page(model.NotificationFilterAll, 2, 2)
	assert.Empty(t, next)
}

func TestOrderIndependentConvergence(t *testing.T) {
	set := []*model.NotificationRecord{
		rec(1, owner1, baseTime.Add(1*time.Minute)),
		rec(2, owner1, baseTime.Add(2*time.Minute)),
		rec(3, owner1, baseTime.Add(3*time.Minute)),
		rec(4, owner1, baseTime.Add(4*time.Minute)),
	}

	// Batch first, then duplicated live deliveries.
	a := newTestStore(t)
	require.NoError(t, a.UpsertBatch(set))
	require.NoError(t, a.UpsertOne(set[0]))
	require.NoError(t, a.UpsertOne(set[3]))

	// Live deliveries first in reverse order, then the batch.
	b := newTestStore(t)
	for i := len(set) - 1; i >= 0; i-- {
		require.NoError(t, b.UpsertOne(set[i]))
	}
	require.NoError(t, b.UpsertBatch(set))

	assert.Equal(t, a.Len(), b.Len())
	assert.Equal(t, a.UnreadCount(), b.UnreadCount())
	assert.Equal(t, ids(a.Recent(10)), ids(b.Recent(10)))
}

func TestUnreadCountInvariant(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertBatch([]*model.NotificationRecord{
		rec(1, owner1, baseTime.Add(1*time.Minute)),
		rec(2, owner1, baseTime.Add(2*time.Minute)),
		rec(3, owner1, baseTime.Add(3*time.Minute)),
	}))

	_, _, err := s.MarkRead(nid(1))
	require.NoError(t, err)
	_, _, err = s.MarkRead(nid(2))
	require.NoError(t, err)
	_, _, err = s.MarkUnread(nid(1))
	require.NoError(t, err)
	require.NoError(t, s.UpsertOne(rec(4, owner1, baseTime.Add(4*time.Minute))))
	_, _, err = s.MarkRead(nid(99)) // absent, no-op
	require.NoError(t, err)

	manual := 0
	for _, r := range s.Recent(100) {
		if r.IsUnread() {
			manual++
		}
	}
	assert.Equal(t, manual, s.UnreadCount())
	assert.Equal(t, 3, s.UnreadCount())
}

func TestSeenAtIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertOne(rec(1, owner1, baseTime)))

	stamped, at, err := s.MarkSeen([]uuid.UUID{nid(1)})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{nid(1)}, stamped)

	// An incoming record with a nil SeenAt must not clear the local stamp.
	require.NoError(t, s.UpsertOne(rec(1, owner1, baseTime)))
	got := s.Recent(1)[0]
	require.NotNil(t, got.SeenAt)
	assert.Equal(t, at, *got.SeenAt)

	// Re-stamping already-seen ids is a no-op.
	stamped, _, err = s.MarkSeen([]uuid.UUID{nid(1)})
	require.NoError(t, err)
	assert.Empty(t, stamped)

	// Seen state never affects the unread count.
	assert.Equal(t, 1, s.UnreadCount())
}

func TestMergeAdvancesReadStateForwardOnly(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertOne(rec(1, owner1, baseTime)))
	_, _, err := s.MarkRead(nid(1))
	require.NoError(t, err)

	// A remote copy without the read stamp must not regress local state.
	require.NoError(t, s.UpsertOne(rec(1, owner1, baseTime)))
	assert.NotNil(t, s.Recent(1)[0].ReadAt)
	assert.Equal(t, 0, s.UnreadCount())

	// A remote copy carrying the stamp wins over local nil.
	readAt := baseTime.Add(30 * time.Minute)
	n2 := rec(2, owner1, baseTime.Add(time.Minute))
	require.NoError(t, s.UpsertOne(n2))
	n2dup := rec(2, owner1, baseTime.Add(time.Minute))
	n2dup.ReadAt = &readAt
	require.NoError(t, s.UpsertOne(n2dup))

	assert.Equal(t, 0, s.UnreadCount())
}

func TestServerFieldsAlwaysRefreshed(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertOne(rec(1, owner1, baseTime)))

	updated := rec(1, owner1, baseTime)
	updated.Title = "edited title"
	updated.Body = "new body"
	updated.Link = "https://example.com/x"
	require.NoError(t, s.UpsertOne(updated))

	got := s.Recent(1)[0]
	assert.Equal(t, "edited title", got.Title)
	assert.Equal(t, "new body", got.Body)
}

func TestMutationsBeforeInitialize(t *testing.T) {
	s := NewStore()

	assert.ErrorIs(t, s.UpsertOne(rec(1, owner1, baseTime)), ErrNotInitialized)
	assert.ErrorIs(t, s.UpsertBatch(nil), ErrNotInitialized)
	_, _, err := s.MarkRead(nid(1))
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, _, err = s.MarkAllRead()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitializeSwapsIdentity(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertBatch([]*model.NotificationRecord{
		rec(1, owner1, baseTime),
		rec(2, owner1, baseTime.Add(time.Minute)),
	}))

	s.Initialize(owner2)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.UnreadCount())

	// Records addressed to the previous identity are silently skipped.
	require.NoError(t, s.UpsertOne(rec(3, owner1, baseTime)))
	assert.Equal(t, 0, s.Len())

	require.NoError(t, s.UpsertOne(rec(4, owner2, baseTime)))
	assert.Equal(t, 1, s.Len())
}

func TestCreatedAtTieBrokenByIDDescending(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertBatch([]*model.NotificationRecord{
		rec(1, owner1, baseTime),
		rec(3, owner1, baseTime),
		rec(2, owner1, baseTime),
	}))

	assert.Equal(t, []uuid.UUID{nid(3), nid(2), nid(1)}, ids(s.Recent(10)))
}

func TestMarkUnreadRestoresUnreadCount(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertOne(rec(1, owner1, baseTime)))

	_, _, err := s.MarkRead(nid(1))
	require.NoError(t, err)
	assert.Equal(t, 0, s.UnreadCount())

	prior, changed, err := s.MarkUnread(nid(1))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotNil(t, prior)
	assert.Equal(t, 1, s.UnreadCount())

	// Absent id is a benign no-op.
	_, changed, err = s.MarkUnread(nid(42))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPageFilterSlicing(t *testing.T) {
	s := newTestStore(t)
	for i := byte(1); i <= 5; i++ {
		require.NoError(t, s.UpsertOne(rec(i, owner1, baseTime.Add(time.Duration(i)*time.Minute))))
	}
	_, _, err := s.MarkRead(nid(5))
	require.NoError(t, err)
	_, _, err = s.MarkRead(nid(3))
	require.NoError(t, err)

	unread := s.Page(model.NotificationFilterUnread, 0, 10)
	assert.Equal(t, []uuid.UUID{nid(4), nid(2), nid(1)}, ids(unread))

	read := s.Page(model.NotificationFilterRead, 1, 10)
	assert.Equal(t, []uuid.UUID{nid(3)}, ids(read))

	all := s.Page(model.NotificationFilterAll, 2, 2)
	assert.Equal(t, []uuid.UUID{nid(3), nid(2)}, ids(all))
}
