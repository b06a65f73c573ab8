package inbox

import (
	"bytes"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-api/internal/model"
)

var (
	// ErrNotInitialized is returned when a store operation runs before
	// Initialize, or after the owning identity changed without reinitializing.
	ErrNotInitialized = errors.New("inbox: store not initialized")

	// ErrLoadInFlight is returned when an operation that must be serialized
	// overlaps a batch fetch already in progress for the same store.
	ErrLoadInFlight = errors.New("inbox: batch load already in flight")
)

// Store is an in-memory collection of one user's notifications, ordered by
// created_at descending with ties broken by id descending. It owns a single
// authenticated identity's session and is reset wholesale on identity change.
//
// The unread count is maintained incrementally and always equals the number
// of records with a nil ReadAt.
type Store struct {
	mu          sync.RWMutex
	owner       uuid.UUID
	initialized bool
	records     map[uuid.UUID]*model.NotificationRecord
	order       []uuid.UUID
	unread      int

	now func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Initialize clears all state and binds the store to a new owner.
func (s *Store) Initialize(owner uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.owner = owner
	s.initialized = true
	s.records = make(map[uuid.UUID]*model.NotificationRecord)
	s.order = s.order[:0]
	s.unread = 0
}

func (s *Store) Owner() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// UnreadCount returns the invariant-maintained unread counter in O(1).
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// UpsertBatch merges a fetched page into the store. Records already present
// are refreshed; records for a different owner are silently skipped, which
// makes late-arriving pages from a previous identity harmless.
func (s *Store) UpsertBatch(records []*model.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	for _, rec := range records {
		s.upsert(rec)
	}
	return nil
}

// UpsertOne merges a single live-delivered record. Duplicate delivery of the
// same id never creates a second entry or double-counts the unread total.
func (s *Store) UpsertOne(rec *model.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.upsert(rec)
	return nil
}

// upsert applies the merge rule: server-owned fields are always refreshed,
// ReadAt and SeenAt advance forward only (an incoming nil never clears a
// local timestamp), and CreatedAt is immutable after first sight.
func (s *Store) upsert(in *model.NotificationRecord) {
	if in == nil || in.UserID != s.owner {
		return
	}

	existing, ok := s.records[in.ID]
	if !ok {
		rec := *in
		s.records[rec.ID] = &rec
		s.insertOrdered(rec.ID)
		if rec.IsUnread() {
			s.unread++
		}
		return
	}

	existing.Title = in.Title
	existing.Body = in.Body
	existing.Link = in.Link
	existing.Kind = in.Kind
	existing.Priority = in.Priority
	existing.Payload = in.Payload

	if existing.SeenAt == nil && in.SeenAt != nil {
		seen := *in.SeenAt
		existing.SeenAt = &seen
	}
	if existing.ReadAt == nil && in.ReadAt != nil {
		read := *in.ReadAt
		existing.ReadAt = &read
		s.unread--
	}
}

// MarkRead stamps ReadAt if currently unread. Absent ids are a no-op, not an
// error: the record may simply be outside the local pagination window.
// The returned time is valid only when changed is true.
func (s *Store) MarkRead(id uuid.UUID) (at time.Time, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return time.Time{}, false, ErrNotInitialized
	}
	rec, ok := s.records[id]
	if !ok || rec.ReadAt != nil {
		return time.Time{}, false, nil
	}
	at = s.now()
	rec.ReadAt = &at
	s.unread--
	return at, true, nil
}

// MarkUnread clears ReadAt. The prior timestamp is returned so a failed
// write-back can be compensated.
func (s *Store) MarkUnread(id uuid.UUID) (prior *time.Time, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, false, ErrNotInitialized
	}
	rec, ok := s.records[id]
	if !ok || rec.ReadAt == nil {
		return nil, false, nil
	}
	prior = rec.ReadAt
	rec.ReadAt = nil
	s.unread++
	return prior, true, nil
}

// MarkAllRead stamps every unread record in one logical step and returns the
// ids that transitioned.
func (s *Store) MarkAllRead() (ids []uuid.UUID, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, time.Time{}, ErrNotInitialized
	}
	at = s.now()
	for _, id := range s.order {
		rec := s.records[id]
		if rec.ReadAt == nil {
			t := at
			rec.ReadAt = &t
			ids = append(ids, id)
		}
	}
	s.unread = 0
	return ids, at, nil
}

// MarkSeen stamps SeenAt for the given ids where still unseen and returns the
// ids that transitioned. SeenAt is monotonic: already-seen ids are skipped,
// never rewound. The unread count is unaffected.
func (s *Store) MarkSeen(ids []uuid.UUID) (stamped []uuid.UUID, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, time.Time{}, ErrNotInitialized
	}
	at = s.now()
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok || rec.SeenAt != nil {
			continue
		}
		t := at
		rec.SeenAt = &t
		stamped = append(stamped, id)
	}
	return stamped, at, nil
}

// setReadAt restores a ReadAt value verbatim; used only for compensating a
// failed write-back.
func (s *Store) setReadAt(id uuid.UUID, at *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return
	}
	if rec.ReadAt == nil && at != nil {
		s.unread--
	}
	if rec.ReadAt != nil && at == nil {
		s.unread++
	}
	rec.ReadAt = at
}

// Recent returns up to limit records in store order.
func (s *Store) Recent(limit int) []model.NotificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]model.NotificationRecord, 0, limit)
	for _, id := range s.order[:limit] {
		out = append(out, *s.records[id])
	}
	return out
}

// Page returns records matching the filter in store order, sliced
// [offset, offset+limit). A short page is the exhaustion signal: callers
// must treat fewer than limit records as end-of-data.
func (s *Store) Page(filter model.NotificationFilter, offset, limit int) []model.NotificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.NotificationRecord, 0, limit)
	skipped := 0
	for _, id := range s.order {
		rec := s.records[id]
		if !rec.Matches(filter) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, *rec)
		if len(out) == limit {
			break
		}
	}
	return out
}

// FilterCount returns how many local records match the filter.
func (s *Store) FilterCount(filter model.NotificationFilter) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter == model.NotificationFilterAll {
		return len(s.order)
	}
	n := 0
	for _, id := range s.order {
		if s.records[id].Matches(filter) {
			n++
		}
	}
	return n
}

func (s *Store) insertOrdered(id uuid.UUID) {
	rec := s.records[id]
	i := sort.Search(len(s.order), func(i int) bool {
		return s.less(rec, s.records[s.order[i]])
	})
	s.order = append(s.order, uuid.Nil)
	copy(s.order[i+1:], s.order[i:])
	s.order[i] = id
}

// less orders newest first; equal timestamps fall back to id descending so
// merges are deterministic regardless of arrival order.
func (s *Store) less(a, b *model.NotificationRecord) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) > 0
}
