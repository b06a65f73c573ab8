package inbox

import (
	"context"
	"errors"

	"github.com/jwalitptl/notify-api/internal/model"

	"github.com/google/uuid"
)

// RecentView backs the compact dropdown surface: a capped most-recent-first
// slice plus the unread counter.
type RecentView struct {
	Items  []model.NotificationRecord `json:"items"`
	Unread int                        `json:"unread"`
}

// PageView backs the full listing. A short Items slice signals end-of-data
// for the filter; there is no separate flag on the wire beyond Exhausted,
// which mirrors it for convenience.
type PageView struct {
	Items     []model.NotificationRecord `json:"items"`
	Filter    model.NotificationFilter   `json:"filter"`
	Offset    int                        `json:"offset"`
	Exhausted bool                       `json:"exhausted"`
}

// OpenRecent projects the capped recent slice and stamps SeenAt for every
// unseen record it reveals. Re-opening over already-seen records is a no-op.
func (r *Reconciler) OpenRecent(ctx context.Context, limit int) (*RecentView, error) {
	if !r.store.Initialized() {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	items := r.store.Recent(limit)
	if err := r.markSeen(ctx, unseenIDs(items)); err != nil {
		return nil, err
	}
	return &RecentView{
		Items:  r.store.Recent(limit),
		Unread: r.store.UnreadCount(),
	}, nil
}

// OpenPage projects one page of the filtered view, pulling another page from
// the fetch collaborator when the local window is too short, and stamps
// SeenAt for the newly revealed slice. Each filter paginates independently;
// switching filters is always a fresh first-page query.
func (r *Reconciler) OpenPage(ctx context.Context, filter model.NotificationFilter, offset, limit int) (*PageView, error) {
	if !r.store.Initialized() {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	if !r.Exhausted(filter) && r.store.FilterCount(filter) < offset+limit {
		if err := r.LoadMore(ctx, filter); err != nil && !errors.Is(err, ErrLoadInFlight) {
			return nil, err
		}
	}

	items := r.store.Page(filter, offset, limit)
	if err := r.markSeen(ctx, unseenIDs(items)); err != nil {
		return nil, err
	}

	return &PageView{
		Items:     r.store.Page(filter, offset, limit),
		Filter:    filter,
		Offset:    offset,
		Exhausted: r.Exhausted(filter) && offset+len(items) >= r.store.FilterCount(filter),
	}, nil
}

func unseenIDs(items []model.NotificationRecord) []uuid.UUID {
	var ids []uuid.UUID
	for i := range items {
		if !items[i].IsSeen() {
			ids = append(ids, items[i].ID)
		}
	}
	return ids
}
