package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/notify-api/internal/model"
)

// Fetcher supplies ordered pages of a user's notifications, newest first.
type Fetcher interface {
	FetchPage(ctx context.Context, ownerID uuid.UUID, filter model.NotificationFilter, offset, limit int) ([]*model.NotificationRecord, error)
}

// Writer persists read/seen state transitions remotely.
type Writer interface {
	MarkRead(ctx context.Context, ownerID, id uuid.UUID, at time.Time) error
	MarkUnread(ctx context.Context, ownerID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, ownerID uuid.UUID, at time.Time) error
	MarkSeen(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID, at time.Time) error
}

const DefaultPageSize = 20

// Reconciler unifies batch page fetches and the live insert feed into one
// consistent Store, and applies local read/seen mutations optimistically with
// a remote write-back, compensating locally when the write-back fails.
//
// Batch fetches are serialized per store; the live feed may interleave with
// them at any time. Because the store's merge is idempotent and
// order-independent, at-least-once delivery in arbitrary order converges to
// the same state.
type Reconciler struct {
	store   *Store
	fetcher Fetcher
	writer  Writer
	logger  zerolog.Logger

	pageSize int

	mu        sync.Mutex
	loading   bool
	exhausted map[model.NotificationFilter]bool
	seq       map[uuid.UUID]uint64
}

func NewReconciler(store *Store, fetcher Fetcher, writer Writer, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		fetcher:   fetcher,
		writer:    writer,
		logger:    logger,
		pageSize:  DefaultPageSize,
		exhausted: make(map[model.NotificationFilter]bool),
		seq:       make(map[uuid.UUID]uint64),
	}
}

// SetPageSize overrides the batch fetch page size.
func (r *Reconciler) SetPageSize(n int) {
	if n > 0 {
		r.pageSize = n
	}
}

// Initialize resets the store for a new owner. It fails while a batch fetch
// is in flight; a fetch for the previous owner that completes afterwards is
// discarded by owner stamping instead.
func (r *Reconciler) Initialize(owner uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loading {
		return ErrLoadInFlight
	}
	r.store.Initialize(owner)
	r.exhausted = make(map[model.NotificationFilter]bool)
	r.seq = make(map[uuid.UUID]uint64)
	return nil
}

// Load fetches the first page for the owner and clears all exhaustion
// latches. Used for the initial load and for full refreshes.
func (r *Reconciler) Load(ctx context.Context) error {
	if !r.store.Initialized() {
		return ErrNotInitialized
	}
	if err := r.beginLoad(); err != nil {
		return err
	}
	defer r.endLoad()

	owner := r.store.Owner()
	records, err := r.fetcher.FetchPage(ctx, owner, model.NotificationFilterAll, 0, r.pageSize)
	if err != nil {
		return fmt.Errorf("fetch initial page: %w", err)
	}
	if r.store.Owner() != owner {
		// Identity changed while the request was in flight.
		r.logger.Debug().Str("owner", owner.String()).Msg("discarding stale page")
		return nil
	}

	r.mu.Lock()
	r.exhausted = make(map[model.NotificationFilter]bool)
	if len(records) < r.pageSize {
		r.exhausted[model.NotificationFilterAll] = true
	}
	r.mu.Unlock()

	return r.store.UpsertBatch(records)
}

// LoadMore fetches the next page for the filtered view, using the local
// count of matching records as the offset. Once a short page marks the view
// exhausted, further calls are no-ops until the next full Load.
func (r *Reconciler) LoadMore(ctx context.Context, filter model.NotificationFilter) error {
	if !r.store.Initialized() {
		return ErrNotInitialized
	}

	r.mu.Lock()
	if r.exhausted[filter] {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := r.beginLoad(); err != nil {
		return err
	}
	defer r.endLoad()

	owner := r.store.Owner()
	offset := r.store.FilterCount(filter)

	records, err := r.fetcher.FetchPage(ctx, owner, filter, offset, r.pageSize)
	if err != nil {
		return fmt.Errorf("fetch page at offset %d: %w", offset, err)
	}
	if r.store.Owner() != owner {
		r.logger.Debug().Str("owner", owner.String()).Msg("discarding stale page")
		return nil
	}

	if len(records) < r.pageSize {
		r.mu.Lock()
		r.exhausted[filter] = true
		r.mu.Unlock()
	}

	return r.store.UpsertBatch(records)
}

// Exhausted reports whether the filtered view has reached end-of-data.
func (r *Reconciler) Exhausted(filter model.NotificationFilter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exhausted[filter]
}

// Deliver is the live feed callback, invoked once per inserted record. It is
// safe under at-least-once redelivery and may interleave with batch fetches.
// Deliveries before initialization or for another owner are dropped.
func (r *Reconciler) Deliver(rec *model.NotificationRecord) {
	if err := r.store.UpsertOne(rec); err != nil {
		r.logger.Debug().Err(err).Msg("dropping live record")
	}
}

// MarkRead applies the read transition locally, then writes it back. If the
// write-back fails the local transition is reverted, unless a newer mutation
// on the same record has already superseded it.
func (r *Reconciler) MarkRead(ctx context.Context, id uuid.UUID) error {
	at, changed, err := r.store.MarkRead(id)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	owner := r.store.Owner()
	token := r.bump(id)
	if err := r.writer.MarkRead(ctx, owner, id, at); err != nil {
		if r.current(id) == token && r.store.Owner() == owner {
			r.store.setReadAt(id, nil)
		}
		return fmt.Errorf("write back read state: %w", err)
	}
	return nil
}

// MarkUnread clears the read transition locally and writes it back,
// restoring the prior timestamp on failure.
func (r *Reconciler) MarkUnread(ctx context.Context, id uuid.UUID) error {
	prior, changed, err := r.store.MarkUnread(id)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	owner := r.store.Owner()
	token := r.bump(id)
	if err := r.writer.MarkUnread(ctx, owner, id); err != nil {
		if r.current(id) == token && r.store.Owner() == owner {
			r.store.setReadAt(id, prior)
		}
		return fmt.Errorf("write back unread state: %w", err)
	}
	return nil
}

// MarkAllRead stamps every unread record locally in one step and writes the
// bulk transition back, reverting the stamped records on failure.
func (r *Reconciler) MarkAllRead(ctx context.Context) error {
	ids, at, err := r.store.MarkAllRead()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	owner := r.store.Owner()
	tokens := make(map[uuid.UUID]uint64, len(ids))
	for _, id := range ids {
		tokens[id] = r.bump(id)
	}
	if err := r.writer.MarkAllRead(ctx, owner, at); err != nil {
		if r.store.Owner() == owner {
			for _, id := range ids {
				if r.current(id) == tokens[id] {
					r.store.setReadAt(id, nil)
				}
			}
		}
		return fmt.Errorf("write back read-all: %w", err)
	}
	return nil
}

// markSeen stamps the given records locally and writes the transition back.
// SeenAt is monotonic, so a failed write-back is surfaced but not reverted;
// the next reveal retries the ids that never reached the server.
func (r *Reconciler) markSeen(ctx context.Context, ids []uuid.UUID) error {
	stamped, at, err := r.store.MarkSeen(ids)
	if err != nil {
		return err
	}
	if len(stamped) == 0 {
		return nil
	}
	if err := r.writer.MarkSeen(ctx, r.store.Owner(), stamped, at); err != nil {
		return fmt.Errorf("write back seen state: %w", err)
	}
	return nil
}

func (r *Reconciler) beginLoad() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loading {
		return ErrLoadInFlight
	}
	r.loading = true
	return nil
}

func (r *Reconciler) endLoad() {
	r.mu.Lock()
	r.loading = false
	r.mu.Unlock()
}

func (r *Reconciler) bump(id uuid.UUID) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq[id]++
	return r.seq[id]
}

func (r *Reconciler) current(id uuid.UUID) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq[id]
}

// IsTransient reports whether err came from a collaborator round trip and is
// worth retrying with backoff, as opposed to structural misuse.
func IsTransient(err error) bool {
	return err != nil && !errors.Is(err, ErrNotInitialized) && !errors.Is(err, ErrLoadInFlight)
}
