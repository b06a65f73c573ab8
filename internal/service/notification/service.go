package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
)

const (
	unreadCacheTTL     = 30 * time.Second
	unreadCacheCleanup = 5 * time.Minute
)

// Service is the server-side notification producer and the in-process
// implementation of the inbox core's fetch and write-back collaborators.
type Service struct {
	repo   repository.NotificationRepository
	counts *cache.Cache
	logger zerolog.Logger
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		counts: cache.New(unreadCacheTTL, unreadCacheCleanup),
		logger: logger,
	}
}

// Create persists a new record with producer defaults applied. The matching
// outbox event is written in the same transaction; the dispatch worker
// publishes it to the owner's live feed.
func (s *Service) Create(ctx context.Context, req *model.CreateNotificationRequest) (*model.NotificationRecord, error) {
	ownerID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}
	if req.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	rec := &model.NotificationRecord{
		UserID:   ownerID,
		Title:    req.Title,
		Body:     req.Body,
		Link:     req.Link,
		Kind:     model.NotificationKind(req.Kind),
		Priority: model.NotificationPriority(req.Priority),
		Payload:  req.Payload,
	}
	if rec.Kind == "" {
		rec.Kind = model.NotificationKindSystem
	}
	if rec.Priority == "" {
		rec.Priority = model.NotificationPriorityNormal
	}
	if rec.Payload == nil {
		rec.Payload = model.JSONMap{}
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	s.counts.Delete(ownerID.String())
	s.logger.Info().
		Str("notification_id", rec.ID.String()).
		Str("user_id", ownerID.String()).
		Str("kind", string(rec.Kind)).
		Msg("notification created")

	return rec, nil
}

// FetchPage satisfies the inbox core's batch fetch contract.
func (s *Service) FetchPage(ctx context.Context, ownerID uuid.UUID, filter model.NotificationFilter, offset, limit int) ([]*model.NotificationRecord, error) {
	if !filter.Valid() {
		filter = model.NotificationFilterAll
	}
	return s.repo.ListPage(ctx, ownerID, filter, offset, limit)
}

// UnreadCount serves the badge counter, cached briefly per owner since every
// page render asks for it.
func (s *Service) UnreadCount(ctx context.Context, ownerID uuid.UUID) (int, error) {
	if n, ok := s.counts.Get(ownerID.String()); ok {
		return n.(int), nil
	}

	n, err := s.repo.UnreadCount(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	s.counts.Set(ownerID.String(), n, cache.DefaultExpiration)
	return n, nil
}

func (s *Service) MarkRead(ctx context.Context, ownerID, id uuid.UUID, at time.Time) error {
	if err := s.repo.MarkRead(ctx, ownerID, id, at); err != nil {
		return err
	}
	s.counts.Delete(ownerID.String())
	return nil
}

func (s *Service) MarkUnread(ctx context.Context, ownerID, id uuid.UUID) error {
	if err := s.repo.MarkUnread(ctx, ownerID, id); err != nil {
		return err
	}
	s.counts.Delete(ownerID.String())
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, ownerID uuid.UUID, at time.Time) error {
	if err := s.repo.MarkAllRead(ctx, ownerID, at); err != nil {
		return err
	}
	s.counts.Delete(ownerID.String())
	return nil
}

// MarkSeen persists the monotonic seen stamps; the unread counter is
// unaffected, so the cache stays.
func (s *Service) MarkSeen(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID, at time.Time) error {
	return s.repo.MarkSeen(ctx, ownerID, ids, at)
}
