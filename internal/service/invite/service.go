package invite

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
	"github.com/jwalitptl/notify-api/internal/service/notification"
)

const (
	codeAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength    = 10
	inviteTTL     = 30 * 24 * time.Hour
	defaultReward = 500
)

type Service struct {
	invites       repository.InviteRepository
	notifications *notification.Service
	logger        zerolog.Logger
}

func NewService(invites repository.InviteRepository, notifications *notification.Service, logger zerolog.Logger) *Service {
	return &Service{
		invites:       invites,
		notifications: notifications,
		logger:        logger,
	}
}

// Issue mints a single-use invite code for the issuer.
func (s *Service) Issue(ctx context.Context, issuerID uuid.UUID, reward int64) (*model.Invite, error) {
	if reward <= 0 {
		reward = defaultReward
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	expires := time.Now().Add(inviteTTL)
	inv := &model.Invite{
		Code:      code,
		IssuerID:  &issuerID,
		Reward:    reward,
		ExpiresAt: &expires,
	}
	if err := s.invites.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	s.logger.Info().Str("issuer_id", issuerID.String()).Str("code", code).Msg("invite issued")
	return inv, nil
}

// Redeem consumes the code for the user. The outcome is a plain boolean:
// unknown, expired, and already-redeemed codes all report false without
// revealing which. A successful redemption credits the balance and drops a
// billing notification into the user's inbox.
func (s *Service) Redeem(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	ok, err := s.invites.Redeem(ctx, userID, code)
	if err != nil {
		return false, fmt.Errorf("failed to redeem invite: %w", err)
	}
	if !ok {
		return false, nil
	}

	inv, err := s.invites.GetByCode(ctx, code)
	if err != nil {
		s.logger.Error().Err(err).Str("code", code).Msg("redeemed invite not found for notification")
		return true, nil
	}

	req := &model.CreateNotificationRequest{
		UserID: userID.String(),
		Title:  "Invite redeemed",
		Body:   fmt.Sprintf("Your balance was credited with %d points.", inv.Reward),
		Link:   "/account",
		Kind:   string(model.NotificationKindBilling),
		Payload: model.JSONMap{
			"invite_code": inv.Code,
			"reward":      inv.Reward,
		},
	}
	if _, err := s.notifications.Create(ctx, req); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to notify invite redemption")
	}

	s.logger.Info().Str("user_id", userID.String()).Str("code", code).Msg("invite redeemed")
	return true, nil
}

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invite code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
