package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
	apperrors "github.com/jwalitptl/notify-api/pkg/errors"
)

type Service struct {
	users  repository.UserRepository
	logger zerolog.Logger
}

func NewService(users repository.UserRepository, logger zerolog.Logger) *Service {
	return &Service{users: users, logger: logger}
}

func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, apperrors.NotFound("user", err)
	}
	return user, nil
}

// UpdateProfile applies only the fields present in the request.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req *model.UpdateProfileRequest) (*model.User, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, apperrors.NotFound("user", err)
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.AvatarURL != nil {
		user.AvatarURL = *req.AvatarURL
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	s.logger.Info().Str("user_id", userID.String()).Msg("profile updated")
	return user, nil
}
