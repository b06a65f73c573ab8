package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/notify-api/internal/email"
	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
	"github.com/jwalitptl/notify-api/pkg/auth"
	apperrors "github.com/jwalitptl/notify-api/pkg/errors"
)

const (
	bcryptCost       = 12
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute

	verifyTokenTTL = 24 * time.Hour
	resetTokenTTL  = time.Hour
)

type Service struct {
	users  repository.UserRepository
	tokens repository.TokenRepository
	jwt    auth.JWTService
	email  email.Service
	logger zerolog.Logger
}

func NewService(users repository.UserRepository, tokens repository.TokenRepository, jwt auth.JWTService, email email.Service, logger zerolog.Logger) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		jwt:    jwt,
		email:  email,
		logger: logger,
	}
}

// Signup creates a pending account and mails a verification link. The
// welcome email waits until the address is verified.
func (s *Service) Signup(ctx context.Context, req *model.SignupRequest) (*model.User, error) {
	if existing, err := s.users.GetByEmail(ctx, req.Email); err == nil && existing != nil {
		return nil, apperrors.BadRequest("email already registered", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Status:       model.UserStatusPending,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	if err := s.tokens.StoreVerificationToken(ctx, user.ID, token, time.Now().Add(verifyTokenTTL)); err != nil {
		return nil, fmt.Errorf("failed to store verification token: %w", err)
	}

	if err := s.email.SendVerification(ctx, user.Email, token); err != nil {
		// The account exists either way; the token can be re-requested.
		s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to send verification email")
	}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("user signed up")
	return user, nil
}

// Login verifies credentials and issues a token pair. Repeated failures
// lock the account for a cooldown window.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperrors.Unauthorized(fmt.Errorf("invalid credentials"))
	}

	if user.Status == model.UserStatusDisabled {
		return nil, apperrors.Unauthorized(fmt.Errorf("account disabled"))
	}
	if s.isLockedOut(user) {
		return nil, apperrors.Unauthorized(fmt.Errorf("account temporarily locked"))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.recordFailedAttempt(ctx, user)
		return nil, apperrors.Unauthorized(fmt.Errorf("invalid credentials"))
	}

	now := time.Now()
	user.LoginAttempts = 0
	user.LastLoginAt = &now
	if user.Status == model.UserStatusLocked {
		user.Status = model.UserStatusActive
	}
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to record login")
	}

	return s.issueTokens(user)
}

// Refresh exchanges a valid refresh token for a fresh pair.
func (s *Service) Refresh(ctx context.Context, req *model.RefreshRequest) (*model.TokenResponse, error) {
	claims, err := s.jwt.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}

	user, err := s.users.Get(ctx, claims.UserID)
	if err != nil {
		return nil, apperrors.Unauthorized(fmt.Errorf("user not found"))
	}
	if user.Status == model.UserStatusDisabled {
		return nil, apperrors.Unauthorized(fmt.Errorf("account disabled"))
	}

	return s.issueTokens(user)
}

// VerifyEmail consumes a verification token, activates the account, and
// sends the welcome email.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	userID, err := s.tokens.ValidateVerificationToken(ctx, token)
	if err != nil {
		return apperrors.BadRequest("invalid or expired verification token", err)
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	user.EmailVerified = true
	if user.Status == model.UserStatusPending {
		user.Status = model.UserStatusActive
	}
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if err := s.tokens.InvalidateVerificationToken(ctx, token); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate verification token")
	}
	if err := s.email.SendWelcome(ctx, user.Email, user.Name); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to send welcome email")
	}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("email verified")
	return nil
}

// RequestPasswordReset mails a reset link. It reports success for unknown
// addresses so the endpoint cannot be used to probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		s.logger.Debug().Str("email", emailAddr).Msg("password reset requested for unknown email")
		return nil
	}

	token, err := generateToken()
	if err != nil {
		return err
	}
	if err := s.tokens.StoreResetToken(ctx, user.ID, token, time.Now().Add(resetTokenTTL)); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	if err := s.email.SendPasswordReset(ctx, user.Email, token); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token and replaces the password. The
// attempt counter clears so a locked account recovers immediately.
func (s *Service) ResetPassword(ctx context.Context, req *model.ResetPasswordRequest) error {
	userID, err := s.tokens.ValidateResetToken(ctx, req.Token)
	if err != nil {
		return apperrors.BadRequest("invalid or expired reset token", err)
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.PasswordHash = string(hash)
	user.LoginAttempts = 0
	if user.Status == model.UserStatusLocked {
		user.Status = model.UserStatusActive
	}
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if err := s.tokens.InvalidateResetToken(ctx, req.Token); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate reset token")
	}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("password reset")
	return nil
}

// ValidateAccessToken is the middleware hook.
func (s *Service) ValidateAccessToken(token string) (*model.TokenClaims, error) {
	return s.jwt.ValidateToken(token)
}

func (s *Service) issueTokens(user *model.User) (*model.TokenResponse, error) {
	access, err := s.jwt.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, err := s.jwt.GenerateRefreshToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return &model.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func (s *Service) isLockedOut(user *model.User) bool {
	if user.LoginAttempts < maxLoginAttempts {
		return false
	}
	return time.Since(user.LastLoginAttempt) < lockoutDuration
}

func (s *Service) recordFailedAttempt(ctx context.Context, user *model.User) {
	user.LoginAttempts++
	user.LastLoginAttempt = time.Now()
	if user.LoginAttempts >= maxLoginAttempts {
		user.Status = model.UserStatusLocked
	}
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to record login attempt")
	}
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
