package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-api/internal/model"
	pkgauth "github.com/jwalitptl/notify-api/pkg/auth"
)

type fakeUserRepo struct {
	byID    map[uuid.UUID]*model.User
	byEmail map[string]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[uuid.UUID]*model.User),
		byEmail: make(map[string]*model.User),
	}
}

func (r *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	user.ID = uuid.New()
	r.byID[user.ID] = user
	r.byEmail[user.Email] = user
	return nil
}

func (r *fakeUserRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	user, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	user, ok := r.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	return user, nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *model.User) error {
	r.byID[user.ID] = user
	r.byEmail[user.Email] = user
	return nil
}

func (r *fakeUserRepo) CreditBalance(_ context.Context, id uuid.UUID, amount int64) error {
	r.byID[id].Balance += amount
	return nil
}

type fakeTokenRepo struct {
	verify map[string]uuid.UUID
	reset  map[string]uuid.UUID
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{
		verify: make(map[string]uuid.UUID),
		reset:  make(map[string]uuid.UUID),
	}
}

func (r *fakeTokenRepo) StoreVerificationToken(_ context.Context, userID uuid.UUID, token string, _ time.Time) error {
	r.verify[token] = userID
	return nil
}

func (r *fakeTokenRepo) ValidateVerificationToken(_ context.Context, token string) (uuid.UUID, error) {
	id, ok := r.verify[token]
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid token")
	}
	return id, nil
}

func (r *fakeTokenRepo) InvalidateVerificationToken(_ context.Context, token string) error {
	delete(r.verify, token)
	return nil
}

func (r *fakeTokenRepo) StoreResetToken(_ context.Context, userID uuid.UUID, token string, _ time.Time) error {
	r.reset[token] = userID
	return nil
}

func (r *fakeTokenRepo) ValidateResetToken(_ context.Context, token string) (uuid.UUID, error) {
	id, ok := r.reset[token]
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid token")
	}
	return id, nil
}

func (r *fakeTokenRepo) InvalidateResetToken(_ context.Context, token string) error {
	delete(r.reset, token)
	return nil
}

type fakeEmailService struct {
	verifications []string
	resets        []string
	welcomes      []string
}

func (s *fakeEmailService) SendVerification(_ context.Context, email, _ string) error {
	s.verifications = append(s.verifications, email)
	return nil
}

func (s *fakeEmailService) SendPasswordReset(_ context.Context, email, _ string) error {
	s.resets = append(s.resets, email)
	return nil
}

func (s *fakeEmailService) SendWelcome(_ context.Context, email, _ string) error {
	s.welcomes = append(s.welcomes, email)
	return nil
}

func newTestService(users *fakeUserRepo, tokens *fakeTokenRepo, mail *fakeEmailService) *Service {
	jwtSvc := pkgauth.NewJWTService(pkgauth.JWTConfig{
		Secret:        "test-secret",
		RefreshSecret: "test-refresh-secret",
		Expiry:        time.Hour,
		RefreshExpiry: 24 * time.Hour,
	})
	return NewService(users, tokens, jwtSvc, mail, zerolog.Nop())
}

func signup(t *testing.T, svc *Service) *model.User {
	t.Helper()
	user, err := svc.Signup(context.Background(), &model.SignupRequest{
		Email:    "user@example.com",
		Password: "password123",
		Name:     "Test User",
	})
	require.NoError(t, err)
	return user
}

func TestSignupCreatesPendingUser(t *testing.T) {
	users := newFakeUserRepo()
	mail := &fakeEmailService{}
	svc := newTestService(users, newFakeTokenRepo(), mail)

	user := signup(t, svc)

	assert.Equal(t, model.UserStatusPending, user.Status)
	assert.False(t, user.EmailVerified)
	assert.NotEqual(t, "password123", user.PasswordHash)
	assert.Equal(t, []string{"user@example.com"}, mail.verifications)
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	svc := newTestService(newFakeUserRepo(), newFakeTokenRepo(), &fakeEmailService{})
	signup(t, svc)

	_, err := svc.Signup(context.Background(), &model.SignupRequest{
		Email:    "user@example.com",
		Password: "password456",
		Name:     "Other",
	})
	assert.Error(t, err)
}

func TestLoginIssuesTokens(t *testing.T) {
	svc := newTestService(newFakeUserRepo(), newFakeTokenRepo(), &fakeEmailService{})
	signup(t, svc)

	tokens, err := svc.Login(context.Background(), &model.LoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	claims, err := svc.ValidateAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", claims.Email)
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestService(users, newFakeTokenRepo(), &fakeEmailService{})
	user := signup(t, svc)

	for i := 0; i < maxLoginAttempts; i++ {
		_, err := svc.Login(context.Background(), &model.LoginRequest{
			Email:    "user@example.com",
			Password: "wrong",
		})
		assert.Error(t, err)
	}
	assert.Equal(t, model.UserStatusLocked, users.byID[user.ID].Status)

	// Correct password is refused while locked.
	_, err := svc.Login(context.Background(), &model.LoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	})
	assert.Error(t, err)

	// The window expiring unlocks it.
	users.byID[user.ID].LastLoginAttempt = time.Now().Add(-lockoutDuration - time.Minute)
	_, err = svc.Login(context.Background(), &model.LoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	})
	assert.NoError(t, err)
	assert.Equal(t, model.UserStatusActive, users.byID[user.ID].Status)
}

func TestRefreshRotatesTokens(t *testing.T) {
	svc := newTestService(newFakeUserRepo(), newFakeTokenRepo(), &fakeEmailService{})
	signup(t, svc)

	tokens, err := svc.Login(context.Background(), &model.LoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), &model.RefreshRequest{
		RefreshToken: tokens.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = svc.Refresh(context.Background(), &model.RefreshRequest{
		RefreshToken: tokens.AccessToken,
	})
	assert.Error(t, err)
}

func TestVerifyEmailActivatesAccount(t *testing.T) {
	users := newFakeUserRepo()
	tokens := newFakeTokenRepo()
	mail := &fakeEmailService{}
	svc := newTestService(users, tokens, mail)
	user := signup(t, svc)

	var token string
	for tok := range tokens.verify {
		token = tok
	}
	require.NotEmpty(t, token)

	require.NoError(t, svc.VerifyEmail(context.Background(), token))

	assert.True(t, users.byID[user.ID].EmailVerified)
	assert.Equal(t, model.UserStatusActive, users.byID[user.ID].Status)
	assert.Equal(t, []string{"user@example.com"}, mail.welcomes)

	// Single use.
	assert.Error(t, svc.VerifyEmail(context.Background(), token))
}

func TestPasswordResetFlow(t *testing.T) {
	users := newFakeUserRepo()
	tokens := newFakeTokenRepo()
	mail := &fakeEmailService{}
	svc := newTestService(users, tokens, mail)
	signup(t, svc)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "user@example.com"))
	require.Len(t, mail.resets, 1)

	var token string
	for tok := range tokens.reset {
		token = tok
	}
	require.NotEmpty(t, token)

	require.NoError(t, svc.ResetPassword(context.Background(), &model.ResetPasswordRequest{
		Token:       token,
		NewPassword: "newpassword456",
	}))

	_, err := svc.Login(context.Background(), &model.LoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	})
	assert.Error(t, err)

	_, err = svc.Login(context.Background(), &model.LoginRequest{
		Email:    "user@example.com",
		Password: "newpassword456",
	})
	assert.NoError(t, err)
}

func TestPasswordResetHidesUnknownEmail(t *testing.T) {
	mail := &fakeEmailService{}
	svc := newTestService(newFakeUserRepo(), newFakeTokenRepo(), mail)

	assert.NoError(t, svc.RequestPasswordReset(context.Background(), "ghost@example.com"))
	assert.Empty(t, mail.resets)
}
