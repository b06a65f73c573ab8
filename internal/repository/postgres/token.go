package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/notify-api/internal/repository"
)

type tokenRepository struct {
	BaseRepository
}

func NewTokenRepository(base BaseRepository) repository.TokenRepository {
	return &tokenRepository{base}
}

func (r *tokenRepository) StoreVerificationToken(ctx context.Context, userID uuid.UUID, token string, expiry time.Time) error {
	return r.storeToken(ctx, userID, token, "verify", expiry)
}

func (r *tokenRepository) StoreResetToken(ctx context.Context, userID uuid.UUID, token string, expiry time.Time) error {
	return r.storeToken(ctx, userID, token, "reset", expiry)
}

func (r *tokenRepository) storeToken(ctx context.Context, userID uuid.UUID, token, kind string, expiry time.Time) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO user_tokens (user_id, token, type, expires_at, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (user_id, type) DO UPDATE
			SET token = $2, expires_at = $4, used_at = NULL, updated_at = NOW()
		`
		_, err := tx.ExecContext(ctx, query, userID, token, kind, expiry)
		return err
	})
}

func (r *tokenRepository) ValidateVerificationToken(ctx context.Context, token string) (uuid.UUID, error) {
	return r.validateToken(ctx, token, "verify")
}

func (r *tokenRepository) ValidateResetToken(ctx context.Context, token string) (uuid.UUID, error) {
	return r.validateToken(ctx, token, "reset")
}

func (r *tokenRepository) validateToken(ctx context.Context, token, kind string) (uuid.UUID, error) {
	query := `
		SELECT user_id
		FROM user_tokens
		WHERE token = $1
		AND type = $2
		AND expires_at > NOW()
		AND used_at IS NULL
	`

	var userID uuid.UUID
	if err := r.db.GetContext(ctx, &userID, query, token, kind); err != nil {
		return uuid.Nil, fmt.Errorf("invalid or expired token")
	}
	return userID, nil
}

func (r *tokenRepository) InvalidateVerificationToken(ctx context.Context, token string) error {
	return r.invalidateToken(ctx, token, "verify")
}

func (r *tokenRepository) InvalidateResetToken(ctx context.Context, token string) error {
	return r.invalidateToken(ctx, token, "reset")
}

func (r *tokenRepository) invalidateToken(ctx context.Context, token, kind string) error {
	query := `
		UPDATE user_tokens
		SET used_at = NOW()
		WHERE token = $1 AND type = $2
	`

	if _, err := r.db.ExecContext(ctx, query, token, kind); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}
