package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
)

type inviteRepository struct {
	BaseRepository
}

func NewInviteRepository(base BaseRepository) repository.InviteRepository {
	return &inviteRepository{base}
}

func (r *inviteRepository) Create(ctx context.Context, invite *model.Invite) error {
	query := `
		INSERT INTO invites (
			id, code, issuer_id, reward, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
	`

	invite.ID = uuid.New()
	invite.CreatedAt = time.Now()
	invite.UpdatedAt = invite.CreatedAt

	if _, err := r.db.ExecContext(ctx, query,
		invite.ID,
		invite.Code,
		invite.IssuerID,
		invite.Reward,
		invite.ExpiresAt,
		invite.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

func (r *inviteRepository) GetByCode(ctx context.Context, code string) (*model.Invite, error) {
	query := `SELECT * FROM invites WHERE code = $1`

	var invite model.Invite
	if err := r.db.GetContext(ctx, &invite, query, code); err != nil {
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return &invite, nil
}

// Redeem claims the code and credits the reward atomically. Unknown, expired
// and already-redeemed codes all come back as a plain false: the caller only
// learns the boolean outcome, never which check failed.
func (r *inviteRepository) Redeem(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	redeemed := false

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		claim := `
			UPDATE invites
			SET redeemed_by = $1, redeemed_at = NOW(), updated_at = NOW()
			WHERE code = $2
			AND redeemed_at IS NULL
			AND (expires_at IS NULL OR expires_at > NOW())
			RETURNING reward
		`

		var reward int64
		if err := tx.GetContext(ctx, &reward, claim, userID, code); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to claim invite: %w", err)
		}

		credit := `
			UPDATE users
			SET balance = balance + $1, updated_at = NOW()
			WHERE id = $2 AND deleted_at IS NULL
		`
		if _, err := tx.ExecContext(ctx, credit, reward, userID); err != nil {
			return fmt.Errorf("failed to credit reward: %w", err)
		}

		redeemed = true
		return nil
	})

	return redeemed, err
}
