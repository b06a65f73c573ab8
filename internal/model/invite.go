package model

import (
	"time"

	"github.com/google/uuid"
)

// Invite is a single-use code that credits the redeemer's balance.
type Invite struct {
	Base
	Code       string     `json:"code" db:"code"`
	IssuerID   *uuid.UUID `json:"issuer_id,omitempty" db:"issuer_id"`
	Reward     int64      `json:"reward" db:"reward"`
	RedeemedBy *uuid.UUID `json:"redeemed_by,omitempty" db:"redeemed_by"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty" db:"redeemed_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}

func (i *Invite) Redeemed() bool {
	return i.RedeemedAt != nil
}

type RedeemInviteRequest struct {
	Code string `json:"code" binding:"required"`
}
