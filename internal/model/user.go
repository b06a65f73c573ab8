package model

import "time"

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusPending  UserStatus = "pending"
	UserStatusLocked   UserStatus = "locked"
	UserStatusDisabled UserStatus = "disabled"
)

type User struct {
	Base
	Email            string     `json:"email" db:"email"`
	PasswordHash     string     `json:"-" db:"password_hash"`
	Name             string     `json:"name" db:"name"`
	AvatarURL        string     `json:"avatar_url,omitempty" db:"avatar_url"`
	Balance          int64      `json:"balance" db:"balance"`
	Status           UserStatus `json:"status" db:"status"`
	EmailVerified    bool       `json:"email_verified" db:"email_verified"`
	LoginAttempts    int        `json:"-" db:"login_attempts"`
	LastLoginAttempt time.Time  `json:"-" db:"last_login_attempt"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

type UpdateProfileRequest struct {
	Name      *string `json:"name" binding:"omitempty,min=1,max=120"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,uri"`
}
