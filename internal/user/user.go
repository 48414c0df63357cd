// Package user provides marketplace user accounts and moderation state.
package user

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email is already registered")
)

// Role identifies a user's privilege level.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User represents a marketplace account.
//
// Verification flags and moderation state feed the trust engine; any
// change to them must be followed by a trust score refresh.
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Role          Role       `json:"role"`
	EmailVerified bool       `json:"emailVerified"`
	PhoneVerified bool       `json:"phoneVerified"`
	IDVerified    bool       `json:"idVerified"`
	BannedAt      *time.Time `json:"bannedAt,omitempty"`
	BanReason     string     `json:"banReason,omitempty"`
	ShadowBanned  bool       `json:"shadowBanned"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// IsBanned reports whether the user is currently banned.
func (u *User) IsBanned() bool {
	return u.BannedAt != nil
}

// IsAdmin reports whether the user has admin privileges.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// AccountAge returns how long the account has existed as of now.
func (u *User) AccountAge(now time.Time) time.Duration {
	return now.Sub(u.CreatedAt)
}

// Store persists users.
type Store interface {
	// Create inserts the user. Fails with ErrEmailTaken when another
	// account already uses the email.
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
}
