package domain

import (
	"time"
)

// DefaultRoleID is assigned to accounts created without an explicit role.
const DefaultRoleID = 1

// User is a registered account. Soft-deleted users are invisible to lookups.
type User struct {
	ID             int64      `json:"user_id"`
	Email          string     `json:"email"`
	Username       string     `json:"username"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	PasswordHash   string     `json:"-"`
	ProfilePicture *string    `json:"profile_picture"`
	RoleID         int        `json:"user_role"`
	IsPremium      bool       `json:"is_premium"`
	LastLogin      time.Time  `json:"last_login"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Profile is the public view of a User returned to its owner.
type Profile struct {
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	ProfilePicture *string `json:"profile_picture"`
	IsPremium      bool    `json:"is_premium"`
}

// Profile returns the public view of u.
func (u *User) Profile() Profile {
	return Profile{
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Username:       u.Username,
		Email:          u.Email,
		ProfilePicture: u.ProfilePicture,
		IsPremium:      u.IsPremium,
	}
}

// RefreshToken is a stored refresh token. Only the SHA-256 of the token is kept.
type RefreshToken struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"user_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Usable reports whether the token is neither revoked nor expired at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// TokenPair holds an access and refresh token pair.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// TokenTypeBearer is the OAuth2 token_type returned with every access token.
const TokenTypeBearer = "bearer"
