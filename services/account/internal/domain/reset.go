package domain

import "time"

// PasswordReset is the single outstanding reset code for a user. CodeHash is
// the hex SHA-256 of the code; the code itself is never stored.
type PasswordReset struct {
	UserID    int64
	CodeHash  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the code can no longer be redeemed at now.
func (p *PasswordReset) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
