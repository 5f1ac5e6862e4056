package repository

import (
	"context"
	"time"

	"github.com/utafrali/MediaCatalog/services/account/internal/domain"
)

// UserRepository is the user directory. Lookups never return soft-deleted users.
type UserRepository interface {
	// Create inserts a new user and fills in its ID and timestamps.
	Create(ctx context.Context, user *domain.User) error

	// GetByEmail retrieves a user by email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpdatePasswordHash replaces the stored digest, e.g. after a transparent rehash.
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error

	// TouchLastLogin records a successful login.
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// PasswordResetRepository stores at most one outstanding reset per user.
type PasswordResetRepository interface {
	// Upsert inserts the reset or replaces the existing one for the same user.
	Upsert(ctx context.Context, reset *domain.PasswordReset) error

	// GetByUserID returns the outstanding reset or ErrNotFound.
	GetByUserID(ctx context.Context, userID int64) (*domain.PasswordReset, error)

	// DeleteByCode removes the user's reset only if it still holds codeHash,
	// so a newer reset issued concurrently survives.
	DeleteByCode(ctx context.Context, userID int64, codeHash string) error

	// Complete atomically consumes the unexpired reset matching codeHash,
	// stores the new password digest and revokes the user's refresh tokens.
	// It returns ErrNotFound when no matching reset remains.
	Complete(ctx context.Context, userID int64, codeHash, passwordHash string, now time.Time) error

	// DeleteExpired removes resets that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RefreshTokenRepository stores refresh token digests.
type RefreshTokenRepository interface {
	// Create stores a new refresh token digest.
	Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error

	// GetByHash retrieves a refresh token record by its digest.
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// Revoke revokes one token. It returns ErrNotFound if it was already revoked.
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeByUserID revokes all live tokens of the user.
	RevokeByUserID(ctx context.Context, userID int64) error
}
