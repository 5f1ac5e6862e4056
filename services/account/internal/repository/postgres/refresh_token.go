package postgres

import (
	"context"
	"time"

	"github.com/utafrali/MediaCatalog/pkg/database"
	apperrors "github.com/utafrali/MediaCatalog/pkg/errors"
	"github.com/utafrali/MediaCatalog/services/account/internal/domain"
)

// RefreshTokenRepository implements repository.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	db database.DBTX
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new refresh token digest.
func (r *RefreshTokenRepository) Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (err error) {
	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)`

	ctx, end := database.TraceQuery(ctx, "CreateRefreshToken", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, userID, tokenHash, expiresAt); err != nil {
		return classify("insert refresh token", err)
	}
	return nil
}

// GetByHash retrieves a refresh token record by its digest.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (t *domain.RefreshToken, err error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, created_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1`

	ctx, end := database.TraceQuery(ctx, "GetRefreshToken", query)
	defer func() { end(err) }()

	var rt domain.RefreshToken
	err = r.db.QueryRow(ctx, query, tokenHash).Scan(
		&rt.ID,
		&rt.UserID,
		&rt.TokenHash,
		&rt.ExpiresAt,
		&rt.CreatedAt,
		&rt.RevokedAt,
	)
	if err != nil {
		return nil, classify("scan refresh token", err)
	}
	return &rt, nil
}

// Revoke revokes a single live token. Losing a rotation race yields ErrNotFound.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) (err error) {
	query := `UPDATE refresh_tokens SET revoked_at = NOW() WHERE token_hash = $1 AND revoked_at IS NULL`

	ctx, end := database.TraceQuery(ctx, "RevokeRefreshToken", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, tokenHash)
	if err != nil {
		return classify("revoke refresh token", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// RevokeByUserID revokes all live refresh tokens for the user.
func (r *RefreshTokenRepository) RevokeByUserID(ctx context.Context, userID int64) (err error) {
	query := `UPDATE refresh_tokens SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`

	ctx, end := database.TraceQuery(ctx, "RevokeRefreshTokensByUser", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, userID); err != nil {
		return classify("revoke refresh tokens by user", err)
	}
	return nil
}
