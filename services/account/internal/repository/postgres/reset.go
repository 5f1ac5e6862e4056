package postgres

import (
	"context"
	"time"

	"github.com/utafrali/MediaCatalog/pkg/database"
	apperrors "github.com/utafrali/MediaCatalog/pkg/errors"
	"github.com/utafrali/MediaCatalog/services/account/internal/domain"
)

// PasswordResetRepository implements repository.PasswordResetRepository using PostgreSQL.
type PasswordResetRepository struct {
	db database.DBTX
}

// NewPasswordResetRepository creates a new PostgreSQL-backed reset repository.
func NewPasswordResetRepository(db database.DBTX) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Upsert stores the reset, replacing any earlier one for the same user in
// a single statement. Concurrent requests serialize on the primary key.
func (r *PasswordResetRepository) Upsert(ctx context.Context, p *domain.PasswordReset) (err error) {
	query := `
		INSERT INTO password_resets (user_id, code_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
		    issued_at = EXCLUDED.issued_at,
		    expires_at = EXCLUDED.expires_at`

	ctx, end := database.TraceQuery(ctx, "UpsertPasswordReset", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, p.UserID, p.CodeHash, p.IssuedAt, p.ExpiresAt); err != nil {
		return classify("upsert password reset", err)
	}
	return nil
}

// GetByUserID returns the outstanding reset for the user.
func (r *PasswordResetRepository) GetByUserID(ctx context.Context, userID int64) (p *domain.PasswordReset, err error) {
	query := `
		SELECT user_id, code_hash, issued_at, expires_at
		FROM password_resets
		WHERE user_id = $1`

	ctx, end := database.TraceQuery(ctx, "GetPasswordReset", query)
	defer func() { end(err) }()

	var reset domain.PasswordReset
	err = r.db.QueryRow(ctx, query, userID).Scan(
		&reset.UserID,
		&reset.CodeHash,
		&reset.IssuedAt,
		&reset.ExpiresAt,
	)
	if err != nil {
		return nil, classify("scan password reset", err)
	}
	return &reset, nil
}

// DeleteByCode removes the reset holding codeHash. A reset that was replaced
// in the meantime is left alone and no error is returned.
func (r *PasswordResetRepository) DeleteByCode(ctx context.Context, userID int64, codeHash string) (err error) {
	query := `DELETE FROM password_resets WHERE user_id = $1 AND code_hash = $2`

	ctx, end := database.TraceQuery(ctx, "DeletePasswordReset", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, userID, codeHash); err != nil {
		return classify("delete password reset", err)
	}
	return nil
}

// Complete consumes the reset and changes the password in one transaction.
// The delete is conditioned on the code digest and expiry, so a code that
// was replaced or consumed concurrently yields ErrNotFound and nothing changes.
func (r *PasswordResetRepository) Complete(ctx context.Context, userID int64, codeHash, passwordHash string, now time.Time) (err error) {
	ctx, end := database.TraceQuery(ctx, "CompletePasswordReset", "BEGIN; DELETE password_resets; UPDATE users; UPDATE refresh_tokens; COMMIT")
	defer func() { end(err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx,
		`DELETE FROM password_resets WHERE user_id = $1 AND code_hash = $2 AND expires_at > $3`,
		userID, codeHash, now,
	)
	if err != nil {
		return classify("consume password reset", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	ct, err = tx.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE user_id = $3 AND deleted_at IS NULL`,
		passwordHash, now, userID,
	)
	if err != nil {
		return classify("update password", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if _, err = tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`,
		now, userID,
	); err != nil {
		return classify("revoke refresh tokens", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

// DeleteExpired removes every reset that expired at or before now.
func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, now time.Time) (n int64, err error) {
	query := `DELETE FROM password_resets WHERE expires_at <= $1`

	ctx, end := database.TraceQuery(ctx, "DeleteExpiredPasswordResets", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, classify("delete expired password resets", err)
	}
	return ct.RowsAffected(), nil
}

