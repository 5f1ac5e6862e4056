package postgres

import (
	"context"
	"time"

	"github.com/utafrali/MediaCatalog/pkg/database"
	apperrors "github.com/utafrali/MediaCatalog/pkg/errors"
	"github.com/utafrali/MediaCatalog/services/account/internal/domain"
)

const userColumns = `user_id, email, username, first_name, last_name, password_hash,
		profile_picture, user_role, is_premium, last_login, created_at, updated_at, deleted_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user. Duplicate email or username yields a conflict.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	query := `
		INSERT INTO users (email, username, first_name, last_name, password_hash, profile_picture, user_role, is_premium)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING user_id, last_login, created_at, updated_at`

	ctx, end := database.TraceQuery(ctx, "CreateUser", query)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, query,
		u.Email,
		u.Username,
		u.FirstName,
		u.LastName,
		u.PasswordHash,
		u.ProfilePicture,
		u.RoleID,
		u.IsPremium,
	).Scan(&u.ID, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	return classify("insert user", err)
}

// GetByEmail retrieves a live user by email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (u *domain.User, err error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE email = $1 AND deleted_at IS NULL`

	ctx, end := database.TraceQuery(ctx, "GetUserByEmail", query)
	defer func() { end(err) }()

	return r.scanUser(ctx, query, email)
}

// UpdatePasswordHash replaces the stored password digest.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) (err error) {
	query := `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE user_id = $2 AND deleted_at IS NULL`

	ctx, end := database.TraceQuery(ctx, "UpdatePasswordHash", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, hash, id)
	if err != nil {
		return classify("update password hash", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// TouchLastLogin sets last_login for the user.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) (err error) {
	query := `UPDATE users SET last_login = $1 WHERE user_id = $2 AND deleted_at IS NULL`

	ctx, end := database.TraceQuery(ctx, "TouchLastLogin", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, at, id); err != nil {
		return classify("update last login", err)
	}
	return nil
}

func (r *UserRepository) scanUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var u domain.User

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.PasswordHash,
		&u.ProfilePicture,
		&u.RoleID,
		&u.IsPremium,
		&u.LastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.DeletedAt,
	)
	if err != nil {
		return nil, classify("scan user", err)
	}
	return &u, nil
}
