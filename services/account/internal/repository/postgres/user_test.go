package postgres

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/MediaCatalog/pkg/database"
	apperrors "github.com/utafrali/MediaCatalog/pkg/errors"
	"github.com/utafrali/MediaCatalog/services/account/internal/domain"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func sampleUser() *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:           42,
		Email:        "alice@example.com",
		Username:     "alice",
		FirstName:    "Alice",
		LastName:     "Liddell",
		PasswordHash: "$2a$04$abcdefghijklmnopqrstuv",
		RoleID:       domain.DefaultRoleID,
		LastLogin:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func userRow(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"user_id", "email", "username", "first_name", "last_name", "password_hash",
		"profile_picture", "user_role", "is_premium", "last_login", "created_at", "updated_at", "deleted_at",
	}).AddRow(
		u.ID, u.Email, u.Username, u.FirstName, u.LastName, u.PasswordHash,
		u.ProfilePicture, u.RoleID, u.IsPremium, u.LastLogin, u.CreatedAt, u.UpdatedAt, u.DeletedAt,
	)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestUserRepository_Create_Success(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	u := sampleUser()
	u.ID = 0
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(u.Email, u.Username, u.FirstName, u.LastName, u.PasswordHash, u.ProfilePicture, u.RoleID, u.IsPremium).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "last_login", "created_at", "updated_at"}).
			AddRow(int64(7), now, now, now))

	require.NoError(t, repo.Create(context.Background(), u))
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, now, u.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_Duplicates(t *testing.T) {
	tests := []struct {
		constraint string
		message    string
	}{
		{constraintUsersEmail, "Email already registered"},
		{constraintUsersUsername, "Username already registered"},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			mock := newMock(t)
			repo := NewUserRepository(mock)

			mock.ExpectQuery("INSERT INTO users").
				WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: tt.constraint})

			err := repo.Create(context.Background(), sampleUser())
			require.Error(t, err)

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.message, appErr.Message)
			assert.Equal(t, http.StatusBadRequest, appErr.Status)
			assert.ErrorIs(t, err, apperrors.ErrConflict)
		})
	}
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func TestUserRepository_GetByEmail_Found(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	u := sampleUser()

	mock.ExpectQuery("(?s)SELECT .+ FROM users\\s+WHERE email = .+ AND deleted_at IS NULL").
		WithArgs(u.Email).
		WillReturnRows(userRow(u))

	got, err := repo.GetByEmail(context.Background(), u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Username, got.Username)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmail_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery("(?s)SELECT .+ FROM users").
		WithArgs("ghost@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRepository_GetByEmail_ConnectionLossIsUnavailable(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery("(?s)SELECT .+ FROM users").
		WithArgs("alice@example.com").
		WillReturnError(&pgconn.PgError{Code: pgerrcode.AdminShutdown})

	_, err := repo.GetByEmail(context.Background(), "alice@example.com")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestUserRepository_GetByEmail_OtherErrorWrapped(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery("(?s)SELECT .+ FROM users").
		WithArgs("alice@example.com").
		WillReturnError(errors.New("syntax error at or near"))

	_, err := repo.GetByEmail(context.Background(), "alice@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.Contains(t, err.Error(), "scan user")
}

// ---------------------------------------------------------------------------
// Updates
// ---------------------------------------------------------------------------

func TestUserRepository_UpdatePasswordHash(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("new-hash", int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("new-hash", int64(43)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.UpdatePasswordHash(context.Background(), 42, "new-hash"))
	assert.ErrorIs(t, repo.UpdatePasswordHash(context.Background(), 43, "new-hash"), apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_TouchLastLogin(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE users SET last_login").
		WithArgs(at, int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.TouchLastLogin(context.Background(), 42, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
