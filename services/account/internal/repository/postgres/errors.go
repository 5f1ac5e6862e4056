package postgres

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/MediaCatalog/pkg/database"
	apperrors "github.com/utafrali/MediaCatalog/pkg/errors"
)

// Unique constraint names from the migrations.
const (
	constraintUsersEmail    = "users_email_key"
	constraintUsersUsername = "users_username_key"
)

// classify maps a driver error to the application error model: missing
// rows become ErrNotFound, unique violations become conflicts, and
// connection-level failures become 503s. Everything else is wrapped.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	if constraint, ok := database.UniqueViolation(err); ok {
		switch constraint {
		case constraintUsersEmail:
			return apperrors.Conflict("Email already registered", http.StatusBadRequest)
		case constraintUsersUsername:
			return apperrors.Conflict("Username already registered", http.StatusBadRequest)
		default:
			return apperrors.Conflict("resource already exists", http.StatusConflict)
		}
	}
	if database.IsTransient(err) {
		return apperrors.Unavailable(fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
