package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/utafrali/MediaCatalog/pkg/errors"
	"github.com/utafrali/MediaCatalog/pkg/tracing"
	"github.com/utafrali/MediaCatalog/services/account/internal/auth"
	"github.com/utafrali/MediaCatalog/services/account/internal/domain"
	"github.com/utafrali/MediaCatalog/services/account/internal/ratelimit"
	"github.com/utafrali/MediaCatalog/services/account/internal/repository"
)

// AuthService handles account creation, login and bearer token resolution.
type AuthService struct {
	users         repository.UserRepository
	refreshTokens repository.RefreshTokenRepository
	hasher        *auth.PasswordHasher
	tokens        *auth.TokenCodec
	limiter       RateLimiter
	events        EventPublisher
	logger        *slog.Logger
	now           func() time.Time
}

// AuthOption customises an AuthService.
type AuthOption func(*AuthService)

// WithAuthRateLimiter throttles logins per email.
func WithAuthRateLimiter(l RateLimiter) AuthOption {
	return func(s *AuthService) { s.limiter = l }
}

// WithAuthEvents publishes registration events.
func WithAuthEvents(p EventPublisher) AuthOption {
	return func(s *AuthService) { s.events = p }
}

// WithAuthClock overrides the clock used for last_login and refresh expiry checks.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	users repository.UserRepository,
	refreshTokens repository.RefreshTokenRepository,
	hasher *auth.PasswordHasher,
	tokens *auth.TokenCodec,
	logger *slog.Logger,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		users:         users,
		refreshTokens: refreshTokens,
		hasher:        hasher,
		tokens:        tokens,
		limiter:       noLimit{},
		events:        noEvents{},
		logger:        logger,
		now:           utcNow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput holds the parameters for creating an account.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string
	Password string
}

// Register creates an account. A duplicate email or username surfaces as a
// CONFLICT error from the repository.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (_ *domain.User, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Register")
	defer func() { tracing.End(span, err) }()

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmptyPassword) {
			return nil, apperrors.InvalidInput("password is required")
		}
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperrors.InvalidInput("password must not exceed 72 bytes")
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        input.Email,
		Username:     input.Username,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: hash,
		RoleID:       domain.DefaultRoleID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.events.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user_registered event",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.Int64("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return user, nil
}

// Login verifies the credentials and returns a fresh token pair. Unknown
// emails and wrong passwords fail identically.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (_ *domain.TokenPair, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer func() { tracing.End(span, err) }()

	if err := s.limiter.Allow(ctx, ratelimit.ActionLogin, input.Email); err != nil {
		loginsTotal.WithLabelValues("rate_limited").Inc()
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.hasher.VerifyDummy(input.Password)
			loginsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, apperrors.InvalidCredentials()
		}
		loginsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		loginsTotal.WithLabelValues("invalid_credentials").Inc()
		s.logger.InfoContext(ctx, "login rejected",
			slog.Int64("user_id", user.ID),
		)
		return nil, apperrors.InvalidCredentials()
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, input.Password)
	}
	if err := s.users.TouchLastLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		loginsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	loginsTotal.WithLabelValues("success").Inc()
	s.logger.InfoContext(ctx, "user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return pair, nil
}

// rehash upgrades a legacy or weaker digest. Failure only costs the upgrade.
func (s *AuthService) rehash(ctx context.Context, user *domain.User, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	user.PasswordHash = hash
	s.logger.InfoContext(ctx, "password digest upgraded", slog.Int64("user_id", user.ID))
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. A token can be redeemed once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (_ *domain.TokenPair, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Refresh")
	defer func() { tracing.End(span, err) }()

	email, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired refresh token")
	}

	hash := auth.Digest(refreshToken)
	stored, err := s.refreshTokens.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid or expired refresh token")
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if stored.RevokedAt != nil {
		// A rotated token came back: treat the whole family as stolen.
		if err := s.refreshTokens.RevokeByUserID(ctx, stored.UserID); err != nil {
			return nil, fmt.Errorf("revoke refresh tokens: %w", err)
		}
		s.logger.WarnContext(ctx, "revoked refresh token reused, all sessions revoked",
			slog.Int64("user_id", stored.UserID),
		)
		return nil, apperrors.Unauthorized("invalid or expired refresh token")
	}
	if !stored.Usable(s.now()) {
		return nil, apperrors.Unauthorized("invalid or expired refresh token")
	}

	if err := s.refreshTokens.Revoke(ctx, hash); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid or expired refresh token")
		}
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid or expired refresh token")
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user.ID != stored.UserID {
		s.logger.WarnContext(ctx, "refresh token subject does not own the token",
			slog.Int64("user_id", user.ID),
			slog.Int64("token_user_id", stored.UserID),
		)
		return nil, apperrors.Unauthorized("invalid or expired refresh token")
	}

	return s.issueTokenPair(ctx, user)
}

// Authenticate verifies an access token and returns its subject. It has the
// shape of middleware.TokenValidator.
func (s *AuthService) Authenticate(token string) (string, error) {
	subject, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		return "", apperrors.Unauthorized("could not validate credentials")
	}
	return subject, nil
}

// ResolveFromToken returns the account an access token was issued to.
// Invalid tokens are UNAUTHORIZED; a subject that no longer exists is NOT_FOUND.
func (s *AuthService) ResolveFromToken(ctx context.Context, token string) (_ *domain.User, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.ResolveFromToken")
	defer func() { tracing.End(span, err) }()

	email, err := s.Authenticate(token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", email)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func (s *AuthService) issueTokenPair(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	access, accessExp, err := s.tokens.IssueAccessToken(user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := s.tokens.IssueRefreshToken(user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.refreshTokens.Create(ctx, user.ID, auth.Digest(refresh), refreshExp); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:      access,
		TokenType:        domain.TokenTypeBearer,
		ExpiresIn:        int64(s.tokens.AccessTTL().Seconds()),
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}
