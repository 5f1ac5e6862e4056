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
	"github.com/utafrali/MediaCatalog/services/account/internal/notifier"
	"github.com/utafrali/MediaCatalog/services/account/internal/ratelimit"
	"github.com/utafrali/MediaCatalog/services/account/internal/repository"
)

// DefaultResetTTL is how long a reset code stays redeemable.
const DefaultResetTTL = 10 * time.Minute

// RecoveryConfig tunes the reset workflow.
type RecoveryConfig struct {
	// CodeTTL bounds how long an issued code can be redeemed.
	CodeTTL time.Duration
	// ConcealUnknownEmail makes RequestReset succeed silently for unknown
	// addresses instead of reporting EMAIL_NOT_REGISTERED.
	ConcealUnknownEmail bool
}

// RecoveryService runs the OTP password reset workflow. A user is either
// idle or holds exactly one outstanding code; a new request replaces it
// and a successful confirmation consumes it.
type RecoveryService struct {
	users    repository.UserRepository
	resets   repository.PasswordResetRepository
	hasher   *auth.PasswordHasher
	codes    CodeGenerator
	notifier notifier.Notifier
	limiter  RateLimiter
	events   EventPublisher
	cfg      RecoveryConfig
	logger   *slog.Logger
	now      func() time.Time
}

// RecoveryOption customises a RecoveryService.
type RecoveryOption func(*RecoveryService)

// WithRecoveryRateLimiter throttles reset requests and confirmations per email.
func WithRecoveryRateLimiter(l RateLimiter) RecoveryOption {
	return func(s *RecoveryService) { s.limiter = l }
}

// WithRecoveryEvents publishes password_changed events.
func WithRecoveryEvents(p EventPublisher) RecoveryOption {
	return func(s *RecoveryService) { s.events = p }
}

// WithRecoveryClock overrides the clock used for code expiry.
func WithRecoveryClock(now func() time.Time) RecoveryOption {
	return func(s *RecoveryService) { s.now = now }
}

// NewRecoveryService creates a new recovery service.
func NewRecoveryService(
	users repository.UserRepository,
	resets repository.PasswordResetRepository,
	hasher *auth.PasswordHasher,
	codes CodeGenerator,
	n notifier.Notifier,
	cfg RecoveryConfig,
	logger *slog.Logger,
	opts ...RecoveryOption,
) *RecoveryService {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = DefaultResetTTL
	}
	s := &RecoveryService{
		users:    users,
		resets:   resets,
		hasher:   hasher,
		codes:    codes,
		notifier: n,
		limiter:  noLimit{},
		events:   noEvents{},
		cfg:      cfg,
		logger:   logger,
		now:      utcNow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConfirmResetInput holds the parameters for redeeming a reset code.
type ConfirmResetInput struct {
	Email           string
	OTP             string
	NewPassword     string
	ConfirmPassword string
}

// RequestReset issues a fresh code for email, replacing any outstanding
// one, and hands it to the notifier.
func (s *RecoveryService) RequestReset(ctx context.Context, email string) (err error) {
	ctx, span := tracer.Start(ctx, "RecoveryService.RequestReset")
	defer func() { tracing.End(span, err) }()
	defer func() { countReset("requested", err) }()

	if err := s.limiter.Allow(ctx, ratelimit.ActionResetRequest, email); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("lookup user: %w", err)
		}
		if s.cfg.ConcealUnknownEmail {
			s.logger.InfoContext(ctx, "password reset requested for unknown email",
				slog.String("email", email),
			)
			return nil
		}
		return apperrors.EmailNotRegistered()
	}

	code, err := s.codes.Generate()
	if err != nil {
		return apperrors.Internal(err)
	}

	now := s.now()
	reset := &domain.PasswordReset{
		UserID:    user.ID,
		CodeHash:  auth.Digest(code),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.CodeTTL),
	}
	if err := s.resets.Upsert(ctx, reset); err != nil {
		return fmt.Errorf("store reset: %w", err)
	}

	msg := notifier.ResetCode{UserID: user.ID, Email: user.Email, Code: code, ExpiresAt: reset.ExpiresAt}
	if err := s.notifier.SendResetCode(ctx, msg); err != nil {
		if derr := s.resets.DeleteByCode(ctx, user.ID, reset.CodeHash); derr != nil {
			s.logger.WarnContext(ctx, "failed to discard undelivered reset",
				slog.Int64("user_id", user.ID),
				slog.String("error", derr.Error()),
			)
		}
		return apperrors.Unavailable(fmt.Errorf("deliver reset code: %w", err))
	}

	s.logger.InfoContext(ctx, "password reset requested",
		slog.Int64("user_id", user.ID),
		slog.Time("expires_at", reset.ExpiresAt),
	)
	return nil
}

// ConfirmReset redeems a code and replaces the password. Checks run in a
// fixed order: code validity, confirmation match, then reuse of the current
// password. Nothing is written unless all of them pass.
func (s *RecoveryService) ConfirmReset(ctx context.Context, input ConfirmResetInput) (err error) {
	ctx, span := tracer.Start(ctx, "RecoveryService.ConfirmReset")
	defer func() { tracing.End(span, err) }()
	defer func() { countReset("confirmed", err) }()

	if err := s.limiter.Allow(ctx, ratelimit.ActionResetConfirm, input.Email); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidOTP()
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	reset, err := s.resets.GetByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidOTP()
		}
		return fmt.Errorf("lookup reset: %w", err)
	}
	now := s.now()
	if reset.Expired(now) || !auth.MatchDigest(input.OTP, reset.CodeHash) {
		return apperrors.InvalidOTP()
	}

	if input.NewPassword != input.ConfirmPassword {
		return apperrors.PasswordMismatch()
	}
	if s.hasher.Verify(input.NewPassword, user.PasswordHash) {
		return apperrors.PasswordReuse()
	}

	hash, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		if errors.Is(err, auth.ErrEmptyPassword) {
			return apperrors.InvalidInput("new password is required")
		}
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return apperrors.InvalidInput("new password must not exceed 72 bytes")
		}
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.resets.Complete(ctx, user.ID, reset.CodeHash, hash, now); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidOTP()
		}
		return fmt.Errorf("complete reset: %w", err)
	}

	if err := s.events.PublishPasswordChanged(ctx, user.ID, user.Email); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish password_changed event",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset completed", slog.Int64("user_id", user.ID))
	return nil
}

// SweepExpired deletes codes that can no longer be redeemed.
func (s *RecoveryService) SweepExpired(ctx context.Context) (n int64, err error) {
	ctx, span := tracer.Start(ctx, "RecoveryService.SweepExpired")
	defer func() { tracing.End(span, err) }()

	n, err = s.resets.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired resets: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired password resets removed", slog.Int64("count", n))
	}
	return n, nil
}

// RunSweeper calls SweepExpired every interval until ctx is done.
func (s *RecoveryService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "reset sweeper failed", slog.String("error", err.Error()))
			}
		}
	}
}

func countReset(stage string, err error) {
	outcome := "success"
	var appErr *apperrors.AppError
	switch {
	case err == nil:
	case errors.As(err, &appErr):
		outcome = appErr.Code
	default:
		outcome = "error"
	}
	passwordResetsTotal.WithLabelValues(stage, outcome).Inc()
}
