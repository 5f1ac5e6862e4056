// Package service implements the account use cases: registration, login,
// token refresh, profile resolution and password recovery.
package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/MediaCatalog/pkg/tracing"
	"github.com/utafrali/MediaCatalog/services/account/internal/domain"
	"github.com/utafrali/MediaCatalog/services/account/internal/ratelimit"
)

var tracer = tracing.Tracer("github.com/utafrali/MediaCatalog/services/account/internal/service")

var (
	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_logins_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"},
	)

	passwordResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_password_resets_total",
			Help: "Password reset steps by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)
)

// RateLimiter throttles attempts per account. *ratelimit.Limiter satisfies it.
type RateLimiter interface {
	Allow(ctx context.Context, action ratelimit.Action, subject string) error
}

// EventPublisher publishes account domain events. *event.Producer satisfies it.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishPasswordChanged(ctx context.Context, userID int64, email string) error
}

// CodeGenerator issues reset codes. *auth.OTPGenerator satisfies it.
type CodeGenerator interface {
	Generate() (string, error)
}

type noLimit struct{}

func (noLimit) Allow(context.Context, ratelimit.Action, string) error { return nil }

type noEvents struct{}

func (noEvents) PublishUserRegistered(context.Context, *domain.User) error   { return nil }
func (noEvents) PublishPasswordChanged(context.Context, int64, string) error { return nil }

func utcNow() time.Time { return time.Now().UTC() }
