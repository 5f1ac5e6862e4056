// Package notifier delivers password reset codes to account holders.
package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/utafrali/MediaCatalog/pkg/breaker"
)

// ResetCode is one reset code addressed to one account.
type ResetCode struct {
	UserID    int64
	Email     string
	Code      string
	ExpiresAt time.Time
}

// LogValue keeps the code out of structured logs.
func (r ResetCode) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("user_id", r.UserID),
		slog.String("email", r.Email),
		slog.Time("expires_at", r.ExpiresAt),
	)
}

// Notifier delivers a reset code out of band.
type Notifier interface {
	SendResetCode(ctx context.Context, msg ResetCode) error
}

// Guarded runs a Notifier behind a circuit breaker so a failing relay
// fails fast instead of tying up request goroutines.
type Guarded struct {
	next    Notifier
	breaker *breaker.Breaker
}

// NewGuarded wraps next with b.
func NewGuarded(next Notifier, b *breaker.Breaker) *Guarded {
	return &Guarded{next: next, breaker: b}
}

// SendResetCode implements Notifier.
func (g *Guarded) SendResetCode(ctx context.Context, msg ResetCode) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.next.SendResetCode(ctx, msg)
	})
}
