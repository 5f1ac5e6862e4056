// Package ratelimit throttles credential operations per account with a
// fixed-window counter kept in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/utafrali/MediaCatalog/pkg/errors"
)

// Action names a throttled operation.
type Action string

const (
	ActionLogin        Action = "login"
	ActionResetRequest Action = "reset_request"
	ActionResetConfirm Action = "reset_confirm"
)

// Rule allows Limit attempts per Window. A zero Limit disables the rule.
type Rule struct {
	Limit  int64
	Window time.Duration
}

var rejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "account_rate_limited_total",
		Help: "Total number of requests rejected by the account rate limiter",
	},
	[]string{"action"},
)

// Store counts hits in a window.
type Store interface {
	// Increment adds one hit to key and returns the count in the current window.
	// The window starts with the first hit.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisStore implements Store as a fixed window: the first hit creates the
// counter with the window as its TTL, later hits only increment it.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, window)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Limiter enforces per-action rules keyed by account email.
type Limiter struct {
	store  Store
	rules  map[Action]Rule
	prefix string
	logger *slog.Logger
}

// New creates a Limiter. Actions without a rule are never throttled.
func New(store Store, rules map[Action]Rule, logger *slog.Logger) *Limiter {
	return &Limiter{store: store, rules: rules, prefix: "account:ratelimit", logger: logger}
}

// Allow records an attempt of action by subject and returns a RATE_LIMITED
// error once the rule's limit is exceeded. A store failure lets the
// request through.
func (l *Limiter) Allow(ctx context.Context, action Action, subject string) error {
	rule, ok := l.rules[action]
	if !ok || rule.Limit <= 0 || rule.Window <= 0 {
		return nil
	}

	count, err := l.store.Increment(ctx, l.key(action, subject), rule.Window)
	if err != nil {
		l.logger.WarnContext(ctx, "rate limiter unavailable, allowing request",
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if count > rule.Limit {
		rejected.WithLabelValues(string(action)).Inc()
		l.logger.InfoContext(ctx, "rate limit exceeded",
			slog.String("action", string(action)),
			slog.String("email", subject),
		)
		return apperrors.TooManyRequests("too many attempts, try again later")
	}
	return nil
}

func (l *Limiter) key(action Action, subject string) string {
	return l.prefix + ":" + string(action) + ":" + strings.ToLower(strings.TrimSpace(subject))
}
