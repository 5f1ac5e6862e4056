package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/MediaCatalog/pkg/errors"
)

type memStore struct {
	mu     sync.Mutex
	counts map[string]int64
	keys   []string
	err    error
}

func newMemStore() *memStore {
	return &memStore{counts: make(map[string]int64)}
}

func (m *memStore) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.keys = append(m.keys, key)
	m.counts[key]++
	return m.counts[key], nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLimiter_RejectsAfterLimit(t *testing.T) {
	store := newMemStore()
	l := New(store, map[Action]Rule{ActionLogin: {Limit: 3, Window: time.Minute}}, discard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, ActionLogin, "alice@example.com"))
	}
	err := l.Allow(ctx, ActionLogin, "alice@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrRateLimited))
	assert.Equal(t, 429, apperrors.HTTPStatus(err))
}

func TestLimiter_KeysPerActionAndNormalisedEmail(t *testing.T) {
	store := newMemStore()
	l := New(store, map[Action]Rule{
		ActionLogin:        {Limit: 1, Window: time.Minute},
		ActionResetRequest: {Limit: 1, Window: time.Minute},
	}, discard())
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, ActionLogin, "Alice@Example.com "))
	require.NoError(t, l.Allow(ctx, ActionResetRequest, "alice@example.com"))
	assert.Error(t, l.Allow(ctx, ActionLogin, "alice@example.com"))
	require.NoError(t, l.Allow(ctx, ActionLogin, "bob@example.com"))

	assert.Equal(t, "account:ratelimit:login:alice@example.com", store.keys[0])
}

func TestLimiter_UnconfiguredActionIsFree(t *testing.T) {
	store := newMemStore()
	l := New(store, map[Action]Rule{ActionLogin: {Limit: 0, Window: time.Minute}}, discard())

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Allow(context.Background(), ActionLogin, "alice@example.com"))
		require.NoError(t, l.Allow(context.Background(), ActionResetConfirm, "alice@example.com"))
	}
	assert.Empty(t, store.keys)
}

func TestLimiter_StoreFailureFailsOpen(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
	l := New(store, map[Action]Rule{ActionLogin: {Limit: 1, Window: time.Minute}}, discard())

	for i := 0; i < 3; i++ {
		assert.NoError(t, l.Allow(context.Background(), ActionLogin, "alice@example.com"))
	}
}
