package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/utafrali/MediaCatalog/pkg/errors"
	"github.com/utafrali/MediaCatalog/services/account/internal/auth"
	"github.com/utafrali/MediaCatalog/services/account/internal/domain"
	"github.com/utafrali/MediaCatalog/services/account/internal/notifier"
	"github.com/utafrali/MediaCatalog/services/account/internal/ratelimit"
)

const testSecret = "test-secret-that-is-at-least-32-bytes"

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

func (m *mockUserRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// --- Mock Password Reset Repository ---

type mockResetRepository struct {
	mock.Mock
}

func (m *mockResetRepository) Upsert(ctx context.Context, reset *domain.PasswordReset) error {
	args := m.Called(ctx, reset)
	return args.Error(0)
}

func (m *mockResetRepository) GetByUserID(ctx context.Context, userID int64) (*domain.PasswordReset, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PasswordReset), args.Error(1)
}

func (m *mockResetRepository) DeleteByCode(ctx context.Context, userID int64, codeHash string) error {
	args := m.Called(ctx, userID, codeHash)
	return args.Error(0)
}

func (m *mockResetRepository) Complete(ctx context.Context, userID int64, codeHash, passwordHash string, now time.Time) error {
	args := m.Called(ctx, userID, codeHash, passwordHash, now)
	return args.Error(0)
}

func (m *mockResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Refresh Token Repository ---

type mockRefreshTokenRepository struct {
	mock.Mock
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) RevokeByUserID(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// --- Mock collaborators ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendResetCode(ctx context.Context, msg notifier.ResetCode) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockEvents) PublishPasswordChanged(ctx context.Context, userID int64, email string) error {
	args := m.Called(ctx, userID, email)
	return args.Error(0)
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Allow(ctx context.Context, action ratelimit.Action, subject string) error {
	args := m.Called(ctx, action, subject)
	return args.Error(0)
}

// fixedCodes hands out codes in order.
type fixedCodes struct {
	mu    sync.Mutex
	codes []string
}

func (f *fixedCodes) Generate() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.codes[0]
	f.codes = f.codes[1:]
	return c, nil
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHasher() *auth.PasswordHasher {
	return auth.NewPasswordHasher(bcrypt.MinCost)
}

func testCodec(t *testing.T) *auth.TokenCodec {
	t.Helper()
	c, err := auth.NewTokenCodec(testSecret, "media-catalog", 30*time.Minute, 168*time.Hour)
	require.NoError(t, err)
	return c
}

func hashForTest(t *testing.T, password string) string {
	t.Helper()
	h, err := testHasher().Hash(password)
	require.NoError(t, err)
	return h
}

// --- In-memory stores for end-to-end flows ---

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[int64]*domain.User)}
}

func (m *memUsers) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == user.Email {
			return apperrors.Conflict("Email already registered", 400)
		}
		if u.Username == user.Username {
			return apperrors.Conflict("Username already registered", 400)
		}
	}
	m.nextID++
	user.ID = m.nextID
	cpy := *user
	m.byID[user.ID] = &cpy
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			cpy := *u
			return &cpy, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memUsers) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUsers) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		u.LastLogin = at
	}
	return nil
}

type memRefreshTokens struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newMemRefreshTokens() *memRefreshTokens {
	return &memRefreshTokens{tokens: make(map[string]*domain.RefreshToken)}
}

func (m *memRefreshTokens) Create(_ context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenHash] = &domain.RefreshToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	return nil
}

func (m *memRefreshTokens) GetByHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenHash]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cpy := *t
	return &cpy, nil
}

func (m *memRefreshTokens) Revoke(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenHash]
	if !ok || t.RevokedAt != nil {
		return apperrors.ErrNotFound
	}
	now := time.Now()
	t.RevokedAt = &now
	return nil
}

func (m *memRefreshTokens) RevokeByUserID(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeAllLocked(userID)
	return nil
}

func (m *memRefreshTokens) revokeAllLocked(userID int64) {
	now := time.Now()
	for _, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
}

type memResets struct {
	mu      sync.Mutex
	resets  map[int64]domain.PasswordReset
	users   *memUsers
	refresh *memRefreshTokens
}

func newMemResets(users *memUsers, refresh *memRefreshTokens) *memResets {
	return &memResets{resets: make(map[int64]domain.PasswordReset), users: users, refresh: refresh}
}

func (m *memResets) Upsert(_ context.Context, reset *domain.PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[reset.UserID] = *reset
	return nil
}

func (m *memResets) GetByUserID(_ context.Context, userID int64) (*domain.PasswordReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &r, nil
}

func (m *memResets) DeleteByCode(_ context.Context, userID int64, codeHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.resets[userID]; ok && r.CodeHash == codeHash {
		delete(m.resets, userID)
	}
	return nil
}

func (m *memResets) Complete(ctx context.Context, userID int64, codeHash, passwordHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[userID]
	if !ok || r.CodeHash != codeHash || !now.Before(r.ExpiresAt) {
		return apperrors.ErrNotFound
	}
	delete(m.resets, userID)
	if err := m.users.UpdatePasswordHash(ctx, userID, passwordHash); err != nil {
		return err
	}
	m.refresh.mu.Lock()
	m.refresh.revokeAllLocked(userID)
	m.refresh.mu.Unlock()
	return nil
}

func (m *memResets) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.resets {
		if !now.Before(r.ExpiresAt) {
			delete(m.resets, id)
			n++
		}
	}
	return n, nil
}

// captureNotifier records delivered codes. When intercept is set it runs
// first, and a non-nil result fails the delivery.
type captureNotifier struct {
	mu        sync.Mutex
	sent      []notifier.ResetCode
	intercept func(notifier.ResetCode) error
}

func (c *captureNotifier) SendResetCode(_ context.Context, msg notifier.ResetCode) error {
	if c.intercept != nil {
		if err := c.intercept(msg); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureNotifier) last() notifier.ResetCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[len(c.sent)-1]
}
