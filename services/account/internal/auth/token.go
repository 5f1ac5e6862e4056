package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for every token that fails verification:
// bad signature, wrong algorithm, malformed, expired or of the wrong type.
var ErrInvalidToken = errors.New("invalid token")

// Token types carried in the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the JWT claim set. Subject holds the account email.
type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HS256 bearer tokens with one
// process-wide secret.
type TokenCodec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for iat, exp and validation.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

// NewTokenCodec creates a codec. The secret must not be empty.
func NewTokenCodec(secret, issuer string, accessTTL, refreshTTL time.Duration, opts ...CodecOption) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("token secret is empty")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	c := &TokenCodec{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the lifetime of access tokens.
func (c *TokenCodec) AccessTTL() time.Duration {
	return c.accessTTL
}

// IssueAccessToken signs an access token for subject.
func (c *TokenCodec) IssueAccessToken(subject string) (string, time.Time, error) {
	return c.issue(subject, TokenTypeAccess, c.accessTTL, "")
}

// IssueRefreshToken signs a refresh token for subject with a random jti,
// so two refresh tokens never collide even within the same second.
func (c *TokenCodec) IssueRefreshToken(subject string) (string, time.Time, error) {
	return c.issue(subject, TokenTypeRefresh, c.refreshTTL, uuid.NewString())
}

func (c *TokenCodec) issue(subject, typ string, ttl time.Duration, id string) (string, time.Time, error) {
	now := c.now().UTC()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken returns the subject of a valid access token.
func (c *TokenCodec) VerifyAccessToken(token string) (string, error) {
	return c.verify(token, TokenTypeAccess)
}

// VerifyRefreshToken returns the subject of a valid refresh token.
func (c *TokenCodec) VerifyRefreshToken(token string) (string, error) {
	return c.verify(token, TokenTypeRefresh)
}

func (c *TokenCodec) verify(token, typ string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{},
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Type != typ {
		return "", fmt.Errorf("%w: want %s token, got %q", ErrInvalidToken, typ, claims.Type)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
