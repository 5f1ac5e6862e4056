// Package auth holds the credential primitives of the account service:
// password hashing, bearer token encoding and one-time reset codes.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmptyPassword is returned when attempting to hash an empty password.
	ErrEmptyPassword   = errors.New("password cannot be empty")
	// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
)

// MaxPasswordBytes is bcrypt's input limit. It counts bytes, not characters.
const MaxPasswordBytes = 72

// Upper bounds on argon2id parameters accepted from a stored digest.
const (
	maxArgon2Memory = 1 << 20 // KiB
	maxArgon2Time   = 16
	maxArgon2KeyLen = 1 << 10
	argon2idPrefix  = "$argon2id$"
	dummyPassword   = "dummy-password-for-timing"

	// bcrypt digest of dummyPassword at cost 12, used if generating one fails.
	fallbackDummyDigest = "$2b$12$QyCJRfpLll3EefoWCyQXKObe8jHCSClM3koeyPBJSTr1dGYKclwsy"
)

// PasswordHasher hashes new passwords with bcrypt and verifies both bcrypt
// and argon2id digests, reading the parameters embedded in each digest.
type PasswordHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     string
}

// NewPasswordHasher returns a hasher that produces bcrypt digests at cost.
// Out-of-range costs fall back to bcrypt.DefaultCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Cost returns the bcrypt cost used for new digests.
func (h *PasswordHasher) Cost() int {
	return h.cost
}

// Hash returns a salted bcrypt digest of password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether password matches digest. Malformed or unknown
// digests never match.
func (h *PasswordHasher) Verify(password, digest string) bool {
	switch {
	case isBcrypt(digest):
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
	case strings.HasPrefix(digest, argon2idPrefix):
		ok, err := verifyArgon2id(password, digest)
		return err == nil && ok
	default:
		return false
	}
}

// VerifyDummy burns the same time as a real bcrypt comparison. Callers use
// it when the account does not exist so response timing stays flat.
func (h *PasswordHasher) VerifyDummy(password string) {
	h.dummyOnce.Do(func() {
		h.dummy = fallbackDummyDigest
		if d, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), h.cost); err == nil {
			h.dummy = string(d)
		}
	})
	_ = bcrypt.CompareHashAndPassword([]byte(h.dummy), []byte(password))
}

// NeedsRehash reports whether digest should be replaced with a fresh bcrypt
// digest at the configured cost.
func (h *PasswordHasher) NeedsRehash(digest string) bool {
	if !isBcrypt(digest) {
		return true
	}
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return true
	}
	return cost < h.cost
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

// verifyArgon2id checks a PHC-format digest:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func verifyArgon2id(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errors.New("invalid argon2id digest format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("parse argon2id version: %w", err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, fmt.Errorf("parse argon2id params: %w", err)
	}
	if memory == 0 || memory > maxArgon2Memory || iterations == 0 || iterations > maxArgon2Time || threads == 0 || threads > 255 {
		return false, errors.New("argon2id params out of range")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decode argon2id salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decode argon2id hash: %w", err)
	}
	if len(expected) == 0 || len(expected) > maxArgon2KeyLen {
		return false, fmt.Errorf("invalid argon2id key length %d", len(expected))
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, uint8(threads), uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
