package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strconv"
)

// DefaultOTPDigits is the width of a reset code.
const DefaultOTPDigits = 6

// OTPGenerator draws fixed-width numeric codes uniformly from
// [10^(digits-1), 10^digits - 1] using a CSPRNG.
type OTPGenerator struct {
	min    int64
	span   *big.Int
	random io.Reader
}

// NewOTPGenerator returns a generator for codes of the given width.
// Widths outside [4, 18] fall back to DefaultOTPDigits.
func NewOTPGenerator(digits int) *OTPGenerator {
	if digits < 4 || digits > 18 {
		digits = DefaultOTPDigits
	}
	lo := pow10(digits - 1)
	return &OTPGenerator{
		min:    lo,
		span:   big.NewInt(pow10(digits) - lo),
		random: rand.Reader,
	}
}

// Generate returns a fresh code. For six digits the result lies in
// [100000, 999999] and is always six characters long.
func (g *OTPGenerator) Generate() (string, error) {
	n, err := rand.Int(g.random, g.span)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return strconv.FormatInt(g.min+n.Int64(), 10), nil
}

func pow10(n int) int64 {
	v := int64(1)
	for range n {
		v *= 10
	}
	return v
}

// Digest returns the hex SHA-256 of s. Reset codes and refresh tokens are
// stored only in this form.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// MatchDigest compares code against a stored digest in constant time.
func MatchDigest(code, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(Digest(code)), []byte(digest)) == 1
}
