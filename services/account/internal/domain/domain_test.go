package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_JSONOmitsPasswordHash(t *testing.T) {
	u := User{ID: 7, Email: "alice@example.com", PasswordHash: "$2a$12$secret"}

	b, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "password")
	assert.NotContains(t, string(b), "$2a$")
}

func TestUser_Profile(t *testing.T) {
	pic := "https://cdn.example.com/a.png"
	u := User{
		ID: 1, Email: "alice@example.com", Username: "alice", FirstName: "Alice",
		LastName: "Liddell", ProfilePicture: &pic, IsPremium: true, PasswordHash: "h",
	}

	p := u.Profile()
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.Equal(t, &pic, p.ProfilePicture)
	assert.True(t, p.IsPremium)
}

func TestPasswordReset_Expired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := PasswordReset{IssuedAt: issued, ExpiresAt: issued.Add(10 * time.Minute)}

	assert.False(t, r.Expired(issued))
	assert.False(t, r.Expired(issued.Add(9*time.Minute)))
	assert.True(t, r.Expired(issued.Add(10*time.Minute)))
	assert.True(t, r.Expired(issued.Add(time.Hour)))
}

func TestRefreshToken_Usable(t *testing.T) {
	now := time.Now()
	revoked := now.Add(-time.Minute)

	tests := []struct {
		name string
		tok  RefreshToken
		want bool
	}{
		{"live", RefreshToken{ExpiresAt: now.Add(time.Hour)}, true},
		{"expired", RefreshToken{ExpiresAt: now.Add(-time.Second)}, false},
		{"revoked", RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tok.Usable(now))
		})
	}
}
