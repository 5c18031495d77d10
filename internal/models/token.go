package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// RefreshToken is a long-lived credential exchanged for a new access token.
// Only its SHA-256 hash is persisted.
type RefreshToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// NewRefreshToken creates a token for userID valid for ttl.
// Returns the model and the plaintext token to send to the client.
func NewRefreshToken(userID string, ttl time.Duration) (*RefreshToken, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	plain := base64.RawURLEncoding.EncodeToString(raw)

	now := time.Now().UTC()
	return &RefreshToken{
		UserID:    userID,
		TokenHash: HashToken(plain),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, plain, nil
}

// HashToken creates a SHA-256 hash of a plaintext token for lookup.
func HashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// IsExpired reports whether the token is past its expiry.
func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsValid returns true if the token is not revoked and not expired.
func (t *RefreshToken) IsValid() bool {
	return !t.Revoked && !t.IsExpired()
}
