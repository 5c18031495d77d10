package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

// ErrInvalidRefreshToken is returned for unknown, expired or revoked tokens.
var ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")

// TokenService handles refresh token operations.
type TokenService struct {
	storage storage.Storage
	ttl     time.Duration
}

// NewTokenService creates a new token service.
func NewTokenService(store storage.Storage, ttl time.Duration) *TokenService {
	return &TokenService{
		storage: store,
		ttl:     ttl,
	}
}

// CreateRefreshToken creates and stores a new refresh token for the user.
// Returns the plaintext token to send to the client.
func (s *TokenService) CreateRefreshToken(ctx context.Context, userID string) (string, error) {
	token, plainToken, err := models.NewRefreshToken(userID, s.ttl)
	if err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}

	if err := s.storage.Tokens().Create(ctx, token); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return plainToken, nil
}

// ValidateRefreshToken checks that the token exists, is unexpired and is not
// revoked, and returns it with its user.
func (s *TokenService) ValidateRefreshToken(ctx context.Context, plainToken string) (*models.RefreshToken, *models.User, error) {
	if plainToken == "" {
		return nil, nil, ErrInvalidRefreshToken
	}

	token, err := s.storage.Tokens().GetByTokenHash(ctx, models.HashToken(plainToken))
	if err != nil {
		return nil, nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if token == nil || !token.IsValid() {
		return nil, nil, ErrInvalidRefreshToken
	}

	user, err := s.storage.Users().GetByID(ctx, token.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, nil, ErrInvalidRefreshToken
	}
	return token, user, nil
}

// RotateRefreshToken validates the presented token, revokes it and issues a
// replacement. Returns the user and the new plaintext token.
func (s *TokenService) RotateRefreshToken(ctx context.Context, oldPlainToken string) (*models.User, string, error) {
	token, user, err := s.ValidateRefreshToken(ctx, oldPlainToken)
	if err != nil {
		return nil, "", err
	}
	// A concurrent rotation of the same token loses here.
	if err := s.storage.Tokens().Revoke(ctx, token.ID); err != nil {
		return nil, "", ErrInvalidRefreshToken
	}

	plain, err := s.CreateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, plain, nil
}

// RevokeRefreshToken revokes a refresh token.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, plainToken string) error {
	return s.storage.Tokens().RevokeByTokenHash(ctx, models.HashToken(plainToken))
}

// RevokeAllUserTokens revokes all refresh tokens for a user.
func (s *TokenService) RevokeAllUserTokens(ctx context.Context, userID string) error {
	return s.storage.Tokens().RevokeAllForUser(ctx, userID)
}

// CleanupExpiredTokens removes expired tokens from storage.
func (s *TokenService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return s.storage.Tokens().DeleteExpired(ctx)
}

// RunCleanup deletes expired tokens every interval until ctx is done.
func (s *TokenService) RunCleanup(ctx context.Context, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.CleanupExpiredTokens(ctx)
			if err != nil {
				logger.Warn("refresh token cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("expired refresh tokens removed", zap.Int64("count", n))
			}
		}
	}
}

// TTL returns the refresh token time-to-live.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}
