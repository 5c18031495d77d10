package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ahmetcdevelopment/task-management-api/internal/auth"
	"github.com/ahmetcdevelopment/task-management-api/internal/metrics"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

// AuthResult is returned by register, login and refresh.
type AuthResult struct {
	Token           string       `json:"token"`
	RefreshToken    string       `json:"refresh_token"`
	TokenExpiration time.Time    `json:"token_expiration"`
	User            *models.User `json:"user"`
}

// UpdateProfileInput is a sparse profile update.
type UpdateProfileInput struct {
	FirstName       *string `json:"first_name"`
	LastName        *string `json:"last_name"`
	PhoneNumber     *string `json:"phone_number"`
	Department      *string `json:"department"`
	ProfileImageURL *string `json:"profile_image_url"`
}

// ChangePasswordInput is the payload for AuthService.ChangePassword.
type ChangePasswordInput struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

// ResetPasswordInput is the payload for AuthService.ResetPassword.
type ResetPasswordInput struct {
	Email              string `json:"email"`
	Token              string `json:"token"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

// AuthService handles sign-in, tokens and the caller's own account.
type AuthService struct {
	store   storage.Storage
	users   *UserService
	jwt     *auth.JWTService
	tokens  *auth.TokenService
	lockout *auth.LockoutTracker
	logger  *zap.Logger
}

// NewAuthService creates an auth service. lockout may be nil.
func NewAuthService(store storage.Storage, users *UserService, jwt *auth.JWTService, tokens *auth.TokenService, lockout *auth.LockoutTracker, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:   store,
		users:   users,
		jwt:     jwt,
		tokens:  tokens,
		lockout: lockout,
		logger:  logger,
	}
}

func (s *AuthService) issue(ctx context.Context, user *models.User, refresh string) (*AuthResult, error) {
	token, expiresAt, err := s.jwt.GenerateToken(user)
	if err != nil {
		return nil, internal("generate access token", err)
	}
	metrics.AuthTokensIssued.WithLabelValues("access").Inc()

	if refresh == "" {
		refresh, err = s.tokens.CreateRefreshToken(ctx, user.ID)
		if err != nil {
			return nil, internal("create refresh token", err)
		}
	}
	metrics.AuthTokensIssued.WithLabelValues("refresh").Inc()

	return &AuthResult{
		Token:           token,
		RefreshToken:    refresh,
		TokenExpiration: expiresAt,
		User:            user,
	}, nil
}

// Register creates an account and signs it in.
func (s *AuthService) Register(ctx context.Context, in CreateUserInput) (*AuthResult, error) {
	user, err := s.users.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user, "")
}

// Login checks credentials. Repeated failures lock the email for the
// tracker's duration.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	key := models.NormalizeEmail(email)
	if key == "" || password == "" {
		return nil, Validation("email and password are required")
	}

	if s.lockout != nil && s.lockout.IsLocked(key) {
		metrics.AuthAttemptsTotal.WithLabelValues("locked").Inc()
		remaining := s.lockout.RemainingLockoutTime(key).Round(time.Second)
		return nil, RateLimited(fmt.Sprintf("account temporarily locked, try again in %s", remaining))
	}

	user, err := s.store.Users().GetByEmail(ctx, key)
	if err != nil {
		return nil, internal("get user", err)
	}
	if user == nil || !user.IsActive || !auth.CheckPassword(user.PasswordHash, password) {
		metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		if s.lockout != nil && s.lockout.RecordFailure(key) {
			s.logger.Warn("login locked after repeated failures", zap.String("email", key))
		}
		return nil, Unauthorized("invalid email or password")
	}

	if s.lockout != nil {
		s.lockout.ClearFailures(key)
	}
	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return s.issue(ctx, user, "")
}

// Refresh rotates a refresh token and issues a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, Validation("refresh_token is required")
	}
	user, next, err := s.tokens.RotateRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRefreshToken) {
			return nil, Unauthorized("invalid or expired refresh token")
		}
		return nil, internal("rotate refresh token", err)
	}
	return s.issue(ctx, user, next)
}

// Logout revokes the presented refresh token, or every token of the caller
// when none is given. Tokens that belong to someone else are ignored.
func (s *AuthService) Logout(ctx context.Context, actor Actor, refreshToken string) error {
	if refreshToken == "" {
		if err := s.tokens.RevokeAllUserTokens(ctx, actor.UserID); err != nil {
			return internal("revoke refresh tokens", err)
		}
		return nil
	}
	stored, err := s.store.Tokens().GetByTokenHash(ctx, models.HashToken(refreshToken))
	if err != nil {
		return internal("get refresh token", err)
	}
	if stored == nil || stored.UserID != actor.UserID || stored.Revoked {
		return nil
	}
	if err := s.store.Tokens().Revoke(ctx, stored.ID); err != nil {
		return internal("revoke refresh token", err)
	}
	return nil
}

// Profile returns the caller's account.
func (s *AuthService) Profile(ctx context.Context, actor Actor) (*models.User, error) {
	return s.users.lookup(ctx, actor.UserID)
}

// UpdateProfile changes the caller's personal fields.
func (s *AuthService) UpdateProfile(ctx context.Context, actor Actor, in UpdateProfileInput) (*models.User, error) {
	user, err := s.users.lookup(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if in.FirstName != nil {
		if err := validateRequired("first_name", *in.FirstName, MaxNameLength); err != nil {
			return nil, err
		}
		user.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		if err := validateRequired("last_name", *in.LastName, MaxNameLength); err != nil {
			return nil, err
		}
		user.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
	}
	if in.Department != nil {
		user.Department = strings.TrimSpace(*in.Department)
	}
	if in.ProfileImageURL != nil {
		user.ProfileImageURL = strings.TrimSpace(*in.ProfileImageURL)
	}
	user.UpdatedAt = time.Now().UTC()
	if err := s.store.Users().Update(ctx, user); err != nil {
		return nil, internal("update profile", err)
	}
	return user, nil
}

// ChangePassword replaces the caller's password and signs out every
// session.
func (s *AuthService) ChangePassword(ctx context.Context, actor Actor, in ChangePasswordInput) error {
	user, err := s.users.lookup(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(user.PasswordHash, in.CurrentPassword) {
		return Validation("current password is incorrect")
	}
	if in.NewPassword == in.CurrentPassword {
		return Validation("new password must differ from the current password")
	}
	if err := checkNewPassword(in.NewPassword, in.ConfirmNewPassword); err != nil {
		return err
	}
	if err := s.users.SetPassword(ctx, user.ID, in.NewPassword); err != nil {
		return err
	}
	s.logger.Info("password changed", zap.String("user_id", user.ID))
	return nil
}

// ForgotPassword accepts any well-formed email and never reveals whether an
// account exists.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		s.logger.Warn("forgot password lookup failed", zap.Error(err))
		return nil
	}
	if user != nil && user.IsActive {
		// TODO: send the reset token once an outbound mail channel exists.
		s.logger.Info("password reset requested", zap.String("user_id", user.ID))
	}
	return nil
}

// ResetPassword sets a new password for the account with the given email.
// The token is required but not verified because no mail channel issues one.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if strings.TrimSpace(in.Token) == "" {
		return Validation("reset token is required")
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if err := checkNewPassword(in.NewPassword, in.ConfirmNewPassword); err != nil {
		return err
	}
	user, err := s.store.Users().GetByEmail(ctx, in.Email)
	if err != nil {
		return internal("get user", err)
	}
	if user == nil || !user.IsActive {
		return Validation("invalid reset request")
	}
	return s.users.SetPassword(ctx, user.ID, in.NewPassword)
}

// ValidateToken returns the claims of a valid access token.
func (s *AuthService) ValidateToken(token string) (*auth.Claims, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return nil, Unauthorized("invalid or expired token")
	}
	return claims, nil
}
