package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ahmetcdevelopment/task-management-api/internal/api/respond"
	"github.com/ahmetcdevelopment/task-management-api/internal/auth"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/service"
)

// Context keys for storing user information.
type contextKey string

const (
	claimsKey contextKey = "claims"
)

// AccessTokenParam is the query parameter accepted in place of the
// Authorization header, for EventSource clients that cannot set headers.
const AccessTokenParam = "access_token"

// TokenValidator validates access tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// bearerToken returns the token from the Authorization header, falling
// back to the access_token query parameter.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get(AccessTokenParam)
}

// JWTAuth returns middleware that validates JWT tokens.
func JWTAuth(tokens TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				respond.Fail(w, http.StatusUnauthorized, "authentication required")
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				logger.Debug("jwt auth failed",
					zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
				respond.Fail(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetClaims returns the JWT claims from context.
func GetClaims(ctx context.Context) *auth.Claims {
	if v := ctx.Value(claimsKey); v != nil {
		if c, ok := v.(*auth.Claims); ok {
			return c
		}
	}
	return nil
}

// GetUserID returns the user ID from context.
func GetUserID(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.UserID
	}
	return ""
}

// GetRole returns the user role from context.
func GetRole(ctx context.Context) models.Role {
	if c := GetClaims(ctx); c != nil {
		return c.Role
	}
	return ""
}

// Actor returns the authenticated caller as a service actor.
func Actor(ctx context.Context) service.Actor {
	return service.Actor{UserID: GetUserID(ctx), Role: GetRole(ctx)}
}
