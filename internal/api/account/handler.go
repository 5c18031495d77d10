// Package account serves sign-in, token and user administration endpoints.
package account

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ahmetcdevelopment/task-management-api/internal/api/middleware"
	"github.com/ahmetcdevelopment/task-management-api/internal/api/respond"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/service"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

// Handler handles /api/auth endpoints.
type Handler struct {
	auth  *service.AuthService
	users *service.UserService
}

// NewHandler creates a new account handler.
func NewHandler(auth *service.AuthService, users *service.UserService) *Handler {
	return &Handler{auth: auth, users: users}
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the request body for token refresh and logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ForgotPasswordRequest is the request body for forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// Login handles user login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		respond.Fail(w, http.StatusBadRequest, "email and password are required")
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, res)
}

// Register creates an account and signs it in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.CreateUserInput
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	res, err := h.auth.Register(r.Context(), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, res)
}

// Refresh exchanges a refresh token for a new token pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	res, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, res)
}

// Logout revokes the given refresh token, or all of the caller's tokens
// when the body is empty.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if r.ContentLength != 0 {
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, err)
			return
		}
	}

	if err := h.auth.Logout(r.Context(), middleware.Actor(r.Context()), req.RefreshToken); err != nil {
		respond.Error(w, err)
		return
	}
	respond.Message(w, "Logged out")
}

// Profile returns the caller's account.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Profile(r.Context(), middleware.Actor(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, user)
}

// UpdateProfile changes the caller's personal fields.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateProfileInput
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), middleware.Actor(r.Context()), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, user)
}

// ChangePassword changes the caller's password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req service.ChangePasswordInput
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), middleware.Actor(r.Context()), req); err != nil {
		respond.Error(w, err)
		return
	}
	respond.Message(w, "Password changed")
}

// ForgotPassword always answers the same way so that accounts cannot be
// discovered through it.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		respond.Error(w, err)
		return
	}
	respond.Message(w, "If the email is registered, a reset link has been sent")
}

// ResetPassword sets a new password using a reset token.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req service.ResetPasswordInput
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req); err != nil {
		respond.Error(w, err)
		return
	}
	respond.Message(w, "Password reset")
}

// ValidateToken echoes the claims of the presented token.
func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		respond.Fail(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	resp := map[string]any{
		"valid":   true,
		"user_id": claims.UserID,
		"email":   claims.Email,
		"role":    claims.Role,
	}
	if claims.ExpiresAt != nil {
		resp["expires_at"] = claims.ExpiresAt.Time
	}
	respond.OK(w, resp)
}

// ListUsers returns users filtered by role, active, department and search.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.UserFilter{
		Role:       models.Role(q.Get("role")),
		Department: q.Get("department"),
		Search:     q.Get("search"),
	}
	if v := q.Get("isActive"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			respond.Fail(w, http.StatusBadRequest, "isActive must be true or false")
			return
		}
		filter.IsActive = &active
	}

	users, err := h.users.List(r.Context(), middleware.Actor(r.Context()), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, users)
}

// GetUser returns one user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, user)
}

// ActivateUser enables an account.
func (h *Handler) ActivateUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Activate(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, user)
}

// DeactivateUser disables an account.
func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Deactivate(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, user)
}
