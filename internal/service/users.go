package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahmetcdevelopment/task-management-api/internal/access"
	"github.com/ahmetcdevelopment/task-management-api/internal/auth"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

// CreateUserInput describes a new account.
type CreateUserInput struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role"`
	PhoneNumber     string `json:"phone_number"`
	Department      string `json:"department"`
}

// UserService manages accounts.
type UserService struct {
	store  storage.Storage
	logger *zap.Logger
}

// NewUserService creates a user service.
func NewUserService(store storage.Storage, logger *zap.Logger) *UserService {
	return &UserService{store: store, logger: logger}
}

func passwordError(err error) error {
	var pe *auth.PasswordValidationError
	if errors.As(err, &pe) {
		return Validation("%s", strings.Join(pe.Messages, "; "))
	}
	return Validation("%s", err.Error())
}

func checkNewPassword(password, confirm string) error {
	if err := auth.ValidatePassword(password); err != nil {
		return passwordError(err)
	}
	if password != confirm {
		return Validation("passwords do not match")
	}
	return nil
}

// Create validates and stores a new account. Unknown roles are rejected and
// an empty role means Developer.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	if err := validateRequired("first_name", in.FirstName, MaxNameLength); err != nil {
		return nil, err
	}
	if err := validateRequired("last_name", in.LastName, MaxNameLength); err != nil {
		return nil, err
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := checkNewPassword(in.Password, in.ConfirmPassword); err != nil {
		return nil, err
	}
	role := models.RoleDeveloper
	if strings.TrimSpace(in.Role) != "" {
		role = models.ParseRole(in.Role)
		if role == "" {
			return nil, Validation("invalid role: %s", in.Role)
		}
	}

	existing, err := s.store.Users().GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, internal("check email", err)
	}
	if existing != nil {
		return nil, Conflict("email is already registered")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, internal("hash password", err)
	}
	user := models.NewUser(strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), in.Email, role)
	user.ID = uuid.New().String()
	user.PasswordHash = hash
	user.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	user.Department = strings.TrimSpace(in.Department)

	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, internal("create user", err)
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}

// SetPassword replaces a user's password and revokes their refresh tokens.
func (s *UserService) SetPassword(ctx context.Context, id, password string) error {
	if err := auth.ValidatePassword(password); err != nil {
		return passwordError(err)
	}
	user, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return internal("hash password", err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	if err := s.store.Users().Update(ctx, user); err != nil {
		return internal("update user", err)
	}
	if err := s.store.Tokens().RevokeAllForUser(ctx, user.ID); err != nil {
		return internal("revoke refresh tokens", err)
	}
	return nil
}

// lookup accepts an id or an email address.
func (s *UserService) lookup(ctx context.Context, idOrEmail string) (*models.User, error) {
	var (
		user *models.User
		err  error
	)
	if strings.Contains(idOrEmail, "@") {
		user, err = s.store.Users().GetByEmail(ctx, idOrEmail)
	} else {
		user, err = s.store.Users().GetByID(ctx, idOrEmail)
	}
	if err != nil {
		return nil, internal("get user", err)
	}
	if user == nil {
		return nil, NotFound("user not found")
	}
	return user, nil
}

// Find returns a user by id or email without an authorization check.
func (s *UserService) Find(ctx context.Context, idOrEmail string) (*models.User, error) {
	return s.lookup(ctx, idOrEmail)
}

// List returns users matching filter.
func (s *UserService) List(ctx context.Context, actor Actor, filter storage.UserFilter) ([]*models.User, error) {
	if err := authorize(actor, access.UserList, access.None); err != nil {
		return nil, err
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, Validation("invalid role: %s", filter.Role)
	}
	users, err := s.store.Users().List(ctx, filter)
	if err != nil {
		return nil, internal("list users", err)
	}
	return users, nil
}

// Get returns one user.
func (s *UserService) Get(ctx context.Context, actor Actor, id string) (*models.User, error) {
	if err := authorize(actor, access.UserGet, access.Ownership{IsSelf: id == actor.UserID}); err != nil {
		return nil, err
	}
	return s.lookup(ctx, id)
}

// Activate enables an account.
func (s *UserService) Activate(ctx context.Context, actor Actor, id string) (*models.User, error) {
	if err := authorize(actor, access.UserActivate, access.None); err != nil {
		return nil, err
	}
	return s.setActive(ctx, id, true)
}

// Deactivate disables an account and revokes its refresh tokens. Callers
// cannot deactivate themselves.
func (s *UserService) Deactivate(ctx context.Context, actor Actor, id string) (*models.User, error) {
	if err := authorize(actor, access.UserDeactivate, access.None); err != nil {
		return nil, err
	}
	if id == actor.UserID {
		return nil, Validation("you cannot deactivate your own account")
	}
	return s.setActive(ctx, id, false)
}

// SetActive changes the active flag without an authorization check.
func (s *UserService) SetActive(ctx context.Context, idOrEmail string, active bool) (*models.User, error) {
	return s.setActive(ctx, idOrEmail, active)
}

func (s *UserService) setActive(ctx context.Context, id string, active bool) (*models.User, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsActive == active {
		return user, nil
	}
	user.IsActive = active
	user.UpdatedAt = time.Now().UTC()
	if err := s.store.Users().Update(ctx, user); err != nil {
		return nil, internal("update user", err)
	}
	if !active {
		if err := s.store.Tokens().RevokeAllForUser(ctx, user.ID); err != nil {
			return nil, internal("revoke refresh tokens", err)
		}
	}
	s.logger.Info("user active flag changed", zap.String("user_id", user.ID), zap.Bool("active", active))
	return user, nil
}
