package models

import (
	"strings"
	"time"
)

// Role represents a user's permission level.
type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleManager   Role = "Manager"
	RoleDeveloper Role = "Developer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleDeveloper:
		return true
	}
	return false
}

// User represents a system user.
type User struct {
	ID              string    `json:"id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"` // Never expose in JSON
	Role            Role      `json:"role"`
	IsActive        bool      `json:"is_active"`
	PhoneNumber     string    `json:"phone_number,omitempty"`
	Department      string    `json:"department,omitempty"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewUser creates a new active User with initialized timestamps.
func NewUser(firstName, lastName, email string, role Role) *User {
	now := time.Now().UTC()
	return &User{
		FirstName: firstName,
		LastName:  lastName,
		Email:     NormalizeEmail(email),
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FullName returns "First Last".
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsAdmin returns true if user has admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ParseRole converts a string to Role, case-insensitively.
// Unknown values return an empty role.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin
	case "manager":
		return RoleManager
	case "developer":
		return RoleDeveloper
	default:
		return ""
	}
}

// NormalizeEmail lowercases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
