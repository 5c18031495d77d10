package service

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahmetcdevelopment/task-management-api/internal/access"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
)

// Field limits.
const (
	MaxWorkItemTitle       = 200
	MaxWorkItemDescription = 2000
	MinProjectName         = 3
	MaxProjectName         = 200
	MaxProjectDescription  = 1000
	MaxProjectTeamSize     = 50
	MaxNotificationTitle   = 200
	MaxNotificationMessage = 500
	MaxNameLength          = 50
	MaxCommentLength       = 1000
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Role   models.Role
}

// IsAdmin reports whether the actor is an administrator.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// authorize checks the capability table and maps a denial to Forbidden.
func authorize(actor Actor, action access.Action, own access.Ownership) error {
	if !access.Can(actor.Role, action, own) {
		return Forbidden("you do not have permission to perform this action")
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return Validation("invalid email format")
	}
	return nil
}

func validateRequired(field, value string, maxLen int) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return Validation("%s is required", field)
	}
	return validateMaxLen(field, value, maxLen)
}

func validateMaxLen(field, value string, maxLen int) error {
	if utf8.RuneCountInString(value) > maxLen {
		return Validation("%s must be %d characters or less", field, maxLen)
	}
	return nil
}

func validateProjectName(name string) error {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < MinProjectName || n > MaxProjectName {
		return Validation("project name must be between %d and %d characters", MinProjectName, MaxProjectName)
	}
	return nil
}

// startOfDay truncates t to midnight UTC.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// cleanTags trims, drops empties and de-duplicates while keeping order.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
