// Package realtime fans events out to connected clients grouped by user, role
// and project.
package realtime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
)

// GroupKind is the closed set of group types.
type GroupKind string

const (
	GroupUser    GroupKind = "user"
	GroupRole    GroupKind = "role"
	GroupProject GroupKind = "project"
)

// Valid reports whether k is a known kind.
func (k GroupKind) Valid() bool {
	switch k {
	case GroupUser, GroupRole, GroupProject:
		return true
	}
	return false
}

// GroupKey identifies a delivery group.
type GroupKey struct {
	Kind GroupKind
	ID   string
}

// UserGroup is the group of every connection of one user.
func UserGroup(userID string) GroupKey { return GroupKey{Kind: GroupUser, ID: userID} }

// RoleGroup is the group of every connection whose user has role.
func RoleGroup(role models.Role) GroupKey { return GroupKey{Kind: GroupRole, ID: string(role)} }

// ProjectGroup is the group of connections that joined a project.
func ProjectGroup(projectID string) GroupKey { return GroupKey{Kind: GroupProject, ID: projectID} }

var errInvalidGroup = errors.New("invalid group key")

// Validate checks the kind and that the id is a single subject token.
func (k GroupKey) Validate() error {
	if !k.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", errInvalidGroup, k.Kind)
	}
	if k.ID == "" || strings.ContainsAny(k.ID, ".*> \t\r\n") {
		return fmt.Errorf("%w: bad id %q", errInvalidGroup, k.ID)
	}
	return nil
}

func (k GroupKey) String() string {
	return string(k.Kind) + ":" + k.ID
}
