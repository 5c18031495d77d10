// Package access decides which role may perform which action.
//
// Every authorization decision in the service layer goes through Can, so the
// whole policy can be read in one place.
package access

import "github.com/ahmetcdevelopment/task-management-api/internal/models"

// Action is an operation subject to authorization.
type Action string

const (
	ProjectCreate Action = "project:create"
	ProjectRead   Action = "project:read"
	ProjectUpdate Action = "project:update"
	ProjectStatus Action = "project:status"
	ProjectTeam   Action = "project:team"
	ProjectDelete Action = "project:delete"

	WorkItemCreate  Action = "workitem:create"
	WorkItemRead    Action = "workitem:read"
	WorkItemUpdate  Action = "workitem:update"
	WorkItemStatus  Action = "workitem:status"
	WorkItemAssign  Action = "workitem:assign"
	WorkItemComment Action = "workitem:comment"
	WorkItemDelete  Action = "workitem:delete"

	NotificationRead     Action = "notification:read"
	NotificationMark     Action = "notification:mark"
	NotificationDelete   Action = "notification:delete"
	NotificationCreate   Action = "notification:create"
	NotificationCleanup  Action = "notification:cleanup"
	NotificationTestSend Action = "notification:test-send"

	UserList       Action = "user:list"
	UserGet        Action = "user:get"
	UserActivate   Action = "user:activate"
	UserDeactivate Action = "user:deactivate"
)

// Ownership describes the caller's relation to the target resource.
type Ownership struct {
	// IsSelf is set when the resource belongs to the caller.
	IsSelf           bool
	IsProjectManager bool
	IsProjectMember  bool
}

// None is the ownership for actions without a target resource.
var None = Ownership{}

// ForProject computes the caller's ownership of p.
func ForProject(p *models.Project, userID string) Ownership {
	if p == nil {
		return None
	}
	return Ownership{
		IsProjectManager: p.ManagerID == userID,
		IsProjectMember:  p.IsMember(userID),
	}
}

// Can reports whether role may perform action given own.
func Can(role models.Role, action Action, own Ownership) bool {
	if role == models.RoleAdmin {
		return true
	}
	if !role.Valid() {
		return false
	}

	manager := role == models.RoleManager
	onProject := own.IsProjectManager || own.IsProjectMember

	switch action {
	case ProjectCreate, NotificationCreate, UserGet:
		return manager
	case ProjectUpdate, ProjectStatus, ProjectTeam, ProjectDelete, WorkItemDelete:
		return manager && own.IsProjectManager
	case ProjectRead,
		WorkItemCreate, WorkItemRead, WorkItemUpdate, WorkItemStatus, WorkItemAssign, WorkItemComment:
		return onProject
	case NotificationRead, NotificationMark, NotificationDelete:
		return own.IsSelf
	case UserList:
		return true
	case NotificationCleanup, NotificationTestSend, UserActivate, UserDeactivate:
		return false
	}
	return false
}
