package models

import "time"

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationInfo              NotificationType = "Info"
	NotificationWarning           NotificationType = "Warning"
	NotificationError             NotificationType = "Error"
	NotificationSuccess           NotificationType = "Success"
	NotificationTaskAssigned      NotificationType = "TaskAssigned"
	NotificationTaskUpdated       NotificationType = "TaskUpdated"
	NotificationTaskCompleted     NotificationType = "TaskCompleted"
	NotificationProjectCreated    NotificationType = "ProjectCreated"
	NotificationProjectUpdated    NotificationType = "ProjectUpdated"
	NotificationReminder          NotificationType = "Reminder"
	NotificationTeamMemberAdded   NotificationType = "TeamMemberAdded"
	NotificationTeamMemberRemoved NotificationType = "TeamMemberRemoved"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationInfo, NotificationWarning, NotificationError, NotificationSuccess,
		NotificationTaskAssigned, NotificationTaskUpdated, NotificationTaskCompleted,
		NotificationProjectCreated, NotificationProjectUpdated, NotificationReminder,
		NotificationTeamMemberAdded, NotificationTeamMemberRemoved:
		return true
	}
	return false
}

// Related entity types referenced by notifications.
const (
	EntityWorkItem = "WorkItem"
	EntityProject  = "Project"
)

// Notification is a persisted, user-targeted message.
type Notification struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id"`
	Title             string           `json:"title"`
	Message           string           `json:"message"`
	Type              NotificationType `json:"type"`
	IsRead            bool             `json:"is_read"`
	CreatedAt         time.Time        `json:"created_at"`
	ReadAt            *time.Time       `json:"read_at,omitempty"`
	RelatedEntityID   string           `json:"related_entity_id,omitempty"`
	RelatedEntityType string           `json:"related_entity_type,omitempty"`
	ActionURL         string           `json:"action_url,omitempty"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
}
