package models

import "time"

// WorkItemLogAction identifies the kind of change recorded in the audit trail.
type WorkItemLogAction string

const (
	ActionCreated           WorkItemLogAction = "Created"
	ActionUpdated           WorkItemLogAction = "Updated"
	ActionStatusChanged     WorkItemLogAction = "StatusChanged"
	ActionAssigneeChanged   WorkItemLogAction = "AssigneeChanged"
	ActionCommentAdded      WorkItemLogAction = "CommentAdded"
	ActionAttachmentAdded   WorkItemLogAction = "AttachmentAdded"
	ActionAttachmentRemoved WorkItemLogAction = "AttachmentRemoved"
	ActionDeleted           WorkItemLogAction = "Deleted"
	ActionPriorityChanged   WorkItemLogAction = "PriorityChanged"
	ActionDueDateChanged    WorkItemLogAction = "DueDateChanged"
)

// WorkItemLog is an immutable audit record of one change to a work item.
type WorkItemLog struct {
	ID          string            `json:"id"`
	WorkItemID  string            `json:"work_item_id"`
	UserID      string            `json:"user_id"`
	Action      WorkItemLogAction `json:"action"`
	Description string            `json:"description"`
	OldValue    string            `json:"old_value,omitempty"`
	NewValue    string            `json:"new_value,omitempty"`
	FieldName   string            `json:"field_name,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
