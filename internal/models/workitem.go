package models

import (
	"fmt"
	"slices"
	"time"
)

// WorkItemStatus is the workflow state of a work item.
type WorkItemStatus string

const (
	StatusToDo       WorkItemStatus = "ToDo"
	StatusInProgress WorkItemStatus = "InProgress"
	StatusDone       WorkItemStatus = "Done"
	StatusCancelled  WorkItemStatus = "Cancelled"
)

// AllStatuses lists every work item status in workflow order.
var AllStatuses = []WorkItemStatus{StatusToDo, StatusInProgress, StatusDone, StatusCancelled}

// Valid reports whether s is a known status.
func (s WorkItemStatus) Valid() bool {
	return slices.Contains(AllStatuses, s)
}

// IsTerminal reports whether no further work is expected.
func (s WorkItemStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// statusTransitions is the allowed workflow graph. Self-transitions are
// handled separately.
var statusTransitions = map[WorkItemStatus][]WorkItemStatus{
	StatusToDo:       {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusDone, StatusToDo, StatusCancelled},
	StatusDone:       {StatusInProgress},
	StatusCancelled:  {StatusToDo},
}

// StatusTransitionError describes a transition outside the workflow graph.
type StatusTransitionError struct {
	From WorkItemStatus
	To   WorkItemStatus
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// ValidateStatusTransition checks from→to against the workflow graph.
func ValidateStatusTransition(from, to WorkItemStatus) error {
	if from == to {
		return nil
	}
	if slices.Contains(statusTransitions[from], to) {
		return nil
	}
	return &StatusTransitionError{From: from, To: to}
}

// WorkItemComment is a comment embedded in a work item.
type WorkItemComment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkItem is a trackable unit of work belonging to a project.
type WorkItem struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	ProjectID      string            `json:"project_id"`
	AssignedToID   string            `json:"assigned_to_id,omitempty"`
	CreatedByID    string            `json:"created_by_id"`
	Status         WorkItemStatus    `json:"status"`
	Priority       Priority          `json:"priority"`
	DueDate        *time.Time        `json:"due_date,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	EstimatedHours int               `json:"estimated_hours"`
	ActualHours    int               `json:"actual_hours"`
	Tags           []string          `json:"tags"`
	Attachments    []string          `json:"attachments"`
	Comments       []WorkItemComment `json:"comments"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// IsOverdue reports whether the item is past due and still open at now.
func (w *WorkItem) IsOverdue(now time.Time) bool {
	return w.DueDate != nil && w.DueDate.Before(now) && !w.Status.IsTerminal()
}
