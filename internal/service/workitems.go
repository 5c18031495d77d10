package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahmetcdevelopment/task-management-api/internal/access"
	"github.com/ahmetcdevelopment/task-management-api/internal/metrics"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

// DefaultDueSoonDays is the window used by DueSoon when none is given.
const DefaultDueSoonDays = 3

const unassigned = "Unassigned"

// WorkItemNotifier receives work-item side effects.
type WorkItemNotifier interface {
	NotifyWorkItemAssigned(ctx context.Context, workItemID, assigneeID, actorID string)
	NotifyWorkItemUpdated(ctx context.Context, workItemID, actorID string)
	NotifyWorkItemCompleted(ctx context.Context, workItemID, actorID string)
}

// CreateWorkItemInput is the payload for WorkItemService.Create.
type CreateWorkItemInput struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	ProjectID      string          `json:"project_id"`
	AssignedToID   string          `json:"assigned_to_id"`
	Priority       models.Priority `json:"priority"`
	DueDate        *time.Time      `json:"due_date"`
	EstimatedHours int             `json:"estimated_hours"`
	Tags           []string        `json:"tags"`
}

// UpdateWorkItemInput is a sparse update. Nil fields are left alone.
type UpdateWorkItemInput struct {
	Title          *string          `json:"title"`
	Description    *string          `json:"description"`
	AssignedToID   *string          `json:"assigned_to_id"`
	Priority       *models.Priority `json:"priority"`
	DueDate        *time.Time       `json:"due_date"`
	ClearDueDate   bool             `json:"clear_due_date"`
	EstimatedHours *int             `json:"estimated_hours"`
	ActualHours    *int             `json:"actual_hours"`
	Tags           *[]string        `json:"tags"`
}

// WorkItemStats counts work items by status and priority.
type WorkItemStats struct {
	Total      int64                           `json:"total"`
	ByStatus   map[models.WorkItemStatus]int64 `json:"by_status"`
	ByPriority map[models.Priority]int64       `json:"by_priority"`
}

// WorkItemService manages work items and their audit trail.
type WorkItemService struct {
	store    storage.Storage
	notifier WorkItemNotifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewWorkItemService creates a work item service.
func NewWorkItemService(store storage.Storage, notifier WorkItemNotifier, logger *zap.Logger) *WorkItemService {
	return &WorkItemService{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// projectFor loads a project and checks action against the caller's
// relation to it.
func (s *WorkItemService) projectFor(ctx context.Context, actor Actor, projectID string, action access.Action) (*models.Project, error) {
	p, err := s.store.Projects().GetByID(ctx, projectID)
	if err != nil {
		return nil, internal("get project", err)
	}
	if p == nil {
		return nil, NotFound("project not found")
	}
	if err := authorize(actor, action, access.ForProject(p, actor.UserID)); err != nil {
		return nil, err
	}
	return p, nil
}

// itemFor loads a work item and checks action on its project.
func (s *WorkItemService) itemFor(ctx context.Context, actor Actor, id string, action access.Action) (*models.WorkItem, *models.Project, error) {
	item, err := s.store.WorkItems().GetByID(ctx, id)
	if err != nil {
		return nil, nil, internal("get work item", err)
	}
	if item == nil {
		return nil, nil, NotFound("work item not found")
	}
	p, err := s.store.Projects().GetByID(ctx, item.ProjectID)
	if err != nil {
		return nil, nil, internal("get project", err)
	}
	if err := authorize(actor, action, access.ForProject(p, actor.UserID)); err != nil {
		return nil, nil, err
	}
	return item, p, nil
}

// activeUser loads a user that must exist and be active.
func (s *WorkItemService) activeUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, internal("get user", err)
	}
	if u == nil || !u.IsActive {
		return nil, NotFound("assignee not found")
	}
	return u, nil
}

func (s *WorkItemService) userName(ctx context.Context, id string) string {
	if id == "" {
		return unassigned
	}
	u, err := s.store.Users().GetByID(ctx, id)
	if err != nil || u == nil {
		return id
	}
	return u.FullName()
}

func (s *WorkItemService) audit(ctx context.Context, entry *models.WorkItemLog) error {
	entry.ID = uuid.New().String()
	entry.CreatedAt = s.now()
	if err := s.store.WorkItemLogs().Create(ctx, entry); err != nil {
		return internal("write audit entry", err)
	}
	metrics.AuditEntries.WithLabelValues(string(entry.Action)).Inc()
	return nil
}

// Create adds a work item to a project.
func (s *WorkItemService) Create(ctx context.Context, actor Actor, in CreateWorkItemInput) (*models.WorkItem, error) {
	if err := validateRequired("title", in.Title, MaxWorkItemTitle); err != nil {
		return nil, err
	}
	if err := validateMaxLen("description", in.Description, MaxWorkItemDescription); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ProjectID) == "" {
		return nil, Validation("project_id is required")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, Validation("invalid priority: %s", in.Priority)
	}
	if in.EstimatedHours < 0 {
		return nil, Validation("estimated hours must be positive")
	}
	now := s.now()
	if in.DueDate != nil && !in.DueDate.After(now) {
		return nil, Validation("due date must be in the future")
	}

	if _, err := s.projectFor(ctx, actor, in.ProjectID, access.WorkItemCreate); err != nil {
		return nil, err
	}
	if in.AssignedToID != "" {
		if _, err := s.activeUser(ctx, in.AssignedToID); err != nil {
			return nil, err
		}
	}

	item := &models.WorkItem{
		ID:             uuid.New().String(),
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		ProjectID:      in.ProjectID,
		AssignedToID:   in.AssignedToID,
		CreatedByID:    actor.UserID,
		Status:         models.StatusToDo,
		Priority:       in.Priority,
		DueDate:        utcPtr(in.DueDate),
		EstimatedHours: in.EstimatedHours,
		Tags:           cleanTags(in.Tags),
		Attachments:    []string{},
		Comments:       []models.WorkItemComment{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.WorkItems().Create(ctx, item); err != nil {
		return nil, internal("create work item", err)
	}
	if err := s.audit(ctx, &models.WorkItemLog{
		WorkItemID:  item.ID,
		UserID:      actor.UserID,
		Action:      models.ActionCreated,
		Description: "WorkItem created",
	}); err != nil {
		return nil, err
	}

	if item.AssignedToID != "" {
		s.notifier.NotifyWorkItemAssigned(ctx, item.ID, item.AssignedToID, actor.UserID)
	}
	s.logger.Info("work item created",
		zap.String("work_item_id", item.ID), zap.String("project_id", item.ProjectID), zap.String("user_id", actor.UserID))
	return item, nil
}

func validateUpdate(in UpdateWorkItemInput) error {
	if in.Title != nil {
		if err := validateRequired("title", *in.Title, MaxWorkItemTitle); err != nil {
			return err
		}
	}
	if in.Description != nil {
		if err := validateMaxLen("description", *in.Description, MaxWorkItemDescription); err != nil {
			return err
		}
	}
	if in.EstimatedHours != nil && *in.EstimatedHours <= 0 {
		return Validation("estimated hours must be greater than zero")
	}
	if in.ActualHours != nil && *in.ActualHours < 0 {
		return Validation("actual hours cannot be negative")
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return Validation("invalid priority: %s", *in.Priority)
	}
	return nil
}

// Update applies the present fields that differ from the stored item. When
// anything changed it saves the item, writes one Updated audit entry that
// lists every change and notifies the assignee. An update that changes
// nothing has no side effects.
func (s *WorkItemService) Update(ctx context.Context, actor Actor, id string, in UpdateWorkItemInput) (*models.WorkItem, error) {
	if err := validateUpdate(in); err != nil {
		return nil, err
	}
	item, _, err := s.itemFor(ctx, actor, id, access.WorkItemUpdate)
	if err != nil {
		return nil, err
	}

	var changes []string

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title != item.Title {
			changes = append(changes, fmt.Sprintf("Title changed from '%s' to '%s'", item.Title, title))
			item.Title = title
		}
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		if desc != item.Description {
			changes = append(changes, "Description updated")
			item.Description = desc
		}
	}
	if in.AssignedToID != nil && *in.AssignedToID != item.AssignedToID {
		newID := strings.TrimSpace(*in.AssignedToID)
		newName := unassigned
		if newID != "" {
			u, err := s.activeUser(ctx, newID)
			if err != nil {
				return nil, err
			}
			newName = u.FullName()
		}
		if newID != item.AssignedToID {
			changes = append(changes, fmt.Sprintf("Assignee changed from '%s' to '%s'",
				s.userName(ctx, item.AssignedToID), newName))
			item.AssignedToID = newID
		}
	}
	if in.Priority != nil && *in.Priority != item.Priority {
		changes = append(changes, fmt.Sprintf("Priority changed from '%s' to '%s'", item.Priority, *in.Priority))
		item.Priority = *in.Priority
	}
	switch {
	case in.ClearDueDate && item.DueDate != nil:
		changes = append(changes, "Due date changed")
		item.DueDate = nil
	case in.DueDate != nil && !timePtrEqual(in.DueDate, item.DueDate):
		changes = append(changes, "Due date changed")
		item.DueDate = utcPtr(in.DueDate)
	}
	if in.EstimatedHours != nil && *in.EstimatedHours != item.EstimatedHours {
		changes = append(changes, fmt.Sprintf("Estimated hours changed from %d to %d", item.EstimatedHours, *in.EstimatedHours))
		item.EstimatedHours = *in.EstimatedHours
	}
	if in.ActualHours != nil && *in.ActualHours != item.ActualHours {
		changes = append(changes, fmt.Sprintf("Actual hours changed from %d to %d", item.ActualHours, *in.ActualHours))
		item.ActualHours = *in.ActualHours
	}
	if in.Tags != nil {
		tags := cleanTags(*in.Tags)
		if !slices.Equal(tags, item.Tags) {
			changes = append(changes, "Tags updated")
			item.Tags = tags
		}
	}

	if len(changes) == 0 {
		return item, nil
	}

	item.UpdatedAt = s.now()
	if err := s.store.WorkItems().Update(ctx, item); err != nil {
		return nil, internal("update work item", err)
	}
	if err := s.audit(ctx, &models.WorkItemLog{
		WorkItemID:  item.ID,
		UserID:      actor.UserID,
		Action:      models.ActionUpdated,
		Description: strings.Join(changes, ", "),
	}); err != nil {
		return nil, err
	}
	s.notifier.NotifyWorkItemUpdated(ctx, item.ID, actor.UserID)
	return item, nil
}

// UpdateStatus moves an item to status. Any known status is accepted; the
// transition graph in models is advisory here. Moving into Done stamps
// CompletedAt and notifies the project manager, any other move notifies
// the assignee.
func (s *WorkItemService) UpdateStatus(ctx context.Context, actor Actor, id string, status models.WorkItemStatus) (*models.WorkItem, error) {
	if !status.Valid() {
		return nil, Validation("invalid status: %s", status)
	}
	item, _, err := s.itemFor(ctx, actor, id, access.WorkItemStatus)
	if err != nil {
		return nil, err
	}

	old := item.Status
	now := s.now()
	item.Status = status
	item.UpdatedAt = now
	if status == models.StatusDone {
		item.CompletedAt = &now
	}
	if err := s.store.WorkItems().Update(ctx, item); err != nil {
		return nil, internal("update work item status", err)
	}
	if err := s.audit(ctx, &models.WorkItemLog{
		WorkItemID:  item.ID,
		UserID:      actor.UserID,
		Action:      models.ActionStatusChanged,
		Description: fmt.Sprintf("Status changed from '%s' to '%s'", old, status),
		OldValue:    string(old),
		NewValue:    string(status),
		FieldName:   "Status",
	}); err != nil {
		return nil, err
	}

	if status == models.StatusDone {
		s.notifier.NotifyWorkItemCompleted(ctx, item.ID, actor.UserID)
	} else {
		s.notifier.NotifyWorkItemUpdated(ctx, item.ID, actor.UserID)
	}
	return item, nil
}

// Assign sets the assignee and notifies them.
func (s *WorkItemService) Assign(ctx context.Context, actor Actor, id, assigneeID string) (*models.WorkItem, error) {
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		return nil, Validation("assigned_to_id is required")
	}
	item, _, err := s.itemFor(ctx, actor, id, access.WorkItemAssign)
	if err != nil {
		return nil, err
	}
	assignee, err := s.activeUser(ctx, assigneeID)
	if err != nil {
		return nil, err
	}

	oldName := s.userName(ctx, item.AssignedToID)
	oldID := item.AssignedToID
	item.AssignedToID = assigneeID
	item.UpdatedAt = s.now()
	if err := s.store.WorkItems().Update(ctx, item); err != nil {
		return nil, internal("assign work item", err)
	}
	if err := s.audit(ctx, &models.WorkItemLog{
		WorkItemID:  item.ID,
		UserID:      actor.UserID,
		Action:      models.ActionAssigneeChanged,
		Description: fmt.Sprintf("Assignee changed from '%s' to '%s'", oldName, assignee.FullName()),
		OldValue:    oldID,
		NewValue:    assigneeID,
		FieldName:   "AssignedToId",
	}); err != nil {
		return nil, err
	}
	s.notifier.NotifyWorkItemAssigned(ctx, item.ID, assigneeID, actor.UserID)
	return item, nil
}

// AddComment appends a comment to the item.
func (s *WorkItemService) AddComment(ctx context.Context, actor Actor, id, text string) (*models.WorkItemComment, error) {
	if err := validateRequired("comment", text, MaxCommentLength); err != nil {
		return nil, err
	}
	item, _, err := s.itemFor(ctx, actor, id, access.WorkItemComment)
	if err != nil {
		return nil, err
	}

	now := s.now()
	comment := models.WorkItemComment{
		ID:        uuid.New().String(),
		UserID:    actor.UserID,
		Comment:   strings.TrimSpace(text),
		CreatedAt: now,
	}
	item.Comments = append(item.Comments, comment)
	item.UpdatedAt = now
	if err := s.store.WorkItems().Update(ctx, item); err != nil {
		return nil, internal("add comment", err)
	}
	if err := s.audit(ctx, &models.WorkItemLog{
		WorkItemID:  item.ID,
		UserID:      actor.UserID,
		Action:      models.ActionCommentAdded,
		Description: "Comment added",
		Metadata:    map[string]any{"commentId": comment.ID},
	}); err != nil {
		return nil, err
	}
	return &comment, nil
}

// Delete records a Deleted audit entry and removes the item.
func (s *WorkItemService) Delete(ctx context.Context, actor Actor, id string) error {
	item, _, err := s.itemFor(ctx, actor, id, access.WorkItemDelete)
	if err != nil {
		return err
	}
	if err := s.audit(ctx, &models.WorkItemLog{
		WorkItemID:  item.ID,
		UserID:      actor.UserID,
		Action:      models.ActionDeleted,
		Description: "WorkItem deleted",
	}); err != nil {
		return err
	}
	if err := s.store.WorkItems().Delete(ctx, item.ID); err != nil {
		return internal("delete work item", err)
	}
	s.logger.Info("work item deleted", zap.String("work_item_id", item.ID), zap.String("user_id", actor.UserID))
	return nil
}

// Get returns one work item.
func (s *WorkItemService) Get(ctx context.Context, actor Actor, id string) (*models.WorkItem, error) {
	item, _, err := s.itemFor(ctx, actor, id, access.WorkItemRead)
	return item, err
}

// Logs returns the audit trail of a work item, newest first.
func (s *WorkItemService) Logs(ctx context.Context, actor Actor, id string) ([]*models.WorkItemLog, error) {
	if _, _, err := s.itemFor(ctx, actor, id, access.WorkItemRead); err != nil {
		return nil, err
	}
	logs, err := s.store.WorkItemLogs().ListByWorkItem(ctx, id)
	if err != nil {
		return nil, internal("list work item logs", err)
	}
	return logs, nil
}

// List returns items matching filter that the caller can see.
func (s *WorkItemService) List(ctx context.Context, actor Actor, filter storage.WorkItemFilter) ([]*models.WorkItem, error) {
	if filter.ProjectID != "" {
		if _, err := s.projectFor(ctx, actor, filter.ProjectID, access.WorkItemRead); err != nil {
			return nil, err
		}
	}
	items, err := s.store.WorkItems().List(ctx, filter)
	if err != nil {
		return nil, internal("list work items", err)
	}
	if filter.ProjectID != "" {
		return items, nil
	}
	return s.visible(ctx, actor, items)
}

// ByProject returns the items of one project.
func (s *WorkItemService) ByProject(ctx context.Context, actor Actor, projectID string) ([]*models.WorkItem, error) {
	return s.List(ctx, actor, storage.WorkItemFilter{ProjectID: projectID})
}

// Mine returns the items assigned to the caller.
func (s *WorkItemService) Mine(ctx context.Context, actor Actor) ([]*models.WorkItem, error) {
	items, err := s.store.WorkItems().List(ctx, storage.WorkItemFilter{AssignedToID: actor.UserID})
	if err != nil {
		return nil, internal("list assigned work items", err)
	}
	return items, nil
}

// Overdue returns open items whose due date has passed.
func (s *WorkItemService) Overdue(ctx context.Context, actor Actor) ([]*models.WorkItem, error) {
	now := s.now()
	items, err := s.List(ctx, actor, storage.WorkItemFilter{
		Statuses: []models.WorkItemStatus{models.StatusToDo, models.StatusInProgress},
		DueTo:    &now,
	})
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, it := range items {
		if it.IsOverdue(now) {
			out = append(out, it)
		}
	}
	return out, nil
}

// DueSoon returns open items due within the next days. days <= 0 uses
// DefaultDueSoonDays.
func (s *WorkItemService) DueSoon(ctx context.Context, actor Actor, days int) ([]*models.WorkItem, error) {
	if days <= 0 {
		days = DefaultDueSoonDays
	}
	now := s.now()
	until := now.AddDate(0, 0, days)
	return s.List(ctx, actor, storage.WorkItemFilter{
		Statuses: []models.WorkItemStatus{models.StatusToDo, models.StatusInProgress},
		DueFrom:  &now,
		DueTo:    &until,
	})
}

// Stats counts items by status and priority. Only administrators may omit
// the project.
func (s *WorkItemService) Stats(ctx context.Context, actor Actor, projectID string) (*WorkItemStats, error) {
	if projectID == "" {
		if !actor.IsAdmin() {
			return nil, Validation("project_id is required")
		}
	} else if _, err := s.projectFor(ctx, actor, projectID, access.WorkItemRead); err != nil {
		return nil, err
	}

	byStatus, err := s.store.WorkItems().CountByStatus(ctx, projectID)
	if err != nil {
		return nil, internal("count work items by status", err)
	}
	byPriority, err := s.store.WorkItems().CountByPriority(ctx, projectID)
	if err != nil {
		return nil, internal("count work items by priority", err)
	}
	stats := &WorkItemStats{ByStatus: byStatus, ByPriority: byPriority}
	for _, c := range byStatus {
		stats.Total += c
	}
	return stats, nil
}

// visible drops items on projects the caller cannot access, keeping items
// assigned to the caller.
func (s *WorkItemService) visible(ctx context.Context, actor Actor, items []*models.WorkItem) ([]*models.WorkItem, error) {
	if actor.IsAdmin() {
		return items, nil
	}
	projects, err := s.store.Projects().ListForUser(ctx, actor.UserID)
	if err != nil {
		return nil, internal("list user projects", err)
	}
	allowed := make(map[string]struct{}, len(projects))
	for _, p := range projects {
		allowed[p.ID] = struct{}{}
	}
	out := make([]*models.WorkItem, 0, len(items))
	for _, it := range items {
		if _, ok := allowed[it.ProjectID]; ok || it.AssignedToID == actor.UserID {
			out = append(out, it)
		}
	}
	return out, nil
}
