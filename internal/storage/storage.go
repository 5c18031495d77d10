// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"time"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
)

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error
	// EnsureAdminUser creates default admin if no users exist using secure bootstrap credentials.
	EnsureAdminUser() error

	// Repository accessors
	Users() UserRepository
	Projects() ProjectRepository
	WorkItems() WorkItemRepository
	WorkItemLogs() WorkItemLogRepository
	Notifications() NotificationRepository
	Tokens() TokenRepository
}

// UserFilter narrows user listings. Zero values are ignored.
type UserFilter struct {
	Role       models.Role
	IsActive   *bool
	Department string
	// Search matches first name, last name or email.
	Search string
}

// UserRepository defines operations for user management.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter UserFilter) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
}

// ProjectRepository defines operations for project management.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	// Update replaces the project row and its team.
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Project, error)
	ListByStatus(ctx context.Context, statuses ...models.ProjectStatus) ([]*models.Project, error)
	ListByManager(ctx context.Context, managerID string) ([]*models.Project, error)
	// ListForUser returns projects the user manages or is a member of.
	ListForUser(ctx context.Context, userID string) ([]*models.Project, error)
	AddMember(ctx context.Context, projectID, userID string) error
	RemoveMember(ctx context.Context, projectID, userID string) error
}

// WorkItemFilter narrows work item listings. Zero values are ignored.
type WorkItemFilter struct {
	ProjectID    string
	AssignedToID string
	Statuses     []models.WorkItemStatus
	Priority     models.Priority
	Tag          string
	DueFrom      *time.Time
	DueTo        *time.Time
	// Search matches title or description.
	Search string
}

// WorkItemRepository defines operations for work item management.
type WorkItemRepository interface {
	Create(ctx context.Context, item *models.WorkItem) error
	GetByID(ctx context.Context, id string) (*models.WorkItem, error)
	// Update replaces every column of the item, comments included.
	Update(ctx context.Context, item *models.WorkItem) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter WorkItemFilter) ([]*models.WorkItem, error)
	CountByStatus(ctx context.Context, projectID string) (map[models.WorkItemStatus]int64, error)
	CountByPriority(ctx context.Context, projectID string) (map[models.Priority]int64, error)
	// HasActiveInProject reports whether any item is ToDo or InProgress.
	HasActiveInProject(ctx context.Context, projectID string) (bool, error)
}

// WorkItemLogRepository is append-only.
type WorkItemLogRepository interface {
	Create(ctx context.Context, entry *models.WorkItemLog) error
	// ListByWorkItem returns entries newest first.
	ListByWorkItem(ctx context.Context, workItemID string) ([]*models.WorkItemLog, error)
}

// NotificationRepository defines operations for persisted notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	// ListByUser returns newest first. limit <= 0 means no limit.
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	CountByType(ctx context.Context, userID string) (map[models.NotificationType]int64, error)
	// MarkAsRead sets is_read and keeps any existing read_at.
	MarkAsRead(ctx context.Context, id string, readAt time.Time) error
	MarkAllAsRead(ctx context.Context, userID string, readAt time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// TokenRepository defines operations for refresh token management.
type TokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
