package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahmetcdevelopment/task-management-api/internal/access"
	"github.com/ahmetcdevelopment/task-management-api/internal/metrics"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/realtime"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

// DefaultRetentionDays is the cleanup age used when none is given.
const DefaultRetentionDays = 30

// DefaultDispatchTimeout bounds one asynchronous external dispatch.
const DefaultDispatchTimeout = 10 * time.Second

// Bulk actions accepted by NotificationService.BulkAction. Matching is
// case-insensitive.
const (
	BulkMarkAsRead = "markasread"
	BulkDelete     = "delete"
)

// Pusher publishes real-time events to a connection group.
type Pusher interface {
	Publish(ctx context.Context, key realtime.GroupKey, name string, data any) error
}

// Dispatcher delivers a persisted notification to external channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *models.Notification) error
}

// RealtimeNotification is the payload of a ReceiveNotification event.
type RealtimeNotification struct {
	ID        string                  `json:"id"`
	UserID    string                  `json:"user_id"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Type      models.NotificationType `json:"type"`
	CreatedAt time.Time               `json:"created_at"`
	ActionURL string                  `json:"action_url,omitempty"`
	Metadata  map[string]any          `json:"metadata,omitempty"`
}

func toRealtime(n *models.Notification) RealtimeNotification {
	return RealtimeNotification{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		CreatedAt: n.CreatedAt,
		ActionURL: n.ActionURL,
		Metadata:  n.Metadata,
	}
}

// CreateNotificationInput is the payload of an explicit notification.
type CreateNotificationInput struct {
	UserID            string                  `json:"user_id"`
	Title             string                  `json:"title"`
	Message           string                  `json:"message"`
	Type              models.NotificationType `json:"type"`
	RelatedEntityID   string                  `json:"related_entity_id"`
	RelatedEntityType string                  `json:"related_entity_type"`
	ActionURL         string                  `json:"action_url"`
	Metadata          map[string]any          `json:"metadata"`
}

// NotificationSummary aggregates a user's notifications.
type NotificationSummary struct {
	TotalNotifications  int64                             `json:"total_notifications"`
	UnreadNotifications int64                             `json:"unread_notifications"`
	ReadNotifications   int64                             `json:"read_notifications"`
	NotificationsByType map[models.NotificationType]int64 `json:"notifications_by_type"`
}

// NotificationService persists notifications and delivers them.
type NotificationService struct {
	store           storage.Storage
	logger          *zap.Logger
	pusher          Pusher
	dispatcher      Dispatcher
	dispatchTimeout time.Duration
	now             func() time.Time

	wg sync.WaitGroup
}

// NotificationOption configures a NotificationService.
type NotificationOption func(*NotificationService)

// WithPusher enables real-time delivery.
func WithPusher(p Pusher) NotificationOption {
	return func(s *NotificationService) { s.pusher = p }
}

// WithDispatcher enables external delivery. timeout <= 0 uses the default.
func WithDispatcher(d Dispatcher, timeout time.Duration) NotificationOption {
	return func(s *NotificationService) {
		s.dispatcher = d
		if timeout > 0 {
			s.dispatchTimeout = timeout
		}
	}
}

// NewNotificationService creates a notification service.
func NewNotificationService(store storage.Storage, logger *zap.Logger, opts ...NotificationOption) *NotificationService {
	s := &NotificationService{
		store:           store,
		logger:          logger,
		dispatchTimeout: DefaultDispatchTimeout,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until in-flight external dispatches finish.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

// persist stores n and counts it.
func (s *NotificationService) persist(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = s.now()
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	if err := s.store.Notifications().Create(ctx, n); err != nil {
		return err
	}
	metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
	return nil
}

// publish pushes n and the fresh unread count to the recipient, then hands
// it to external channels. Nothing here fails the caller.
func (s *NotificationService) publish(ctx context.Context, n *models.Notification) {
	if s.pusher != nil {
		if err := s.pusher.Publish(ctx, realtime.UserGroup(n.UserID), realtime.EventReceiveNotification, toRealtime(n)); err != nil {
			s.logger.Warn("push notification failed",
				zap.String("notification_id", n.ID), zap.String("user_id", n.UserID), zap.Error(err))
		}
		s.pushUnreadCount(ctx, n.UserID)
	}
	s.dispatch(n)
}

func (s *NotificationService) pushUnreadCount(ctx context.Context, userID string) {
	if s.pusher == nil {
		return
	}
	count, err := s.store.Notifications().CountUnread(ctx, userID)
	if err != nil {
		s.logger.Warn("count unread notifications failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.pushCount(ctx, userID, count)
}

func (s *NotificationService) pushCount(ctx context.Context, userID string, count int64) {
	if s.pusher == nil {
		return
	}
	if err := s.pusher.Publish(ctx, realtime.UserGroup(userID), realtime.EventUnreadNotificationCount, count); err != nil {
		s.logger.Warn("push unread count failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// dispatch runs external delivery detached from the request context.
func (s *NotificationService) dispatch(n *models.Notification) {
	if s.dispatcher == nil {
		return
	}
	snapshot := *n
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
		defer cancel()
		if err := s.dispatcher.Dispatch(ctx, &snapshot); err != nil {
			s.logger.Warn("external notification dispatch failed",
				zap.String("notification_id", snapshot.ID), zap.Error(err))
		}
	}()
}

// send is the side-effect path used by the fan-out helpers. Persistence
// errors are logged and swallowed.
func (s *NotificationService) send(ctx context.Context, n *models.Notification) {
	if err := s.persist(ctx, n); err != nil {
		s.logger.Error("persist notification failed",
			zap.String("user_id", n.UserID), zap.String("type", string(n.Type)), zap.Error(err))
		return
	}
	s.publish(ctx, n)
}

func (s *NotificationService) loadUser(ctx context.Context, id string) *models.User {
	if id == "" {
		return nil
	}
	u, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		s.logger.Warn("notification fan-out: load user", zap.String("user_id", id), zap.Error(err))
		return nil
	}
	return u
}

func (s *NotificationService) loadWorkItem(ctx context.Context, id string) *models.WorkItem {
	w, err := s.store.WorkItems().GetByID(ctx, id)
	if err != nil {
		s.logger.Warn("notification fan-out: load work item", zap.String("work_item_id", id), zap.Error(err))
		return nil
	}
	return w
}

func (s *NotificationService) loadProject(ctx context.Context, id string) *models.Project {
	p, err := s.store.Projects().GetByID(ctx, id)
	if err != nil {
		s.logger.Warn("notification fan-out: load project", zap.String("project_id", id), zap.Error(err))
		return nil
	}
	return p
}

func workItemNotification(userID string, typ models.NotificationType, title, message string, w *models.WorkItem, meta map[string]any) *models.Notification {
	meta["workItemId"] = w.ID
	meta["projectId"] = w.ProjectID
	return &models.Notification{
		UserID:            userID,
		Title:             title,
		Message:           message,
		Type:              typ,
		RelatedEntityID:   w.ID,
		RelatedEntityType: models.EntityWorkItem,
		ActionURL:         "/workitems/" + w.ID,
		Metadata:          meta,
	}
}

func projectNotification(userID string, typ models.NotificationType, title, message, actionURL string, p *models.Project, meta map[string]any) *models.Notification {
	meta["projectId"] = p.ID
	return &models.Notification{
		UserID:            userID,
		Title:             title,
		Message:           message,
		Type:              typ,
		RelatedEntityID:   p.ID,
		RelatedEntityType: models.EntityProject,
		ActionURL:         actionURL,
		Metadata:          meta,
	}
}

// NotifyWorkItemAssigned tells the assignee about a new assignment.
func (s *NotificationService) NotifyWorkItemAssigned(ctx context.Context, workItemID, assigneeID, actorID string) {
	if assigneeID == "" || assigneeID == actorID {
		return
	}
	w := s.loadWorkItem(ctx, workItemID)
	actor := s.loadUser(ctx, actorID)
	if w == nil || actor == nil {
		return
	}
	s.send(ctx, workItemNotification(assigneeID, models.NotificationTaskAssigned,
		"New WorkItem Assigned",
		fmt.Sprintf("You have been assigned to work item: %s by %s", w.Title, actor.FullName()),
		w, map[string]any{"assignedById": actorID}))
}

// NotifyWorkItemUpdated tells the current assignee about a change.
func (s *NotificationService) NotifyWorkItemUpdated(ctx context.Context, workItemID, actorID string) {
	w := s.loadWorkItem(ctx, workItemID)
	actor := s.loadUser(ctx, actorID)
	if w == nil || actor == nil {
		return
	}
	if w.AssignedToID == "" || w.AssignedToID == actorID {
		return
	}
	s.send(ctx, workItemNotification(w.AssignedToID, models.NotificationTaskUpdated,
		"WorkItem Updated",
		fmt.Sprintf("Work item '%s' has been updated by %s", w.Title, actor.FullName()),
		w, map[string]any{"updatedById": actorID}))
}

// NotifyWorkItemCompleted tells the project manager that an item is done.
func (s *NotificationService) NotifyWorkItemCompleted(ctx context.Context, workItemID, actorID string) {
	w := s.loadWorkItem(ctx, workItemID)
	actor := s.loadUser(ctx, actorID)
	if w == nil || actor == nil {
		return
	}
	p := s.loadProject(ctx, w.ProjectID)
	if p == nil || p.ManagerID == actorID {
		return
	}
	s.send(ctx, workItemNotification(p.ManagerID, models.NotificationTaskCompleted,
		"WorkItem Completed",
		fmt.Sprintf("Work item '%s' has been completed by %s", w.Title, actor.FullName()),
		w, map[string]any{"completedById": actorID}))
}

// NotifyProjectCreated tells the team and the manager about a new project.
func (s *NotificationService) NotifyProjectCreated(ctx context.Context, projectID, actorID string) {
	p := s.loadProject(ctx, projectID)
	actor := s.loadUser(ctx, actorID)
	if p == nil || actor == nil {
		return
	}
	url := "/projects/" + p.ID
	for _, memberID := range p.TeamMemberIDs {
		if memberID == actorID || memberID == p.ManagerID {
			continue
		}
		s.send(ctx, projectNotification(memberID, models.NotificationProjectCreated,
			"Added to New Project",
			fmt.Sprintf("You have been added to project '%s' by %s", p.Name, actor.FullName()),
			url, p, map[string]any{"createdById": actorID}))
	}
	if p.ManagerID != "" && p.ManagerID != actorID {
		s.send(ctx, projectNotification(p.ManagerID, models.NotificationProjectCreated,
			"Assigned as Project Manager",
			fmt.Sprintf("You have been assigned as manager for project '%s'", p.Name),
			url, p, map[string]any{"createdById": actorID}))
	}
}

// NotifyProjectUpdated tells the team and the manager about a change.
func (s *NotificationService) NotifyProjectUpdated(ctx context.Context, projectID, actorID string) {
	p := s.loadProject(ctx, projectID)
	actor := s.loadUser(ctx, actorID)
	if p == nil || actor == nil {
		return
	}
	url := "/projects/" + p.ID
	msg := fmt.Sprintf("Project '%s' has been updated by %s", p.Name, actor.FullName())
	for _, memberID := range p.TeamMemberIDs {
		if memberID == actorID {
			continue
		}
		s.send(ctx, projectNotification(memberID, models.NotificationProjectUpdated,
			"Project Updated", msg, url, p, map[string]any{"updatedById": actorID}))
	}
	if p.ManagerID != "" && p.ManagerID != actorID && !p.IsMember(p.ManagerID) {
		s.send(ctx, projectNotification(p.ManagerID, models.NotificationProjectUpdated,
			"Project Updated", msg, url, p, map[string]any{"updatedById": actorID}))
	}
}

// NotifyTeamMemberAdded tells a user they joined a project.
func (s *NotificationService) NotifyTeamMemberAdded(ctx context.Context, projectID, memberID, actorID string) {
	p := s.loadProject(ctx, projectID)
	actor := s.loadUser(ctx, actorID)
	if p == nil || actor == nil {
		return
	}
	s.send(ctx, projectNotification(memberID, models.NotificationTeamMemberAdded,
		"Added to Project",
		fmt.Sprintf("You have been added to project '%s' by %s", p.Name, actor.FullName()),
		"/projects/"+p.ID, p, map[string]any{"addedById": actorID}))
}

// NotifyTeamMemberRemoved tells a user they left a project.
func (s *NotificationService) NotifyTeamMemberRemoved(ctx context.Context, projectID, memberID, actorID string) {
	p := s.loadProject(ctx, projectID)
	actor := s.loadUser(ctx, actorID)
	if p == nil || actor == nil {
		return
	}
	s.send(ctx, projectNotification(memberID, models.NotificationTeamMemberRemoved,
		"Removed from Project",
		fmt.Sprintf("You have been removed from project '%s' by %s", p.Name, actor.FullName()),
		"/projects", p, map[string]any{"removedById": actorID}))
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor Actor, unreadOnly bool, limit int) ([]*models.Notification, error) {
	list, err := s.store.Notifications().ListByUser(ctx, actor.UserID, unreadOnly, limit)
	if err != nil {
		return nil, internal("list notifications", err)
	}
	return list, nil
}

// UnreadCount returns the caller's unread count.
func (s *NotificationService) UnreadCount(ctx context.Context, actor Actor) (int64, error) {
	n, err := s.store.Notifications().CountUnread(ctx, actor.UserID)
	if err != nil {
		return 0, internal("count unread notifications", err)
	}
	return n, nil
}

// Summary aggregates the caller's notifications.
func (s *NotificationService) Summary(ctx context.Context, actor Actor) (*NotificationSummary, error) {
	byType, err := s.store.Notifications().CountByType(ctx, actor.UserID)
	if err != nil {
		return nil, internal("count notifications by type", err)
	}
	unread, err := s.store.Notifications().CountUnread(ctx, actor.UserID)
	if err != nil {
		return nil, internal("count unread notifications", err)
	}
	var total int64
	for _, c := range byType {
		total += c
	}
	return &NotificationSummary{
		TotalNotifications:  total,
		UnreadNotifications: unread,
		ReadNotifications:   total - unread,
		NotificationsByType: byType,
	}, nil
}

func (s *NotificationService) validateInput(in *CreateNotificationInput) error {
	if strings.TrimSpace(in.UserID) == "" {
		return Validation("user_id is required")
	}
	if err := validateRequired("title", in.Title, MaxNotificationTitle); err != nil {
		return err
	}
	if err := validateRequired("message", in.Message, MaxNotificationMessage); err != nil {
		return err
	}
	if in.Type == "" {
		in.Type = models.NotificationInfo
	}
	if !in.Type.Valid() {
		return Validation("invalid notification type: %s", in.Type)
	}
	return nil
}

func (s *NotificationService) create(ctx context.Context, in CreateNotificationInput) (*models.Notification, error) {
	if err := s.validateInput(&in); err != nil {
		return nil, err
	}
	recipient, err := s.store.Users().GetByID(ctx, in.UserID)
	if err != nil {
		return nil, internal("get recipient", err)
	}
	if recipient == nil {
		return nil, NotFound("user not found")
	}

	n := &models.Notification{
		UserID:            in.UserID,
		Title:             strings.TrimSpace(in.Title),
		Message:           strings.TrimSpace(in.Message),
		Type:              in.Type,
		RelatedEntityID:   in.RelatedEntityID,
		RelatedEntityType: in.RelatedEntityType,
		ActionURL:         in.ActionURL,
		Metadata:          in.Metadata,
	}
	if err := s.persist(ctx, n); err != nil {
		return nil, internal("create notification", err)
	}
	s.publish(ctx, n)
	return n, nil
}

// Create stores and delivers an explicit notification.
func (s *NotificationService) Create(ctx context.Context, actor Actor, in CreateNotificationInput) (*models.Notification, error) {
	if err := authorize(actor, access.NotificationCreate, access.None); err != nil {
		return nil, err
	}
	return s.create(ctx, in)
}

// TestSend is Create restricted to administrators.
func (s *NotificationService) TestSend(ctx context.Context, actor Actor, in CreateNotificationInput) (*models.Notification, error) {
	if err := authorize(actor, access.NotificationTestSend, access.None); err != nil {
		return nil, err
	}
	return s.create(ctx, in)
}

// owned loads a notification and checks the caller may act on it.
func (s *NotificationService) owned(ctx context.Context, actor Actor, id string, action access.Action) (*models.Notification, error) {
	n, err := s.store.Notifications().GetByID(ctx, id)
	if err != nil {
		return nil, internal("get notification", err)
	}
	if n == nil {
		return nil, NotFound("notification not found")
	}
	if err := authorize(actor, action, access.Ownership{IsSelf: n.UserID == actor.UserID}); err != nil {
		return nil, err
	}
	return n, nil
}

// MarkAsRead marks one notification read and pushes the recipient's new
// unread count. Repeated calls keep the first read time.
func (s *NotificationService) MarkAsRead(ctx context.Context, actor Actor, id string) (*models.Notification, error) {
	n, err := s.owned(ctx, actor, id, access.NotificationMark)
	if err != nil {
		return nil, err
	}
	if err := s.store.Notifications().MarkAsRead(ctx, id, s.now()); err != nil {
		return nil, internal("mark notification read", err)
	}
	updated, err := s.store.Notifications().GetByID(ctx, id)
	if err != nil {
		return nil, internal("get notification", err)
	}
	if updated == nil {
		return nil, NotFound("notification not found")
	}
	s.pushUnreadCount(ctx, n.UserID)
	return updated, nil
}

// UnreadCountFor returns the unread count of the caller after a hub
// operation. It exists so the hub can reply on the calling connection.
func (s *NotificationService) UnreadCountFor(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.Notifications().CountUnread(ctx, userID)
	if err != nil {
		return 0, internal("count unread notifications", err)
	}
	return n, nil
}

// MarkAllAsRead marks every unread notification of the caller and returns
// how many changed.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, actor Actor) (int64, error) {
	changed, err := s.store.Notifications().MarkAllAsRead(ctx, actor.UserID, s.now())
	if err != nil {
		return 0, internal("mark all notifications read", err)
	}
	s.pushCount(ctx, actor.UserID, 0)
	return changed, nil
}

// Delete removes one notification.
func (s *NotificationService) Delete(ctx context.Context, actor Actor, id string) error {
	if _, err := s.owned(ctx, actor, id, access.NotificationDelete); err != nil {
		return err
	}
	if err := s.store.Notifications().Delete(ctx, id); err != nil {
		return internal("delete notification", err)
	}
	return nil
}

// BulkAction applies markasread or delete to each id and returns how many
// succeeded. Missing or foreign ids are skipped.
func (s *NotificationService) BulkAction(ctx context.Context, actor Actor, ids []string, action string) (int, error) {
	action = strings.ToLower(strings.TrimSpace(action))
	if action != BulkMarkAsRead && action != BulkDelete {
		return 0, Validation("invalid action %q, use markAsRead or delete", action)
	}
	if len(ids) == 0 {
		return 0, Validation("notification_ids is required")
	}

	processed := 0
	for _, id := range ids {
		var err error
		if action == BulkMarkAsRead {
			_, err = s.owned(ctx, actor, id, access.NotificationMark)
			if err == nil {
				err = s.store.Notifications().MarkAsRead(ctx, id, s.now())
			}
		} else {
			err = s.Delete(ctx, actor, id)
		}
		if err != nil {
			if KindOf(err) == KindInternal {
				return processed, err
			}
			continue
		}
		processed++
	}

	if action == BulkMarkAsRead {
		s.pushUnreadCount(ctx, actor.UserID)
	}
	return processed, nil
}

// Cleanup deletes notifications older than days. days <= 0 uses the
// default retention.
func (s *NotificationService) Cleanup(ctx context.Context, actor Actor, days int) (int64, error) {
	if err := authorize(actor, access.NotificationCleanup, access.None); err != nil {
		return 0, err
	}
	return s.DeleteOld(ctx, days)
}

// DeleteOld deletes notifications older than days without an authorization
// check. The retention sweeper calls it.
func (s *NotificationService) DeleteOld(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := s.now().AddDate(0, 0, -days)
	deleted, err := s.store.Notifications().DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, internal("delete old notifications", err)
	}
	metrics.RetentionDeleted.Add(float64(deleted))
	if deleted > 0 {
		s.logger.Info("old notifications deleted", zap.Int("days", days), zap.Int64("count", deleted))
	}
	return deleted, nil
}

// RunRetention deletes old notifications every interval until ctx is done.
func (s *NotificationService) RunRetention(ctx context.Context, days int, interval time.Duration) error {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.DeleteOld(ctx, days); err != nil {
			s.logger.Error("notification retention sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
