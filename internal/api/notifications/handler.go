// Package notifications serves the /api/notifications endpoints.
package notifications

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ahmetcdevelopment/task-management-api/internal/api/middleware"
	"github.com/ahmetcdevelopment/task-management-api/internal/api/respond"
	"github.com/ahmetcdevelopment/task-management-api/internal/service"
)

// DefaultLimit caps list responses when ?limit= is absent.
const DefaultLimit = 50

// Handler handles notification endpoints.
type Handler struct {
	notifications *service.NotificationService
}

// NewHandler creates a new notification handler.
func NewHandler(notifications *service.NotificationService) *Handler {
	return &Handler{notifications: notifications}
}

// BulkActionRequest is the body of POST /bulk-action.
type BulkActionRequest struct {
	NotificationIDs []string `json:"notification_ids"`
	Action          string   `json:"action"`
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, service.Validation("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, unreadOnly bool) {
	limit, err := intParam(r, "limit", DefaultLimit)
	if err != nil {
		respond.Error(w, err)
		return
	}

	list, err := h.notifications.List(r.Context(), middleware.Actor(r.Context()), unreadOnly, limit)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, list)
}

// List returns the caller's notifications, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// Unread returns the caller's unread notifications.
func (h *Handler) Unread(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

// UnreadCount returns the number of unread notifications.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.notifications.UnreadCount(r.Context(), middleware.Actor(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, map[string]int64{"count": count})
}

// Summary returns totals by read state and type.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.notifications.Summary(r.Context(), middleware.Actor(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, sum)
}

// Create sends a notification to a user.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateNotificationInput
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	n, err := h.notifications.Create(r.Context(), middleware.Actor(r.Context()), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, n)
}

// TestSend sends a test notification through every channel.
func (h *Handler) TestSend(w http.ResponseWriter, r *http.Request) {
	var req service.CreateNotificationInput
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	n, err := h.notifications.TestSend(r.Context(), middleware.Actor(r.Context()), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, map[string]string{
		"message":         "Test notification sent",
		"notification_id": n.ID,
	})
}

// MarkAsRead marks one notification read.
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.MarkAsRead(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, n)
}

// MarkAllAsRead marks every unread notification of the caller read.
func (h *Handler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	changed, err := h.notifications.MarkAllAsRead(r.Context(), middleware.Actor(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, map[string]any{
		"message": "All notifications marked as read",
		"updated": changed,
	})
}

// Delete removes one notification.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.Delete(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id")); err != nil {
		respond.Error(w, err)
		return
	}
	respond.NoContent(w)
}

// BulkAction marks or deletes several notifications. Ids the caller does
// not own are skipped.
func (h *Handler) BulkAction(w http.ResponseWriter, r *http.Request) {
	var req BulkActionRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	processed, err := h.notifications.BulkAction(r.Context(), middleware.Actor(r.Context()), req.NotificationIDs, req.Action)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, map[string]any{
		"message":         fmt.Sprintf("%d notifications processed", processed),
		"processed_count": processed,
	})
}

// Cleanup deletes notifications older than ?daysOld= days.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "daysOld", service.DefaultRetentionDays)
	if err != nil {
		respond.Error(w, err)
		return
	}
	if days == 0 {
		days = service.DefaultRetentionDays
	}

	deleted, err := h.notifications.Cleanup(r.Context(), middleware.Actor(r.Context()), days)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, map[string]any{
		"message": fmt.Sprintf("Notifications older than %d days cleaned up", days),
		"deleted": deleted,
	})
}
