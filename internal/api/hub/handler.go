// Package hub exposes the real-time notification hub over Server-Sent
// Events. Clients open a stream with GET and invoke hub operations with
// POST requests that name their connection id.
package hub

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ahmetcdevelopment/task-management-api/internal/api/middleware"
	"github.com/ahmetcdevelopment/task-management-api/internal/api/respond"
	"github.com/ahmetcdevelopment/task-management-api/internal/realtime"
	"github.com/ahmetcdevelopment/task-management-api/internal/service"
)

// DefaultHeartbeat is the interval between heartbeat events.
const DefaultHeartbeat = 30 * time.Second

// reconnectDelay is sent to clients as the SSE retry hint.
const reconnectDelay = 3000

// Handler serves the notification hub.
type Handler struct {
	hub           *realtime.Hub
	notifications *service.NotificationService
	projects      *service.ProjectService
	logger        *zap.Logger
	heartbeat     time.Duration
}

// NewHandler creates a hub handler. A non-positive heartbeat uses DefaultHeartbeat.
func NewHandler(hub *realtime.Hub, notifications *service.NotificationService, projects *service.ProjectService, logger *zap.Logger, heartbeat time.Duration) *Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Handler{
		hub:           hub,
		notifications: notifications,
		projects:      projects,
		logger:        logger,
		heartbeat:     heartbeat,
	}
}

// Stream opens an event stream for the caller. The first events are the
// connection id and the current unread count.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.Fail(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	actor := middleware.Actor(ctx)

	conn, err := h.hub.Connect(actor.UserID, actor.Role)
	if err != nil {
		respond.Error(w, err)
		return
	}
	defer h.hub.Disconnect(conn)

	if count, err := h.notifications.UnreadCountFor(ctx, actor.UserID); err != nil {
		h.logger.Warn("unread count for new connection", zap.String("user_id", actor.UserID), zap.Error(err))
	} else {
		h.push(conn.ID, realtime.EventUnreadNotificationCount, count)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sse := NewSSEWriter(w, flusher)
	if err := sse.SendRetry(reconnectDelay); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case ev := <-conn.Events():
			if err := sse.SendEvent(ev.Name, ev.Data); err != nil {
				h.logger.Debug("sse write failed", zap.String("connection_id", conn.ID), zap.Error(err))
				return
			}
		case t := <-ticker.C:
			if err := sse.SendEvent(realtime.EventHeartbeat, map[string]time.Time{"time": t.UTC()}); err != nil {
				return
			}
		}
	}
}

// connFor returns the connection named in the URL if it belongs to the caller.
func (h *Handler) connFor(w http.ResponseWriter, r *http.Request) (*realtime.Conn, bool) {
	conn, ok := h.hub.Conn(chi.URLParam(r, "connectionId"))
	if !ok {
		respond.Fail(w, http.StatusNotFound, "connection not found")
		return nil, false
	}
	if conn.UserID != middleware.GetUserID(r.Context()) {
		respond.Fail(w, http.StatusForbidden, "connection belongs to another user")
		return nil, false
	}
	return conn, true
}

// push sends an operation result to a connection. The client may have
// disconnected since the request started, which only costs the event.
func (h *Handler) push(connID, name string, data any) {
	if err := h.hub.SendTo(connID, name, data); err != nil {
		h.logger.Debug("push to connection failed",
			zap.String("connection_id", connID), zap.String("event", name), zap.Error(err))
	}
}

func accepted(w http.ResponseWriter) {
	respond.JSON(w, http.StatusAccepted, map[string]string{"message": "accepted"})
}

// MarkRead marks a notification read and confirms on the connection.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connFor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "notificationId")
	if _, err := h.notifications.MarkAsRead(r.Context(), middleware.Actor(r.Context()), id); err != nil {
		respond.Error(w, err)
		return
	}
	h.push(conn.ID, realtime.EventNotificationMarkedAsRead, id)
	accepted(w)
}

// MarkAllRead marks every notification read and confirms on the connection.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connFor(w, r)
	if !ok {
		return
	}
	if _, err := h.notifications.MarkAllAsRead(r.Context(), middleware.Actor(r.Context())); err != nil {
		respond.Error(w, err)
		return
	}
	h.push(conn.ID, realtime.EventAllNotificationsMarkedAsRead, nil)
	accepted(w)
}

// UnreadCount pushes the current unread count to the connection.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connFor(w, r)
	if !ok {
		return
	}
	count, err := h.notifications.UnreadCount(r.Context(), middleware.Actor(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}
	h.push(conn.ID, realtime.EventUnreadNotificationCount, count)
	accepted(w)
}

// JoinProject subscribes the connection to a project group the caller can see.
func (h *Handler) JoinProject(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connFor(w, r)
	if !ok {
		return
	}
	projectID := chi.URLParam(r, "projectId")
	allowed, err := h.projects.CheckAccess(r.Context(), middleware.Actor(r.Context()), projectID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	if !allowed {
		respond.Fail(w, http.StatusForbidden, "you do not have access to this project")
		return
	}
	if err := h.hub.Join(conn.ID, realtime.ProjectGroup(projectID)); err != nil {
		respond.Error(w, err)
		return
	}
	accepted(w)
}

// LeaveProject unsubscribes the connection from a project group.
func (h *Handler) LeaveProject(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connFor(w, r)
	if !ok {
		return
	}
	if err := h.hub.Leave(conn.ID, realtime.ProjectGroup(chi.URLParam(r, "projectId"))); err != nil {
		respond.Error(w, err)
		return
	}
	accepted(w)
}
