// Package workitems serves the /api/workitems endpoints.
package workitems

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ahmetcdevelopment/task-management-api/internal/api/middleware"
	"github.com/ahmetcdevelopment/task-management-api/internal/api/respond"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/service"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

// Handler handles work item endpoints.
type Handler struct {
	items *service.WorkItemService
}

// NewHandler creates a new work item handler.
func NewHandler(items *service.WorkItemService) *Handler {
	return &Handler{items: items}
}

// StatusRequest is the body of PATCH /{id}/status.
type StatusRequest struct {
	Status models.WorkItemStatus `json:"status"`
}

// AssignRequest is the body of PATCH /{id}/assign. The id is required; to
// unassign, send assigned_to_id "" to PUT /{id}.
type AssignRequest struct {
	AssignedToID string `json:"assigned_to_id"`
}

// CommentRequest is the body of POST /{id}/comments.
type CommentRequest struct {
	Text string `json:"text"`
}

// parseFilter reads the list filter from the query string. Dates accept
// RFC 3339 or YYYY-MM-DD; status accepts a comma separated list.
func parseFilter(r *http.Request) (storage.WorkItemFilter, error) {
	q := r.URL.Query()
	filter := storage.WorkItemFilter{
		ProjectID:    q.Get("projectId"),
		AssignedToID: q.Get("assignedToId"),
		Priority:     models.Priority(q.Get("priority")),
		Tag:          q.Get("tag"),
		Search:       q.Get("search"),
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return filter, service.Validation("invalid priority: %s", filter.Priority)
	}
	if v := q.Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			status := models.WorkItemStatus(strings.TrimSpace(s))
			if !status.Valid() {
				return filter, service.Validation("invalid status: %s", status)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	var err error
	if filter.DueFrom, err = parseDate(q.Get("dueFrom")); err != nil {
		return filter, err
	}
	if filter.DueTo, err = parseDate(q.Get("dueTo")); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, service.Validation("invalid date: %s", v)
}

// List returns visible work items matching the query filter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respond.Error(w, err)
		return
	}

	items, err := h.items.List(r.Context(), middleware.Actor(r.Context()), filter)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, items)
}

// Get returns one work item.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.items.Get(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, item)
}

// ByProject returns the work items of a project.
func (h *Handler) ByProject(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.ByProject(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "projectId"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, items)
}

// Mine returns work items assigned to the caller.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.Mine(r.Context(), middleware.Actor(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, items)
}

// Overdue returns visible open work items past their due date.
func (h *Handler) Overdue(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.Overdue(r.Context(), middleware.Actor(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, items)
}

// DueSoon returns visible open work items due within ?days= days.
func (h *Handler) DueSoon(w http.ResponseWriter, r *http.Request) {
	days := service.DefaultDueSoonDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respond.Fail(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	items, err := h.items.DueSoon(r.Context(), middleware.Actor(r.Context()), days)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, items)
}

// Stats counts work items by status and priority.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.items.Stats(r.Context(), middleware.Actor(r.Context()), r.URL.Query().Get("projectId"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, stats)
}

// Create creates a work item.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateWorkItemInput
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	item, err := h.items.Create(r.Context(), middleware.Actor(r.Context()), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, item)
}

// Update applies a sparse update.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateWorkItemInput
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	item, err := h.items.Update(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, item)
}

// UpdateStatus changes the work item status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	item, err := h.items.UpdateStatus(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, item)
}

// Assign changes the assignee.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	item, err := h.items.Assign(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"), req.AssignedToID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, item)
}

// Logs returns the audit trail of a work item, newest first.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.items.Logs(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, logs)
}

// AddComment appends a comment.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	comment, err := h.items.AddComment(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, comment)
}

// Delete removes a work item. Its audit trail is kept.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.items.Delete(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id")); err != nil {
		respond.Error(w, err)
		return
	}
	respond.NoContent(w)
}
