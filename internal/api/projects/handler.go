// Package projects serves the /api/projects endpoints.
package projects

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ahmetcdevelopment/task-management-api/internal/api/middleware"
	"github.com/ahmetcdevelopment/task-management-api/internal/api/respond"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/service"
)

// Handler handles project endpoints.
type Handler struct {
	projects *service.ProjectService
}

// NewHandler creates a new project handler.
func NewHandler(projects *service.ProjectService) *Handler {
	return &Handler{projects: projects}
}

// StatusRequest is the body of PATCH /{id}/status.
type StatusRequest struct {
	Status models.ProjectStatus `json:"status"`
}

// AddMemberRequest is the body of POST /{id}/team-members.
type AddMemberRequest struct {
	UserID string `json:"user_id"`
}

// List returns every project for admins and the caller's projects otherwise.
// ?status=Planning,OnHold narrows the result to those statuses.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Actor(r.Context())

	var (
		projects []*models.Project
		err      error
	)
	if q := r.URL.Query().Get("status"); q != "" {
		var statuses []models.ProjectStatus
		for _, part := range strings.Split(q, ",") {
			statuses = append(statuses, models.ProjectStatus(strings.TrimSpace(part)))
		}
		projects, err = h.projects.ByStatus(r.Context(), actor, statuses...)
	} else {
		projects, err = h.projects.List(r.Context(), actor)
	}
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, projects)
}

// Mine returns projects the caller manages or belongs to.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.Mine(r.Context(), middleware.Actor(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, projects)
}

// ManagedByMe returns projects the caller manages.
func (h *Handler) ManagedByMe(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.ManagedByMe(r.Context(), middleware.Actor(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, projects)
}

// Active returns visible projects in Planning or InProgress.
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.Active(r.Context(), middleware.Actor(r.Context()))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, projects)
}

// Get returns one project.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	project, err := h.projects.Get(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, project)
}

// Create creates a project.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateProjectInput
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	project, err := h.projects.Create(r.Context(), middleware.Actor(r.Context()), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, project)
}

// Update applies a sparse update.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateProjectInput
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	project, err := h.projects.Update(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, project)
}

// UpdateStatus changes the project status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	project, err := h.projects.UpdateStatus(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, project)
}

// AddTeamMember adds a user to the team.
func (h *Handler) AddTeamMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	if req.UserID == "" {
		respond.Fail(w, http.StatusBadRequest, "user_id is required")
		return
	}

	project, err := h.projects.AddTeamMember(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, project)
}

// RemoveTeamMember removes a user from the team.
func (h *Handler) RemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	project, err := h.projects.RemoveTeamMember(r.Context(), middleware.Actor(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, project)
}

// Delete removes a project without open work items.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.projects.Delete(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id")); err != nil {
		respond.Error(w, err)
		return
	}
	respond.NoContent(w)
}

// CheckAccess reports whether the caller can see the project.
func (h *Handler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	ok, err := h.projects.CheckAccess(r.Context(), middleware.Actor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, map[string]bool{"has_access": ok})
}
