package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahmetcdevelopment/task-management-api/internal/access"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

// ProjectNotifier receives project side effects.
type ProjectNotifier interface {
	NotifyProjectCreated(ctx context.Context, projectID, actorID string)
	NotifyProjectUpdated(ctx context.Context, projectID, actorID string)
	NotifyTeamMemberAdded(ctx context.Context, projectID, memberID, actorID string)
	NotifyTeamMemberRemoved(ctx context.Context, projectID, memberID, actorID string)
}

// CreateProjectInput is the payload for ProjectService.Create.
type CreateProjectInput struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	ManagerID     string          `json:"manager_id"`
	TeamMemberIDs []string        `json:"team_member_ids"`
	StartDate     *time.Time      `json:"start_date"`
	EndDate       *time.Time      `json:"end_date"`
	Budget        float64         `json:"budget"`
	Priority      models.Priority `json:"priority"`
	Tags          []string        `json:"tags"`
}

// UpdateProjectInput is a sparse update. Nil fields are left alone.
type UpdateProjectInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	StartDate   *time.Time       `json:"start_date"`
	EndDate     *time.Time       `json:"end_date"`
	Budget      *float64         `json:"budget"`
	Priority    *models.Priority `json:"priority"`
	Tags        *[]string        `json:"tags"`
}

// ProjectService manages projects and their teams.
type ProjectService struct {
	store    storage.Storage
	notifier ProjectNotifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewProjectService creates a project service.
func NewProjectService(store storage.Storage, notifier ProjectNotifier, logger *zap.Logger) *ProjectService {
	return &ProjectService{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *ProjectService) load(ctx context.Context, id string) (*models.Project, error) {
	p, err := s.store.Projects().GetByID(ctx, id)
	if err != nil {
		return nil, internal("get project", err)
	}
	if p == nil {
		return nil, NotFound("project not found")
	}
	return p, nil
}

func (s *ProjectService) loadFor(ctx context.Context, actor Actor, id string, action access.Action) (*models.Project, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, action, access.ForProject(p, actor.UserID)); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProjectService) validateDates(start time.Time, end *time.Time, startChanged bool) error {
	if startChanged && start.Before(startOfDay(s.now())) {
		return Validation("start date cannot be in the past")
	}
	if end != nil && !end.After(start) {
		return Validation("end date must be after start date")
	}
	return nil
}

// Create validates and stores a new project, then notifies its team.
func (s *ProjectService) Create(ctx context.Context, actor Actor, in CreateProjectInput) (*models.Project, error) {
	if err := authorize(actor, access.ProjectCreate, access.None); err != nil {
		return nil, err
	}
	if err := validateProjectName(in.Name); err != nil {
		return nil, err
	}
	if err := validateMaxLen("description", in.Description, MaxProjectDescription); err != nil {
		return nil, err
	}
	if in.Budget < 0 {
		return nil, Validation("budget cannot be negative")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, Validation("invalid priority: %s", in.Priority)
	}

	now := s.now()
	start := startOfDay(now)
	if in.StartDate != nil {
		start = in.StartDate.UTC()
	}
	if err := s.validateDates(start, in.EndDate, true); err != nil {
		return nil, err
	}

	managerID := strings.TrimSpace(in.ManagerID)
	if managerID == "" {
		managerID = actor.UserID
	}
	manager, err := s.store.Users().GetByID(ctx, managerID)
	if err != nil {
		return nil, internal("get manager", err)
	}
	if manager == nil {
		return nil, NotFound("Manager not found")
	}

	members := cleanTags(in.TeamMemberIDs)
	if len(members) > MaxProjectTeamSize {
		return nil, Validation("a project can have at most %d team members", MaxProjectTeamSize)
	}
	for _, id := range members {
		u, err := s.store.Users().GetByID(ctx, id)
		if err != nil {
			return nil, internal("get team member", err)
		}
		if u == nil {
			return nil, NotFound("One or more team members not found")
		}
	}

	p := &models.Project{
		ID:            uuid.New().String(),
		Name:          strings.TrimSpace(in.Name),
		Description:   strings.TrimSpace(in.Description),
		ManagerID:     managerID,
		TeamMemberIDs: members,
		Status:        models.ProjectPlanning,
		Priority:      in.Priority,
		StartDate:     start,
		EndDate:       utcPtr(in.EndDate),
		Budget:        in.Budget,
		Tags:          cleanTags(in.Tags),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Projects().Create(ctx, p); err != nil {
		return nil, internal("create project", err)
	}

	s.notifier.NotifyProjectCreated(ctx, p.ID, actor.UserID)
	s.logger.Info("project created", zap.String("project_id", p.ID), zap.String("user_id", actor.UserID))
	return p, nil
}

// Update applies the present fields and notifies the team.
func (s *ProjectService) Update(ctx context.Context, actor Actor, id string, in UpdateProjectInput) (*models.Project, error) {
	p, err := s.loadFor(ctx, actor, id, access.ProjectUpdate)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		if err := validateProjectName(*in.Name); err != nil {
			return nil, err
		}
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		if err := validateMaxLen("description", *in.Description, MaxProjectDescription); err != nil {
			return nil, err
		}
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.Budget != nil {
		if *in.Budget < 0 {
			return nil, Validation("budget cannot be negative")
		}
		p.Budget = *in.Budget
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return nil, Validation("invalid priority: %s", *in.Priority)
		}
		p.Priority = *in.Priority
	}
	if in.Tags != nil {
		p.Tags = cleanTags(*in.Tags)
	}

	startChanged := false
	if in.StartDate != nil && !in.StartDate.Equal(p.StartDate) {
		p.StartDate = in.StartDate.UTC()
		startChanged = true
	}
	if in.EndDate != nil {
		p.EndDate = utcPtr(in.EndDate)
	}
	if err := s.validateDates(p.StartDate, p.EndDate, startChanged); err != nil {
		return nil, err
	}

	p.UpdatedAt = s.now()
	if err := s.store.Projects().Update(ctx, p); err != nil {
		return nil, internal("update project", err)
	}
	s.notifier.NotifyProjectUpdated(ctx, p.ID, actor.UserID)
	return p, nil
}

// UpdateStatus changes the project status and notifies the team.
func (s *ProjectService) UpdateStatus(ctx context.Context, actor Actor, id string, status models.ProjectStatus) (*models.Project, error) {
	if !status.Valid() {
		return nil, Validation("invalid project status: %s", status)
	}
	p, err := s.loadFor(ctx, actor, id, access.ProjectStatus)
	if err != nil {
		return nil, err
	}
	p.Status = status
	p.UpdatedAt = s.now()
	if err := s.store.Projects().Update(ctx, p); err != nil {
		return nil, internal("update project status", err)
	}
	s.notifier.NotifyProjectUpdated(ctx, p.ID, actor.UserID)
	return p, nil
}

// AddTeamMember adds an active user to the team.
func (s *ProjectService) AddTeamMember(ctx context.Context, actor Actor, projectID, userID string) (*models.Project, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, Validation("user_id is required")
	}
	p, err := s.loadFor(ctx, actor, projectID, access.ProjectTeam)
	if err != nil {
		return nil, err
	}
	u, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, internal("get user", err)
	}
	if u == nil || !u.IsActive {
		return nil, NotFound("user not found")
	}
	if userID == p.ManagerID {
		return nil, Conflict("user is the project manager")
	}
	if p.IsMember(userID) {
		return nil, Conflict("user is already a team member")
	}
	if len(p.TeamMemberIDs) >= MaxProjectTeamSize {
		return nil, Validation("a project can have at most %d team members", MaxProjectTeamSize)
	}

	if err := s.store.Projects().AddMember(ctx, p.ID, userID); err != nil {
		return nil, internal("add team member", err)
	}
	p.TeamMemberIDs = append(p.TeamMemberIDs, userID)
	s.notifier.NotifyTeamMemberAdded(ctx, p.ID, userID, actor.UserID)
	return p, nil
}

// RemoveTeamMember removes a user from the team. The manager can never be
// removed this way.
func (s *ProjectService) RemoveTeamMember(ctx context.Context, actor Actor, projectID, userID string) (*models.Project, error) {
	p, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if userID == p.ManagerID {
		return nil, Conflict("the project manager cannot be removed")
	}
	if err := authorize(actor, access.ProjectTeam, access.ForProject(p, actor.UserID)); err != nil {
		return nil, err
	}
	if !p.IsMember(userID) {
		return nil, NotFound("user is not a team member")
	}

	if err := s.store.Projects().RemoveMember(ctx, p.ID, userID); err != nil {
		return nil, internal("remove team member", err)
	}
	p.TeamMemberIDs = slices.DeleteFunc(p.TeamMemberIDs, func(id string) bool { return id == userID })
	s.notifier.NotifyTeamMemberRemoved(ctx, p.ID, userID, actor.UserID)
	return p, nil
}

// Delete removes a project that has no open work items.
func (s *ProjectService) Delete(ctx context.Context, actor Actor, id string) error {
	p, err := s.loadFor(ctx, actor, id, access.ProjectDelete)
	if err != nil {
		return err
	}
	active, err := s.store.WorkItems().HasActiveInProject(ctx, p.ID)
	if err != nil {
		return internal("check active work items", err)
	}
	if active {
		return Conflict("Cannot delete project with active work items")
	}
	if err := s.store.Projects().Delete(ctx, p.ID); err != nil {
		return internal("delete project", err)
	}
	s.logger.Info("project deleted", zap.String("project_id", p.ID), zap.String("user_id", actor.UserID))
	return nil
}

// Get returns one project.
func (s *ProjectService) Get(ctx context.Context, actor Actor, id string) (*models.Project, error) {
	return s.loadFor(ctx, actor, id, access.ProjectRead)
}

// List returns every project for administrators and the caller's projects
// otherwise.
func (s *ProjectService) List(ctx context.Context, actor Actor) ([]*models.Project, error) {
	if actor.IsAdmin() {
		list, err := s.store.Projects().List(ctx)
		if err != nil {
			return nil, internal("list projects", err)
		}
		return list, nil
	}
	return s.Mine(ctx, actor)
}

// Mine returns the projects the caller manages or belongs to.
func (s *ProjectService) Mine(ctx context.Context, actor Actor) ([]*models.Project, error) {
	list, err := s.store.Projects().ListForUser(ctx, actor.UserID)
	if err != nil {
		return nil, internal("list user projects", err)
	}
	return list, nil
}

// ManagedByMe returns the projects the caller manages.
func (s *ProjectService) ManagedByMe(ctx context.Context, actor Actor) ([]*models.Project, error) {
	list, err := s.store.Projects().ListByManager(ctx, actor.UserID)
	if err != nil {
		return nil, internal("list managed projects", err)
	}
	return list, nil
}

// Active returns visible projects in Planning or InProgress.
func (s *ProjectService) Active(ctx context.Context, actor Actor) ([]*models.Project, error) {
	return s.ByStatus(ctx, actor, models.ProjectPlanning, models.ProjectInProgress)
}

// ByStatus returns visible projects in any of statuses.
func (s *ProjectService) ByStatus(ctx context.Context, actor Actor, statuses ...models.ProjectStatus) ([]*models.Project, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, Validation("invalid project status: %s", st)
		}
	}
	list, err := s.store.Projects().ListByStatus(ctx, statuses...)
	if err != nil {
		return nil, internal("list projects by status", err)
	}
	if actor.IsAdmin() {
		return list, nil
	}
	return slices.DeleteFunc(list, func(p *models.Project) bool { return !p.HasAccess(actor.UserID) }), nil
}

// CheckAccess reports whether the caller manages or belongs to the project.
func (s *ProjectService) CheckAccess(ctx context.Context, actor Actor, id string) (bool, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	return p.HasAccess(actor.UserID), nil
}
