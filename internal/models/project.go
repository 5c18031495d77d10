package models

import (
	"slices"
	"time"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectPlanning   ProjectStatus = "Planning"
	ProjectInProgress ProjectStatus = "InProgress"
	ProjectOnHold     ProjectStatus = "OnHold"
	ProjectCompleted  ProjectStatus = "Completed"
	ProjectCancelled  ProjectStatus = "Cancelled"
)

// Valid reports whether s is a known project status.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPlanning, ProjectInProgress, ProjectOnHold, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

// IsActive reports whether work is expected to happen on the project.
func (s ProjectStatus) IsActive() bool {
	return s == ProjectPlanning || s == ProjectInProgress
}

// Priority is shared by projects and work items.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Project represents a project with a manager and a team.
type Project struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	ManagerID     string        `json:"manager_id"`
	TeamMemberIDs []string      `json:"team_member_ids"`
	Status        ProjectStatus `json:"status"`
	Priority      Priority      `json:"priority"`
	StartDate     time.Time     `json:"start_date"`
	EndDate       *time.Time    `json:"end_date,omitempty"`
	Budget        float64       `json:"budget"`
	Tags          []string      `json:"tags"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsMember reports whether userID is on the team. The manager is not a
// member unless listed explicitly.
func (p *Project) IsMember(userID string) bool {
	return slices.Contains(p.TeamMemberIDs, userID)
}

// HasAccess reports whether userID is the manager or a team member.
func (p *Project) HasAccess(userID string) bool {
	return p.ManagerID == userID || p.IsMember(userID)
}
