package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
)

type sqliteProjectRepo struct {
	db      *sql.DB
	table   string
	members string
}

const projectColumns = `id, name, description, manager_id, status, priority,
	start_date, end_date, budget, tags_json, created_at, updated_at`

func (r *sqliteProjectRepo) Create(ctx context.Context, project *models.Project) error {
	tags, err := stringsJSON(project.Tags)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert project: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.table, projectColumns)
	_, err = tx.ExecContext(ctx, query,
		project.ID, project.Name, nullString(project.Description), project.ManagerID,
		project.Status, project.Priority, project.StartDate.UTC(), nullTime(project.EndDate),
		project.Budget, tags, project.CreatedAt.UTC(), project.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	if err := r.writeMembers(ctx, tx, project); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *sqliteProjectRepo) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", projectColumns, r.table)
	project, err := scanProject(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project by id: %w", err)
	}
	if err := r.attachMembers(ctx, []*models.Project{project}); err != nil {
		return nil, err
	}
	return project, nil
}

func (r *sqliteProjectRepo) Update(ctx context.Context, project *models.Project) error {
	tags, err := stringsJSON(project.Tags)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update project: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		UPDATE %s SET name = ?, description = ?, manager_id = ?, status = ?, priority = ?,
			start_date = ?, end_date = ?, budget = ?, tags_json = ?, updated_at = ?
		WHERE id = ?
	`, r.table)
	result, err := tx.ExecContext(ctx, query,
		project.Name, nullString(project.Description), project.ManagerID, project.Status, project.Priority,
		project.StartDate.UTC(), nullTime(project.EndDate), project.Budget, tags, project.UpdatedAt.UTC(),
		project.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("project not found: %s", project.ID)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE project_id = ?", r.members), project.ID); err != nil {
		return fmt.Errorf("clear project members: %w", err)
	}
	if err := r.writeMembers(ctx, tx, project); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *sqliteProjectRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", r.table), id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("project not found: %s", id)
	}
	return nil
}

func (r *sqliteProjectRepo) List(ctx context.Context) ([]*models.Project, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at DESC", projectColumns, r.table)
	return r.queryProjects(ctx, query)
}

func (r *sqliteProjectRepo) ListByStatus(ctx context.Context, statuses ...models.ProjectStatus) ([]*models.Project, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE status IN (%s) ORDER BY created_at DESC",
		projectColumns, r.table, placeholders(len(statuses)))
	return r.queryProjects(ctx, query, args...)
}

func (r *sqliteProjectRepo) ListByManager(ctx context.Context, managerID string) ([]*models.Project, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE manager_id = ? ORDER BY created_at DESC", projectColumns, r.table)
	return r.queryProjects(ctx, query, managerID)
}

func (r *sqliteProjectRepo) ListForUser(ctx context.Context, userID string) ([]*models.Project, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE manager_id = ? OR id IN (SELECT project_id FROM %s WHERE user_id = ?)
		ORDER BY created_at DESC
	`, projectColumns, r.table, r.members)
	return r.queryProjects(ctx, query, userID, userID)
}

func (r *sqliteProjectRepo) AddMember(ctx context.Context, projectID, userID string) error {
	query := fmt.Sprintf(`
		INSERT OR IGNORE INTO %[1]s (project_id, user_id, position)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM %[1]s WHERE project_id = ?))
	`, r.members)
	_, err := r.db.ExecContext(ctx, query, projectID, userID, projectID)
	if err != nil {
		return fmt.Errorf("add project member: %w", err)
	}
	return nil
}

func (r *sqliteProjectRepo) RemoveMember(ctx context.Context, projectID, userID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE project_id = ? AND user_id = ?", r.members)
	result, err := r.db.ExecContext(ctx, query, projectID, userID)
	if err != nil {
		return fmt.Errorf("remove project member: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("project member not found")
	}
	return nil
}

func (r *sqliteProjectRepo) writeMembers(ctx context.Context, tx *sql.Tx, project *models.Project) error {
	query := fmt.Sprintf("INSERT OR IGNORE INTO %s (project_id, user_id, position) VALUES (?, ?, ?)", r.members)
	for i, userID := range project.TeamMemberIDs {
		if _, err := tx.ExecContext(ctx, query, project.ID, userID, i); err != nil {
			return fmt.Errorf("insert project member: %w", err)
		}
	}
	return nil
}

func (r *sqliteProjectRepo) queryProjects(ctx context.Context, query string, args ...any) ([]*models.Project, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachMembers(ctx, projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// attachMembers loads team members for all projects in one query.
func (r *sqliteProjectRepo) attachMembers(ctx context.Context, projects []*models.Project) error {
	if len(projects) == 0 {
		return nil
	}
	byID := make(map[string]*models.Project, len(projects))
	args := make([]any, len(projects))
	for i, p := range projects {
		p.TeamMemberIDs = []string{}
		byID[p.ID] = p
		args[i] = p.ID
	}

	query := fmt.Sprintf(`
		SELECT project_id, user_id FROM %s
		WHERE project_id IN (%s)
		ORDER BY project_id, position
	`, r.members, placeholders(len(args)))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query project members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var projectID, userID string
		if err := rows.Scan(&projectID, &userID); err != nil {
			return fmt.Errorf("scan project member: %w", err)
		}
		if p, ok := byID[projectID]; ok {
			p.TeamMemberIDs = append(p.TeamMemberIDs, userID)
		}
	}
	return rows.Err()
}

func scanProject(row scanner) (*models.Project, error) {
	project := &models.Project{}
	var description, tags sql.NullString
	var endDate sql.NullTime
	err := row.Scan(
		&project.ID, &project.Name, &description, &project.ManagerID, &project.Status, &project.Priority,
		&project.StartDate, &endDate, &project.Budget, &tags, &project.CreatedAt, &project.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	project.Description = description.String
	project.EndDate = timePtr(endDate)
	project.Tags = []string{}
	if err := fromJSON(tags, &project.Tags); err != nil {
		return nil, err
	}
	return project, nil
}
