package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
)

type sqliteWorkItemRepo struct {
	db    *sql.DB
	table string
}

const workItemColumns = `id, title, description, project_id, assigned_to_id, created_by_id, status, priority,
	due_date, completed_at, estimated_hours, actual_hours, tags_json, attachments_json, comments_json,
	created_at, updated_at`

// workItemArgs returns column values in workItemColumns order, minus id.
func workItemArgs(item *models.WorkItem) ([]any, error) {
	tags, err := stringsJSON(item.Tags)
	if err != nil {
		return nil, err
	}
	attachments, err := stringsJSON(item.Attachments)
	if err != nil {
		return nil, err
	}
	comments := item.Comments
	if comments == nil {
		comments = []models.WorkItemComment{}
	}
	commentsJSON, err := toJSON(comments)
	if err != nil {
		return nil, err
	}
	return []any{
		item.Title, nullString(item.Description), item.ProjectID, nullString(item.AssignedToID),
		item.CreatedByID, item.Status, item.Priority, nullTime(item.DueDate), nullTime(item.CompletedAt),
		item.EstimatedHours, item.ActualHours, tags, attachments, commentsJSON,
		item.CreatedAt.UTC(), item.UpdatedAt.UTC(),
	}, nil
}

func (r *sqliteWorkItemRepo) Create(ctx context.Context, item *models.WorkItem) error {
	args, err := workItemArgs(item)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", r.table, workItemColumns, placeholders(len(args)+1))
	if _, err := r.db.ExecContext(ctx, query, append([]any{item.ID}, args...)...); err != nil {
		return fmt.Errorf("insert work item: %w", err)
	}
	return nil
}

func (r *sqliteWorkItemRepo) GetByID(ctx context.Context, id string) (*models.WorkItem, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", workItemColumns, r.table)
	item, err := scanWorkItem(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work item by id: %w", err)
	}
	return item, nil
}

func (r *sqliteWorkItemRepo) Update(ctx context.Context, item *models.WorkItem) error {
	args, err := workItemArgs(item)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET title = ?, description = ?, project_id = ?, assigned_to_id = ?, created_by_id = ?,
			status = ?, priority = ?, due_date = ?, completed_at = ?, estimated_hours = ?, actual_hours = ?,
			tags_json = ?, attachments_json = ?, comments_json = ?, created_at = ?, updated_at = ?
		WHERE id = ?
	`, r.table)
	result, err := r.db.ExecContext(ctx, query, append(args, item.ID)...)
	if err != nil {
		return fmt.Errorf("update work item: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("work item not found: %s", item.ID)
	}
	return nil
}

func (r *sqliteWorkItemRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", r.table), id)
	if err != nil {
		return fmt.Errorf("delete work item: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("work item not found: %s", id)
	}
	return nil
}

func (r *sqliteWorkItemRepo) List(ctx context.Context, filter WorkItemFilter) ([]*models.WorkItem, error) {
	where, args := workItemWhere(filter)
	query := fmt.Sprintf("SELECT %s FROM %s", workItemColumns, r.table)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()

	var items []*models.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *sqliteWorkItemRepo) CountByStatus(ctx context.Context, projectID string) (map[models.WorkItemStatus]int64, error) {
	counts := make(map[models.WorkItemStatus]int64)
	err := r.countBy(ctx, "status", projectID, func(key string, n int64) {
		counts[models.WorkItemStatus(key)] = n
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *sqliteWorkItemRepo) CountByPriority(ctx context.Context, projectID string) (map[models.Priority]int64, error) {
	counts := make(map[models.Priority]int64)
	err := r.countBy(ctx, "priority", projectID, func(key string, n int64) {
		counts[models.Priority(key)] = n
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *sqliteWorkItemRepo) countBy(ctx context.Context, column, projectID string, fn func(string, int64)) error {
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s", column, r.table)
	var args []any
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " GROUP BY " + column

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("count work items by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan work item count: %w", err)
		}
		fn(key, n)
	}
	return rows.Err()
}

func (r *sqliteWorkItemRepo) HasActiveInProject(ctx context.Context, projectID string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE project_id = ? AND status IN (?, ?))
	`, r.table)
	var exists int
	err := r.db.QueryRowContext(ctx, query, projectID, models.StatusToDo, models.StatusInProgress).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active work items: %w", err)
	}
	return exists != 0, nil
}

func workItemWhere(f WorkItemFilter) (string, []any) {
	var where []string
	var args []any
	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.AssignedToID != "" {
		where = append(where, "assigned_to_id = ?")
		args = append(args, f.AssignedToID)
	}
	if len(f.Statuses) > 0 {
		where = append(where, fmt.Sprintf("status IN (%s)", placeholders(len(f.Statuses))))
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, f.Priority)
	}
	if f.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(tags_json) WHERE json_each.value = ?)")
		args = append(args, f.Tag)
	}
	if f.DueFrom != nil {
		where = append(where, "due_date IS NOT NULL AND due_date >= ?")
		args = append(args, f.DueFrom.UTC())
	}
	if f.DueTo != nil {
		where = append(where, "due_date IS NOT NULL AND due_date <= ?")
		args = append(args, f.DueTo.UTC())
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, `(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`)
		p := likePattern(s)
		args = append(args, p, p)
	}
	return strings.Join(where, " AND "), args
}

func scanWorkItem(row scanner) (*models.WorkItem, error) {
	item := &models.WorkItem{}
	var description, assignee, tags, attachments, comments sql.NullString
	var dueDate, completedAt sql.NullTime
	err := row.Scan(
		&item.ID, &item.Title, &description, &item.ProjectID, &assignee, &item.CreatedByID,
		&item.Status, &item.Priority, &dueDate, &completedAt, &item.EstimatedHours, &item.ActualHours,
		&tags, &attachments, &comments, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Description = description.String
	item.AssignedToID = assignee.String
	item.DueDate = timePtr(dueDate)
	item.CompletedAt = timePtr(completedAt)
	item.Tags = []string{}
	item.Attachments = []string{}
	item.Comments = []models.WorkItemComment{}
	if err := fromJSON(tags, &item.Tags); err != nil {
		return nil, err
	}
	if err := fromJSON(attachments, &item.Attachments); err != nil {
		return nil, err
	}
	if err := fromJSON(comments, &item.Comments); err != nil {
		return nil, err
	}
	return item, nil
}
