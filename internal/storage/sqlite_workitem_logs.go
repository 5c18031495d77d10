package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
)

// sqliteWorkItemLogRepo is append-only: it has no update or delete.
type sqliteWorkItemLogRepo struct {
	db    *sql.DB
	table string
}

func (r *sqliteWorkItemLogRepo) Create(ctx context.Context, entry *models.WorkItemLog) error {
	var metadata sql.NullString
	if len(entry.Metadata) > 0 {
		s, err := toJSON(entry.Metadata)
		if err != nil {
			return err
		}
		metadata = nullString(s)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, work_item_id, user_id, action, description, old_value, new_value,
			field_name, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.table)
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.WorkItemID, entry.UserID, entry.Action, entry.Description,
		nullString(entry.OldValue), nullString(entry.NewValue), nullString(entry.FieldName),
		metadata, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert work item log: %w", err)
	}
	return nil
}

func (r *sqliteWorkItemLogRepo) ListByWorkItem(ctx context.Context, workItemID string) ([]*models.WorkItemLog, error) {
	query := fmt.Sprintf(`
		SELECT id, work_item_id, user_id, action, description, old_value, new_value,
			field_name, metadata_json, created_at
		FROM %s WHERE work_item_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, r.table)
	rows, err := r.db.QueryContext(ctx, query, workItemID)
	if err != nil {
		return nil, fmt.Errorf("list work item logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.WorkItemLog
	for rows.Next() {
		entry := &models.WorkItemLog{}
		var oldValue, newValue, fieldName, metadata sql.NullString
		err := rows.Scan(
			&entry.ID, &entry.WorkItemID, &entry.UserID, &entry.Action, &entry.Description,
			&oldValue, &newValue, &fieldName, &metadata, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan work item log: %w", err)
		}
		entry.OldValue = oldValue.String
		entry.NewValue = newValue.String
		entry.FieldName = fieldName.String
		if err := fromJSON(metadata, &entry.Metadata); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
