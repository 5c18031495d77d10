package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
)

// sqliteNotificationRepo implements NotificationRepository using SQLite.
type sqliteNotificationRepo struct {
	db    *sql.DB
	table string
}

const notificationColumns = `id, user_id, title, message, type, is_read, read_at,
	related_entity_id, related_entity_type, action_url, metadata_json, created_at`

// Create inserts a new notification.
func (r *sqliteNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	var metadata sql.NullString
	if len(n.Metadata) > 0 {
		s, err := toJSON(n.Metadata)
		if err != nil {
			return err
		}
		metadata = nullString(s)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.table, notificationColumns)
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.UserID, n.Title, n.Message, n.Type, boolToInt(n.IsRead), nullTime(n.ReadAt),
		nullString(n.RelatedEntityID), nullString(n.RelatedEntityType), nullString(n.ActionURL),
		metadata, n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetByID retrieves a notification, or nil when absent.
func (r *sqliteNotificationRepo) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", notificationColumns, r.table)
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification by id: %w", err)
	}
	return n, nil
}

// ListByUser returns a user's notifications, newest first.
func (r *sqliteNotificationRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE user_id = ?", notificationColumns, r.table)
	args := []any{userID}
	if unreadOnly {
		query += " AND is_read = 0"
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var list []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// CountUnread counts a user's unread notifications.
func (r *sqliteNotificationRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE user_id = ? AND is_read = 0", r.table)
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// CountByType groups a user's notifications by type.
func (r *sqliteNotificationRepo) CountByType(ctx context.Context, userID string) (map[models.NotificationType]int64, error) {
	query := fmt.Sprintf("SELECT type, COUNT(*) FROM %s WHERE user_id = ? GROUP BY type", r.table)
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("count notifications by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.NotificationType]int64)
	for rows.Next() {
		var t models.NotificationType
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan notification count: %w", err)
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// MarkAsRead flags a notification read. An existing read_at is preserved.
func (r *sqliteNotificationRepo) MarkAsRead(ctx context.Context, id string, readAt time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET is_read = 1, read_at = COALESCE(read_at, ?)
		WHERE id = ?
	`, r.table)
	result, err := r.db.ExecContext(ctx, query, readAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("notification not found: %s", id)
	}
	return nil
}

// MarkAllAsRead flags every unread notification of a user as read.
func (r *sqliteNotificationRepo) MarkAllAsRead(ctx context.Context, userID string, readAt time.Time) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET is_read = 1, read_at = ?
		WHERE user_id = ? AND is_read = 0
	`, r.table)
	result, err := r.db.ExecContext(ctx, query, readAt.UTC(), userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return result.RowsAffected()
}

// Delete removes a notification.
func (r *sqliteNotificationRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", r.table), id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("notification not found: %s", id)
	}
	return nil
}

// DeleteBefore removes notifications created before the cutoff.
func (r *sqliteNotificationRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE created_at < ?", r.table)
	result, err := r.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old notifications: %w", err)
	}
	return result.RowsAffected()
}

func scanNotification(row scanner) (*models.Notification, error) {
	n := &models.Notification{}
	var read int
	var readAt sql.NullTime
	var entityID, entityType, actionURL, metadata sql.NullString
	err := row.Scan(
		&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &read, &readAt,
		&entityID, &entityType, &actionURL, &metadata, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.IsRead = read != 0
	n.ReadAt = timePtr(readAt)
	n.RelatedEntityID = entityID.String
	n.RelatedEntityType = entityType.String
	n.ActionURL = actionURL.String
	if err := fromJSON(metadata, &n.Metadata); err != nil {
		return nil, err
	}
	return n, nil
}
