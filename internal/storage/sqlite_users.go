package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
)

type sqliteUserRepo struct {
	db    *sql.DB
	table string
}

const userColumns = `id, first_name, last_name, email, password_hash, role, is_active,
	phone_number, department, profile_image_url, created_at, updated_at`

func (r *sqliteUserRepo) Create(ctx context.Context, user *models.User) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.table, userColumns)
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.FirstName, user.LastName, models.NormalizeEmail(user.Email), user.PasswordHash,
		user.Role, boolToInt(user.IsActive),
		nullString(user.PhoneNumber), nullString(user.Department), nullString(user.ProfileImageURL),
		user.CreatedAt.UTC(), user.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *sqliteUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", userColumns, r.table)
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *sqliteUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE email = ?", userColumns, r.table)
	user, err := scanUser(r.db.QueryRowContext(ctx, query, models.NormalizeEmail(email)))
	if err == sql.ErrNoRows {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *sqliteUserRepo) Update(ctx context.Context, user *models.User) error {
	query := fmt.Sprintf(`
		UPDATE %s SET first_name = ?, last_name = ?, email = ?, password_hash = ?, role = ?,
			is_active = ?, phone_number = ?, department = ?, profile_image_url = ?, updated_at = ?
		WHERE id = ?
	`, r.table)
	result, err := r.db.ExecContext(ctx, query,
		user.FirstName, user.LastName, models.NormalizeEmail(user.Email), user.PasswordHash, user.Role,
		boolToInt(user.IsActive),
		nullString(user.PhoneNumber), nullString(user.Department), nullString(user.ProfileImageURL),
		user.UpdatedAt.UTC(),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	return nil
}

func (r *sqliteUserRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", r.table), id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

func (r *sqliteUserRepo) List(ctx context.Context, filter UserFilter) ([]*models.User, error) {
	var where []string
	var args []any
	if filter.Role != "" {
		where = append(where, "role = ?")
		args = append(args, filter.Role)
	}
	if filter.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, boolToInt(*filter.IsActive))
	}
	if filter.Department != "" {
		where = append(where, "department = ?")
		args = append(args, filter.Department)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where = append(where, `(first_name LIKE ? ESCAPE '\' OR last_name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\')`)
		p := likePattern(s)
		args = append(args, p, p, p)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", userColumns, r.table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY first_name, last_name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *sqliteUserRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", r.table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func scanUser(row scanner) (*models.User, error) {
	user := &models.User{}
	var active int
	var phone, department, image sql.NullString
	err := row.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.PasswordHash, &user.Role, &active,
		&phone, &department, &image, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.IsActive = active != 0
	user.PhoneNumber = phone.String
	user.Department = department.String
	user.ProfileImageURL = image.String
	return user, nil
}
