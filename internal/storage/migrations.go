package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations returns all database migrations in order. Table names are
// substituted from t so deployments can rename collections.
func migrations(t Tables) []Migration {
	r := strings.NewReplacer(
		"{users}", t.Users,
		"{projects}", t.Projects,
		"{members}", t.members(),
		"{workitems}", t.WorkItems,
		"{workitem_logs}", t.WorkItemLogs,
		"{notifications}", t.Notifications,
	)
	list := []Migration{
		{
			Version: 1,
			Name:    "initial_schema",
			Up: `
			-- Users table
			CREATE TABLE IF NOT EXISTS {users} (
				id TEXT PRIMARY KEY,
				first_name TEXT NOT NULL,
				last_name TEXT NOT NULL,
				email TEXT UNIQUE NOT NULL COLLATE NOCASE,
				password_hash TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'Developer',
				is_active INTEGER NOT NULL DEFAULT 1,
				phone_number TEXT,
				department TEXT,
				profile_image_url TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Projects table
			CREATE TABLE IF NOT EXISTS {projects} (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT,
				manager_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'Planning',
				priority TEXT NOT NULL DEFAULT 'Medium',
				start_date DATETIME NOT NULL,
				end_date DATETIME,
				budget REAL NOT NULL DEFAULT 0,
				tags_json TEXT NOT NULL DEFAULT '[]',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Project team junction table (many-to-many)
			CREATE TABLE IF NOT EXISTS {members} (
				project_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				position INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (project_id, user_id),
				FOREIGN KEY (project_id) REFERENCES {projects}(id) ON DELETE CASCADE
			);

			-- Work items table
			CREATE TABLE IF NOT EXISTS {workitems} (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				description TEXT,
				project_id TEXT NOT NULL,
				assigned_to_id TEXT,
				created_by_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'ToDo',
				priority TEXT NOT NULL DEFAULT 'Medium',
				due_date DATETIME,
				completed_at DATETIME,
				estimated_hours INTEGER NOT NULL DEFAULT 0,
				actual_hours INTEGER NOT NULL DEFAULT 0,
				tags_json TEXT NOT NULL DEFAULT '[]',
				attachments_json TEXT NOT NULL DEFAULT '[]',
				comments_json TEXT NOT NULL DEFAULT '[]',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Work item audit trail
			CREATE TABLE IF NOT EXISTS {workitem_logs} (
				id TEXT PRIMARY KEY,
				work_item_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				action TEXT NOT NULL,
				description TEXT NOT NULL,
				old_value TEXT,
				new_value TEXT,
				field_name TEXT,
				metadata_json TEXT,
				created_at DATETIME NOT NULL
			);

			-- Notifications table
			CREATE TABLE IF NOT EXISTS {notifications} (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				title TEXT NOT NULL,
				message TEXT NOT NULL,
				type TEXT NOT NULL,
				is_read INTEGER NOT NULL DEFAULT 0,
				read_at DATETIME,
				related_entity_id TEXT,
				related_entity_type TEXT,
				action_url TEXT,
				metadata_json TEXT,
				created_at DATETIME NOT NULL
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_{projects}_manager ON {projects}(manager_id);
			CREATE INDEX IF NOT EXISTS idx_{members}_user ON {members}(user_id);
			CREATE INDEX IF NOT EXISTS idx_{workitems}_project ON {workitems}(project_id);
			CREATE INDEX IF NOT EXISTS idx_{workitems}_assignee ON {workitems}(assigned_to_id);
			CREATE INDEX IF NOT EXISTS idx_{workitems}_due ON {workitems}(due_date);
			CREATE INDEX IF NOT EXISTS idx_{workitem_logs}_item ON {workitem_logs}(work_item_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_{notifications}_user ON {notifications}(user_id, is_read);
			CREATE INDEX IF NOT EXISTS idx_{notifications}_created ON {notifications}(created_at);
		`,
		},
		{
			Version: 2,
			Name:    "refresh_tokens",
			Up: `
			CREATE TABLE IF NOT EXISTS refresh_tokens (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				token_hash TEXT UNIQUE NOT NULL,
				expires_at DATETIME NOT NULL,
				created_at DATETIME NOT NULL,
				revoked INTEGER NOT NULL DEFAULT 0,
				revoked_at DATETIME,
				FOREIGN KEY (user_id) REFERENCES {users}(id) ON DELETE CASCADE
			);

			CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id);
			CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires ON refresh_tokens(expires_at);
		`,
		},
	}
	for i := range list {
		list[i].Up = r.Replace(list[i].Up)
	}
	return list
}

func runMigrations(db *sql.DB, t Tables) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations(t) {
		if m.Version <= currentVersion {
			continue
		}

		// Run migration in transaction
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UTC(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
