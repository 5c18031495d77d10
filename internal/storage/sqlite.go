package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	// Pure-Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
)

// Tables holds the table names used by the repositories.
type Tables struct {
	Users         string `koanf:"users"`
	Projects      string `koanf:"projects"`
	WorkItems     string `koanf:"workitems"`
	WorkItemLogs  string `koanf:"workitemlogs"`
	Notifications string `koanf:"notifications"`
}

// DefaultTables returns the default table names.
func DefaultTables() Tables {
	return Tables{
		Users:         "users",
		Projects:      "projects",
		WorkItems:     "workitems",
		WorkItemLogs:  "workitem_logs",
		Notifications: "notifications",
	}
}

func (t Tables) withDefaults() Tables {
	d := DefaultTables()
	if t.Users == "" {
		t.Users = d.Users
	}
	if t.Projects == "" {
		t.Projects = d.Projects
	}
	if t.WorkItems == "" {
		t.WorkItems = d.WorkItems
	}
	if t.WorkItemLogs == "" {
		t.WorkItemLogs = d.WorkItemLogs
	}
	if t.Notifications == "" {
		t.Notifications = d.Notifications
	}
	return t
}

// tableNamePattern matches names that can be spliced into SQL unquoted.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that every configured name is a plain SQL identifier and
// that no two tables share a name. Empty names fall back to the defaults.
func (t Tables) Validate() error {
	named := t.withDefaults()
	var errs []error
	seen := make(map[string]string)
	for _, tbl := range []struct{ key, name string }{
		{"users", named.Users},
		{"projects", named.Projects},
		{"workitems", named.WorkItems},
		{"workitemlogs", named.WorkItemLogs},
		{"notifications", named.Notifications},
	} {
		if !tableNamePattern.MatchString(tbl.name) {
			errs = append(errs, fmt.Errorf("table %s: %q must match %s", tbl.key, tbl.name, tableNamePattern))
			continue
		}
		if other, ok := seen[strings.ToLower(tbl.name)]; ok {
			errs = append(errs, fmt.Errorf("table %s: %q is already used by %s", tbl.key, tbl.name, other))
			continue
		}
		seen[strings.ToLower(tbl.name)] = tbl.key
	}
	return errors.Join(errs...)
}

// members is the project/user junction table name.
func (t Tables) members() string {
	return t.Projects + "_members"
}

// Config configures the SQLite storage.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	BusyTimeout     time.Duration
	Tables          Tables
}

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	cfg    Config
	tables Tables
	db     *sql.DB

	users         *sqliteUserRepo
	projects      *sqliteProjectRepo
	workItems     *sqliteWorkItemRepo
	workItemLogs  *sqliteWorkItemLogRepo
	notifications *sqliteNotificationRepo
	tokens        *sqliteTokenRepo
}

// NewSQLiteStorage creates a new SQLite storage.
func NewSQLiteStorage(cfg Config) *SQLiteStorage {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	return &SQLiteStorage{
		cfg:    cfg,
		tables: cfg.Tables.withDefaults(),
	}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	if s.cfg.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if err := s.cfg.Tables.Validate(); err != nil {
		return fmt.Errorf("invalid table names: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", s.cfg.BusyTimeout.Milliseconds()))
	dsn := "file:" + s.cfg.Path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(s.cfg.ConnMaxIdleTime)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	s.db = db

	// Initialize repositories
	t := s.tables
	s.users = &sqliteUserRepo{db: db, table: t.Users}
	s.projects = &sqliteProjectRepo{db: db, table: t.Projects, members: t.members()}
	s.workItems = &sqliteWorkItemRepo{db: db, table: t.WorkItems}
	s.workItemLogs = &sqliteWorkItemLogRepo{db: db, table: t.WorkItemLogs}
	s.notifications = &sqliteNotificationRepo{db: db, table: t.Notifications}
	s.tokens = &sqliteTokenRepo{db: db}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db, s.tables)
}

// EnsureAdminUser creates default admin if no users exist.
func (s *SQLiteStorage) EnsureAdminUser() error {
	ctx := context.Background()
	count, err := s.Users().Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil // Users exist, skip
	}

	// Satisfies the password policy: random body plus guaranteed classes.
	password := generateRandomPassword(16) + "aA1"
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	admin := models.NewUser("System", "Administrator", "admin@localhost", models.RoleAdmin)
	admin.ID = uuid.New().String()
	admin.PasswordHash = string(hash)

	if err := s.Users().Create(ctx, admin); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	fmt.Printf("\n")
	fmt.Printf("===========================================\n")
	fmt.Printf("  DEFAULT ADMIN USER CREATED\n")
	fmt.Printf("  Email:    %s\n", admin.Email)
	fmt.Printf("  Password: %s\n", password)
	fmt.Printf("  CHANGE THIS PASSWORD IMMEDIATELY!\n")
	fmt.Printf("===========================================\n")
	fmt.Printf("\n")

	return nil
}

// Users returns the user repository.
func (s *SQLiteStorage) Users() UserRepository {
	return s.users
}

// Projects returns the project repository.
func (s *SQLiteStorage) Projects() ProjectRepository {
	return s.projects
}

// WorkItems returns the work item repository.
func (s *SQLiteStorage) WorkItems() WorkItemRepository {
	return s.workItems
}

// WorkItemLogs returns the audit log repository.
func (s *SQLiteStorage) WorkItemLogs() WorkItemLogRepository {
	return s.workItemLogs
}

// Notifications returns the notification repository.
func (s *SQLiteStorage) Notifications() NotificationRepository {
	return s.notifications
}

// Tokens returns the token repository.
func (s *SQLiteStorage) Tokens() TokenRepository {
	return s.tokens
}

// generateRandomPassword generates a random password of the specified length.
func generateRandomPassword(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)[:length]
}
