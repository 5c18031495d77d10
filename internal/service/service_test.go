package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ahmetcdevelopment/task-management-api/internal/auth"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/realtime"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

type pushed struct {
	Key  realtime.GroupKey
	Name string
	Data any
}

// recordingPusher captures real-time events instead of delivering them.
type recordingPusher struct {
	mu     sync.Mutex
	events []pushed
	err    error
}

func (p *recordingPusher) Publish(_ context.Context, key realtime.GroupKey, name string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pushed{Key: key, Name: name, Data: data})
	return p.err
}

func (p *recordingPusher) named(name string) []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pushed
	for _, e := range p.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPusher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []*models.Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n *models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return d.err
}

type fixture struct {
	store         *storage.SQLiteStorage
	pusher        *recordingPusher
	dispatcher    *recordingDispatcher
	notifications *NotificationService
	workItems     *WorkItemService
	projects      *ProjectService
	users         *UserService
	auth          *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storage.NewSQLiteStorage(storage.Config{Path: filepath.Join(t.TempDir(), "service.db")})
	if err := store.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := zap.NewNop()
	f := &fixture{
		store:      store,
		pusher:     &recordingPusher{},
		dispatcher: &recordingDispatcher{},
	}
	f.notifications = NewNotificationService(store, logger,
		WithPusher(f.pusher), WithDispatcher(f.dispatcher, time.Second))
	f.workItems = NewWorkItemService(store, f.notifications, logger)
	f.projects = NewProjectService(store, f.notifications, logger)
	f.users = NewUserService(store, logger)
	f.auth = NewAuthService(store, f.users,
		auth.NewJWTService([]byte("test-secret-key-at-least-32-bytes!!"), time.Hour, ""),
		auth.NewTokenService(store, 24*time.Hour),
		auth.NewLockoutTracker(3, time.Minute),
		logger)
	return f
}

// user inserts an active account directly, skipping password hashing.
func (f *fixture) user(t *testing.T, first string, role models.Role) *models.User {
	t.Helper()
	u := models.NewUser(first, "Tester", first+"@example.com", role)
	u.ID = uuid.New().String()
	u.PasswordHash = "x"
	if err := f.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", first, err)
	}
	return u
}

func actorOf(u *models.User) Actor {
	return Actor{UserID: u.ID, Role: u.Role}
}

func (f *fixture) project(t *testing.T, manager *models.User, members ...*models.User) *models.Project {
	t.Helper()
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	p, err := f.projects.Create(context.Background(), actorOf(manager), CreateProjectInput{
		Name:          "Apollo",
		ManagerID:     manager.ID,
		TeamMemberIDs: ids,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func (f *fixture) notificationsFor(t *testing.T, userID string) []*models.Notification {
	t.Helper()
	list, err := f.store.Notifications().ListByUser(context.Background(), userID, false, 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	return list
}

func (f *fixture) logsFor(t *testing.T, workItemID string) []*models.WorkItemLog {
	t.Helper()
	logs, err := f.store.WorkItemLogs().ListByWorkItem(context.Background(), workItemID)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	return logs
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	var se *Error
	require.True(t, errors.As(err, &se), "expected service error, got %T: %v", err, err)
	require.Equal(t, kind, se.Kind, "unexpected kind for %v", err)
}

func ptr[T any](v T) *T { return &v }
