package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ahmetcdevelopment/task-management-api/internal/api/health"
	"github.com/ahmetcdevelopment/task-management-api/internal/auth"
	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/realtime"
	"github.com/ahmetcdevelopment/task-management-api/internal/service"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

const testPassword = "Secret123"

type testEnv struct {
	srv   *Server
	store *storage.SQLiteStorage
	users *service.UserService
	hub   *realtime.Hub
}

// newTestEnv wires the full stack over a temp SQLite database.
func newTestEnv(t testing.TB) *testEnv {
	t.Helper()

	store := storage.NewSQLiteStorage(storage.Config{Path: filepath.Join(t.TempDir(), "api.db")})
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())

	logger := zap.NewNop()
	hub := realtime.NewHub(realtime.NewMemoryBroker(), logger, 0)
	t.Cleanup(func() { hub.Close() })

	notifications := service.NewNotificationService(store, logger, service.WithPusher(hub))
	users := service.NewUserService(store, logger)
	services := Services{
		Auth: service.NewAuthService(store, users,
			auth.NewJWTService([]byte("test-secret-key-at-least-32-bytes!!"), time.Hour, ""),
			auth.NewTokenService(store, 24*time.Hour),
			auth.NewLockoutTracker(5, time.Minute),
			logger),
		Users:         users,
		Projects:      service.NewProjectService(store, notifications, logger),
		WorkItems:     service.NewWorkItemService(store, notifications, logger),
		Notifications: notifications,
		Hub:           hub,
	}

	srv, err := New(&Config{
		Address:          ":0",
		RateLimitPerIP:   1000,
		RateLimitPerUser: 1000,
		Heartbeat:        time.Hour,
		Version:          "test",
	}, services, logger)
	require.NoError(t, err)

	return &testEnv{srv: srv, store: store, users: users, hub: hub}
}

// createUser adds an account through the user service.
func (e *testEnv) createUser(t testing.TB, first string, role models.Role) *models.User {
	t.Helper()
	u, err := e.users.Create(context.Background(), service.CreateUserInput{
		FirstName:       first,
		LastName:        "Tester",
		Email:           strings.ToLower(first) + "@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
		Role:            string(role),
	})
	require.NoError(t, err)
	return u
}

// do sends a JSON request and returns the recorder.
func (e *testEnv) do(t testing.TB, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

// login returns an access token for the user.
func (e *testEnv) login(t testing.TB, u *models.User) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": u.Email, "password": testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res service.AuthResult
	decodeData(t, rec, &res)
	return res.Token
}

func decodeData(t testing.TB, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func errorMessage(t testing.TB, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Message
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.srv.RegisterHealthChecker(health.NewSQLiteChecker(env.store.DB()))

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", service.CreateUserInput{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com",
		Password: testPassword, ConfirmPassword: testPassword, Role: "Manager",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg service.AuthResult
	decodeData(t, rec, &reg)
	assert.Equal(t, models.RoleManager, reg.User.Role)

	rec = env.do(t, http.MethodPost, "/api/auth/register", "", service.CreateUserInput{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com",
		Password: testPassword, ConfirmPassword: testPassword,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "grace@example.com", "password": "Wrong123",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/auth/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/auth/profile", reg.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me models.User
	decodeData(t, rec, &me)
	assert.Equal(t, reg.User.ID, me.ID)

	rec = env.do(t, http.MethodPost, "/api/auth/refresh-token", "", map[string]string{"refresh_token": reg.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var refreshed service.AuthResult
	decodeData(t, rec, &refreshed)

	rec = env.do(t, http.MethodPost, "/api/auth/logout", refreshed.Token, map[string]string{"refresh_token": refreshed.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/refresh-token", "", map[string]string{"refresh_token": refreshed.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserAdministration(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "Root", models.RoleAdmin)
	dev := env.createUser(t, "Ada", models.RoleDeveloper)
	devToken := env.login(t, dev)
	adminToken := env.login(t, admin)

	rec := env.do(t, http.MethodPatch, "/api/auth/users/"+admin.ID+"/deactivate", devToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/auth/users/"+dev.ID+"/deactivate", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": dev.Email, "password": testPassword})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/auth/users?isActive=false", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inactive []models.User
	decodeData(t, rec, &inactive)
	require.Len(t, inactive, 1)
	assert.Equal(t, dev.ID, inactive[0].ID)
}

func TestProjectAndWorkItemLifecycle(t *testing.T) {
	env := newTestEnv(t)
	manager := env.createUser(t, "Mia", models.RoleManager)
	dev := env.createUser(t, "Ada", models.RoleDeveloper)
	outsider := env.createUser(t, "Bob", models.RoleDeveloper)
	mt := env.login(t, manager)
	dt := env.login(t, dev)
	ot := env.login(t, outsider)

	rec := env.do(t, http.MethodPost, "/api/projects", dt, service.CreateProjectInput{Name: "Nope", ManagerID: dev.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/projects", mt, service.CreateProjectInput{
		Name: "Apollo", ManagerID: manager.ID, TeamMemberIDs: []string{dev.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var project models.Project
	decodeData(t, rec, &project)

	rec = env.do(t, http.MethodGet, "/api/projects/"+project.ID, ot, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var listed []models.Project
	rec = env.do(t, http.MethodGet, "/api/projects?status=Planning", dt, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &listed)
	assert.Len(t, listed, 1)
	rec = env.do(t, http.MethodGet, "/api/projects?status=OnHold,Cancelled", dt, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &listed)
	assert.Empty(t, listed)
	rec = env.do(t, http.MethodGet, "/api/projects?status=Paused", dt, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/projects/"+project.ID+"/team-members/"+manager.ID, mt, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/workitems", mt, service.CreateWorkItemInput{
		Title: "Launch", ProjectID: project.ID, AssignedToID: dev.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item models.WorkItem
	decodeData(t, rec, &item)
	assert.Equal(t, models.StatusToDo, item.Status)

	rec = env.do(t, http.MethodDelete, "/api/projects/"+project.ID, mt, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, status := range []models.WorkItemStatus{models.StatusInProgress, models.StatusDone} {
		rec = env.do(t, http.MethodPatch, "/api/workitems/"+item.ID+"/status", dt, map[string]any{"status": status})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	decodeData(t, rec, &item)
	assert.Equal(t, models.StatusDone, item.Status)
	assert.NotNil(t, item.CompletedAt)

	rec = env.do(t, http.MethodGet, "/api/workitems/"+item.ID+"/logs", dt, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []models.WorkItemLog
	decodeData(t, rec, &logs)
	changes := 0
	for _, l := range logs {
		if l.Action == models.ActionStatusChanged {
			changes++
		}
	}
	assert.Equal(t, 2, changes)

	rec = env.do(t, http.MethodGet, "/api/notifications", mt, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox []models.Notification
	decodeData(t, rec, &inbox)
	var completed int
	for _, n := range inbox {
		if n.Type == models.NotificationTaskCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)

	rec = env.do(t, http.MethodGet, "/api/workitems/due-soon?days=0", dt, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/projects/"+project.ID, mt, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWorkItemAssignAndUnassign(t *testing.T) {
	env := newTestEnv(t)
	manager := env.createUser(t, "Mia", models.RoleManager)
	dev := env.createUser(t, "Ada", models.RoleDeveloper)
	mt := env.login(t, manager)

	rec := env.do(t, http.MethodPost, "/api/projects", mt, service.CreateProjectInput{
		Name: "Apollo", ManagerID: manager.ID, TeamMemberIDs: []string{dev.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var project models.Project
	decodeData(t, rec, &project)

	rec = env.do(t, http.MethodPost, "/api/workitems", mt, service.CreateWorkItemInput{Title: "Launch", ProjectID: project.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item models.WorkItem
	decodeData(t, rec, &item)

	rec = env.do(t, http.MethodPatch, "/api/workitems/"+item.ID+"/assign", mt, map[string]string{"assigned_to_id": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/workitems/"+item.ID+"/assign", mt, map[string]string{"assigned_to_id": dev.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var assigned models.WorkItem
	decodeData(t, rec, &assigned)
	assert.Equal(t, dev.ID, assigned.AssignedToID)

	rec = env.do(t, http.MethodPut, "/api/workitems/"+item.ID, mt, map[string]any{"assigned_to_id": ""})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cleared models.WorkItem
	decodeData(t, rec, &cleared)
	assert.Empty(t, cleared.AssignedToID)
}

func TestNotificationEndpoints(t *testing.T) {
	env := newTestEnv(t)
	manager := env.createUser(t, "Mia", models.RoleManager)
	dev := env.createUser(t, "Ada", models.RoleDeveloper)
	mt := env.login(t, manager)
	dt := env.login(t, dev)

	rec := env.do(t, http.MethodPost, "/api/notifications", dt, service.CreateNotificationInput{UserID: manager.ID, Title: "t", Message: "m"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/notifications", mt, service.CreateNotificationInput{UserID: dev.ID, Title: "Standup", Message: "10:00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var n models.Notification
	decodeData(t, rec, &n)

	rec = env.do(t, http.MethodGet, "/api/notifications/unread-count", dt, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count struct {
		Count int64 `json:"count"`
	}
	decodeData(t, rec, &count)
	assert.Equal(t, int64(1), count.Count)

	rec = env.do(t, http.MethodPatch, "/api/notifications/"+n.ID+"/mark-as-read", mt, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/notifications/missing/mark-as-read", dt, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, errorMessage(t, rec))

	rec = env.do(t, http.MethodPatch, "/api/notifications/"+n.ID+"/mark-as-read", dt, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/notifications/cleanup?daysOld=7", mt, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// sseReader reads named events from an event stream.
type sseReader struct {
	scanner *bufio.Scanner
}

func (r *sseReader) next(t *testing.T) (string, string) {
	t.Helper()
	var name, data string
	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
	t.Fatalf("stream ended: %v", r.scanner.Err())
	return "", ""
}

func TestNotificationHubStream(t *testing.T) {
	env := newTestEnv(t)
	manager := env.createUser(t, "Mia", models.RoleManager)
	dev := env.createUser(t, "Ada", models.RoleDeveloper)
	mt := env.login(t, manager)
	dt := env.login(t, dev)

	ts := httptest.NewServer(env.srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/hubs/notifications?access_token="+dt, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	stream := &sseReader{scanner: bufio.NewScanner(resp.Body)}

	name, data := stream.next(t)
	require.Equal(t, realtime.EventConnected, name)
	var hello struct {
		ConnectionID string `json:"connectionId"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &hello))
	require.NotEmpty(t, hello.ConnectionID)

	name, data = stream.next(t)
	assert.Equal(t, realtime.EventUnreadNotificationCount, name)
	assert.Equal(t, "0", data)

	rec := env.do(t, http.MethodPost, "/api/notifications", mt, service.CreateNotificationInput{UserID: dev.ID, Title: "Ping", Message: "pong"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var n models.Notification
	decodeData(t, rec, &n)

	name, data = stream.next(t)
	assert.Equal(t, realtime.EventReceiveNotification, name)
	assert.Contains(t, data, n.ID)
	name, data = stream.next(t)
	assert.Equal(t, realtime.EventUnreadNotificationCount, name)
	assert.Equal(t, "1", data)

	base := "/api/hubs/notifications/" + hello.ConnectionID
	rec = env.do(t, http.MethodPost, base+"/unread-count", mt, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "connection belongs to another user")
	rec = env.do(t, http.MethodPost, "/api/hubs/notifications/unknown/unread-count", dt, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/mark-read/"+n.ID, dt, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	seen := map[string]string{}
	for len(seen) < 2 {
		name, data = stream.next(t)
		seen[name] = data
	}
	assert.Equal(t, "0", seen[realtime.EventUnreadNotificationCount])
	assert.Equal(t, fmt.Sprintf("%q", n.ID), seen[realtime.EventNotificationMarkedAsRead])

	rec = env.do(t, http.MethodPost, "/api/projects", mt, service.CreateProjectInput{Name: "Private", ManagerID: manager.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	var project models.Project
	decodeData(t, rec, &project)

	rec = env.do(t, http.MethodPost, base+"/join-project/"+project.ID, dt, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
