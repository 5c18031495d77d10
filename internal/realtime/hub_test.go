package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
)

func nextEvent(t *testing.T, c *Conn) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event %q", ev.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGroupKey_Validate(t *testing.T) {
	assert.NoError(t, UserGroup("3f2a").Validate())
	assert.NoError(t, RoleGroup(models.RoleAdmin).Validate())
	assert.Error(t, GroupKey{Kind: "team", ID: "x"}.Validate())
	assert.Error(t, ProjectGroup("").Validate())
	assert.Error(t, ProjectGroup("a.b").Validate())
	assert.Error(t, UserGroup("*").Validate())
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "tasks.rt.project.p1", Subject(ProjectGroup("p1")))
	assert.Equal(t, "tasks.rt.role.Manager", Subject(RoleGroup(models.RoleManager)))
}

func TestHub_ConnectJoinsUserAndRoleGroups(t *testing.T) {
	hub := NewHub(NewMemoryBroker(), zap.NewNop(), 8)
	defer hub.Close()
	ctx := context.Background()

	c, err := hub.Connect("u1", models.RoleDeveloper)
	require.NoError(t, err)

	ev := nextEvent(t, c)
	assert.Equal(t, EventConnected, ev.Name)
	assert.Equal(t, map[string]string{"connectionId": c.ID}, ev.Data)

	require.NoError(t, hub.Publish(ctx, UserGroup("u1"), EventUnreadNotificationCount, 3))
	ev = nextEvent(t, c)
	assert.Equal(t, EventUnreadNotificationCount, ev.Name)
	assert.Equal(t, 3, ev.Data)

	require.NoError(t, hub.Publish(ctx, RoleGroup(models.RoleDeveloper), "Broadcast", "hi"))
	assert.Equal(t, "Broadcast", nextEvent(t, c).Name)

	// Other users and roles are not reached.
	require.NoError(t, hub.Publish(ctx, UserGroup("u2"), "x", nil))
	require.NoError(t, hub.Publish(ctx, RoleGroup(models.RoleAdmin), "x", nil))
	assertNoEvent(t, c)
}

func TestHub_ProjectGroups(t *testing.T) {
	hub := NewHub(NewMemoryBroker(), zap.NewNop(), 8)
	defer hub.Close()
	ctx := context.Background()

	a, err := hub.Connect("a", models.RoleDeveloper)
	require.NoError(t, err)
	b, err := hub.Connect("b", models.RoleDeveloper)
	require.NoError(t, err)
	nextEvent(t, a)
	nextEvent(t, b)

	require.NoError(t, hub.Join(a.ID, ProjectGroup("p1")))
	require.NoError(t, hub.Join(a.ID, ProjectGroup("p1"))) // idempotent

	require.NoError(t, hub.Publish(ctx, ProjectGroup("p1"), "ProjectUpdated", nil))
	assert.Equal(t, "ProjectUpdated", nextEvent(t, a).Name)
	assertNoEvent(t, a)
	assertNoEvent(t, b)

	require.NoError(t, hub.Leave(a.ID, ProjectGroup("p1")))
	require.NoError(t, hub.Publish(ctx, ProjectGroup("p1"), "ProjectUpdated", nil))
	assertNoEvent(t, a)

	assert.ErrorIs(t, hub.Join("missing", ProjectGroup("p1")), ErrConnectionNotFound)
	assert.Error(t, hub.Join(a.ID, ProjectGroup("bad.id")))
}

func TestHub_FullBufferDrops(t *testing.T) {
	hub := NewHub(NewMemoryBroker(), zap.NewNop(), 2)
	defer hub.Close()
	ctx := context.Background()

	c, err := hub.Connect("u1", models.RoleManager)
	require.NoError(t, err)
	// Buffer holds "connected" plus one more.
	for i := 0; i < 5; i++ {
		require.NoError(t, hub.Publish(ctx, UserGroup("u1"), "n", i))
	}

	assert.Equal(t, EventConnected, nextEvent(t, c).Name)
	ev := nextEvent(t, c)
	assert.Equal(t, 0, ev.Data)
	assertNoEvent(t, c)
}

func TestHub_DisconnectAndSendTo(t *testing.T) {
	hub := NewHub(NewMemoryBroker(), zap.NewNop(), 8)
	ctx := context.Background()

	c, err := hub.Connect("u1", models.RoleAdmin)
	require.NoError(t, err)
	nextEvent(t, c)

	require.NoError(t, hub.SendTo(c.ID, EventNotificationMarkedAsRead, "n1"))
	assert.Equal(t, EventNotificationMarkedAsRead, nextEvent(t, c).Name)

	hub.Disconnect(c)
	hub.Disconnect(c)

	select {
	case <-c.Done():
	default:
		t.Fatal("done should be closed")
	}
	_, ok := hub.Conn(c.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, hub.SendTo(c.ID, "x", nil), ErrConnectionNotFound)

	require.NoError(t, hub.Publish(ctx, UserGroup("u1"), "late", nil))
	assertNoEvent(t, c)

	require.NoError(t, hub.Close())
}

func TestHub_MultipleConnectionsSameUser(t *testing.T) {
	hub := NewHub(NewMemoryBroker(), zap.NewNop(), 8)
	defer hub.Close()

	c1, _ := hub.Connect("u1", models.RoleDeveloper)
	c2, _ := hub.Connect("u1", models.RoleDeveloper)
	nextEvent(t, c1)
	nextEvent(t, c2)

	hub.Disconnect(c1)
	require.NoError(t, hub.Publish(context.Background(), UserGroup("u1"), "still-here", nil))
	assert.Equal(t, "still-here", nextEvent(t, c2).Name)
}
