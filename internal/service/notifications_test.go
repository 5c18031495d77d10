package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/realtime"
)

func (f *fixture) notify(t *testing.T, as, to *models.User, typ models.NotificationType) *models.Notification {
	t.Helper()
	n, err := f.notifications.Create(context.Background(), actorOf(as), CreateNotificationInput{
		UserID: to.ID, Title: "Heads up", Message: "Something happened", Type: typ,
	})
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}
	return n
}

func TestNotificationService_CreateDelivers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	a := f.user(t, "ada", models.RoleDeveloper)

	n, err := f.notifications.Create(ctx, actorOf(m), CreateNotificationInput{
		UserID: a.ID, Title: "Standup", Message: "Moved to 10:00",
		Metadata: map[string]any{"room": "blue"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationInfo, n.Type)
	assert.False(t, n.IsRead)

	recv := f.pusher.named(realtime.EventReceiveNotification)
	require.Len(t, recv, 1)
	payload, ok := recv[0].Data.(RealtimeNotification)
	require.True(t, ok)
	assert.Equal(t, n.ID, payload.ID)
	assert.Equal(t, "blue", payload.Metadata["room"])

	counts := f.pusher.named(realtime.EventUnreadNotificationCount)
	require.Len(t, counts, 1)
	assert.Equal(t, int64(1), counts[0].Data)

	f.notifications.Wait()
	f.dispatcher.mu.Lock()
	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, n.ID, f.dispatcher.sent[0].ID)
	f.dispatcher.mu.Unlock()
}

func TestNotificationService_CreateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "root", models.RoleAdmin)
	m := f.user(t, "mia", models.RoleManager)
	a := f.user(t, "ada", models.RoleDeveloper)

	_, err := f.notifications.Create(ctx, actorOf(a), CreateNotificationInput{UserID: m.ID, Title: "t", Message: "m"})
	requireKind(t, err, KindForbidden)
	_, err = f.notifications.Create(ctx, actorOf(m), CreateNotificationInput{UserID: a.ID, Title: "", Message: "m"})
	requireKind(t, err, KindValidation)
	_, err = f.notifications.Create(ctx, actorOf(m), CreateNotificationInput{UserID: a.ID, Title: "t", Message: "m", Type: "Loud"})
	requireKind(t, err, KindValidation)
	_, err = f.notifications.Create(ctx, actorOf(m), CreateNotificationInput{UserID: "ghost", Title: "t", Message: "m"})
	requireKind(t, err, KindNotFound)

	_, err = f.notifications.TestSend(ctx, actorOf(m), CreateNotificationInput{UserID: a.ID, Title: "t", Message: "m"})
	requireKind(t, err, KindForbidden)
	n, err := f.notifications.TestSend(ctx, actorOf(admin), CreateNotificationInput{UserID: a.ID, Title: "t", Message: "m"})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	f.notifications.Wait()
}

func TestNotificationService_MarkAsRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	a := f.user(t, "ada", models.RoleDeveloper)
	b := f.user(t, "bob", models.RoleDeveloper)
	n := f.notify(t, m, a, models.NotificationReminder)

	_, err := f.notifications.MarkAsRead(ctx, actorOf(a), "missing")
	requireKind(t, err, KindNotFound)

	_, err = f.notifications.MarkAsRead(ctx, actorOf(b), n.ID)
	requireKind(t, err, KindForbidden)

	f.pusher.reset()
	first, err := f.notifications.MarkAsRead(ctx, actorOf(a), n.ID)
	require.NoError(t, err)
	assert.True(t, first.IsRead)
	require.NotNil(t, first.ReadAt)

	counts := f.pusher.named(realtime.EventUnreadNotificationCount)
	require.Len(t, counts, 1)
	assert.Equal(t, realtime.UserGroup(a.ID), counts[0].Key)
	assert.Equal(t, int64(0), counts[0].Data)

	f.notifications.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	second, err := f.notifications.MarkAsRead(ctx, actorOf(a), n.ID)
	require.NoError(t, err)
	assert.True(t, second.IsRead)
	assert.True(t, first.ReadAt.Equal(*second.ReadAt), "read time must not move")
	f.notifications.Wait()
}

func TestNotificationService_ListSummaryMarkAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	a := f.user(t, "ada", models.RoleDeveloper)
	n1 := f.notify(t, m, a, models.NotificationInfo)
	f.notify(t, m, a, models.NotificationInfo)
	f.notify(t, m, a, models.NotificationWarning)

	_, err := f.notifications.MarkAsRead(ctx, actorOf(a), n1.ID)
	require.NoError(t, err)

	unread, err := f.notifications.List(ctx, actorOf(a), true, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 2)
	count, err := f.notifications.UnreadCount(ctx, actorOf(a))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	sum, err := f.notifications.Summary(ctx, actorOf(a))
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.TotalNotifications)
	assert.Equal(t, int64(2), sum.UnreadNotifications)
	assert.Equal(t, int64(1), sum.ReadNotifications)
	assert.Equal(t, int64(2), sum.NotificationsByType[models.NotificationInfo])
	assert.Equal(t, int64(1), sum.NotificationsByType[models.NotificationWarning])

	f.pusher.reset()
	changed, err := f.notifications.MarkAllAsRead(ctx, actorOf(a))
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)
	counts := f.pusher.named(realtime.EventUnreadNotificationCount)
	require.Len(t, counts, 1)
	assert.Equal(t, int64(0), counts[0].Data)

	// The first read time survives a mark-all.
	stored, err := f.store.Notifications().GetByID(ctx, n1.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReadAt)
	f.notifications.Wait()
}

func TestNotificationService_BulkAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	a := f.user(t, "ada", models.RoleDeveloper)
	b := f.user(t, "bob", models.RoleDeveloper)
	n1 := f.notify(t, m, a, models.NotificationInfo)
	n2 := f.notify(t, m, a, models.NotificationInfo)
	foreign := f.notify(t, m, b, models.NotificationInfo)

	_, err := f.notifications.BulkAction(ctx, actorOf(a), []string{n1.ID}, "archive")
	requireKind(t, err, KindValidation)

	processed, err := f.notifications.BulkAction(ctx, actorOf(a), []string{n1.ID, foreign.ID, "missing"}, "markAsRead")
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	processed, err = f.notifications.BulkAction(ctx, actorOf(a), []string{n1.ID, n2.ID, foreign.ID}, "DELETE")
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	left, err := f.notifications.List(ctx, actorOf(a), false, 0)
	require.NoError(t, err)
	assert.Empty(t, left)

	requireKind(t, f.notifications.Delete(ctx, actorOf(a), foreign.ID), KindForbidden)
	require.NoError(t, f.notifications.Delete(ctx, actorOf(b), foreign.ID))
	requireKind(t, f.notifications.Delete(ctx, actorOf(b), foreign.ID), KindNotFound)
	f.notifications.Wait()
}

func TestNotificationService_Cleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "root", models.RoleAdmin)
	m := f.user(t, "mia", models.RoleManager)
	a := f.user(t, "ada", models.RoleDeveloper)

	f.notifications.now = func() time.Time { return time.Now().UTC().AddDate(0, 0, -40) }
	f.notify(t, m, a, models.NotificationInfo)
	f.notifications.now = func() time.Time { return time.Now().UTC() }
	f.notify(t, m, a, models.NotificationInfo)

	_, err := f.notifications.Cleanup(ctx, actorOf(m), 30)
	requireKind(t, err, KindForbidden)

	deleted, err := f.notifications.Cleanup(ctx, actorOf(admin), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	left, err := f.notifications.List(ctx, actorOf(a), false, 0)
	require.NoError(t, err)
	assert.Len(t, left, 1)
	f.notifications.Wait()
}

func TestNotificationService_RunRetentionStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.notifications.RunRetention(ctx, 30, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("retention loop did not stop")
	}
}

func TestNotificationService_DeliveryFailuresAreSwallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	a := f.user(t, "ada", models.RoleDeveloper)
	f.pusher.err = errors.New("hub down")
	f.dispatcher.err = errors.New("slack down")

	p := f.project(t, m, a)
	_, err := f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{Title: "Still works", ProjectID: p.ID, AssignedToID: a.ID})
	require.NoError(t, err)
	f.notifications.Wait()

	assert.Len(t, f.notificationsFor(t, a.ID), 2)
}

func TestNotificationService_FanOutSkipsMissingRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)

	f.notifications.NotifyWorkItemAssigned(ctx, "missing", m.ID, "someone")
	f.notifications.NotifyWorkItemUpdated(ctx, "missing", m.ID)
	f.notifications.NotifyWorkItemCompleted(ctx, "missing", m.ID)
	f.notifications.NotifyProjectCreated(ctx, "missing", m.ID)
	f.notifications.NotifyTeamMemberAdded(ctx, "missing", m.ID, "ghost")

	assert.Empty(t, f.notificationsFor(t, m.ID))
	assert.Empty(t, f.pusher.named(realtime.EventReceiveNotification))
}
