package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
	"github.com/ahmetcdevelopment/task-management-api/internal/realtime"
	"github.com/ahmetcdevelopment/task-management-api/internal/storage"
)

func TestWorkItemService_CreateDueDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	p := f.project(t, m)

	past := time.Now().Add(-time.Hour)
	_, err := f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{Title: "Late", ProjectID: p.ID, DueDate: &past})
	requireKind(t, err, KindValidation)

	future := time.Now().Add(48 * time.Hour)
	item, err := f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{Title: "On time", ProjectID: p.ID, DueDate: &future})
	require.NoError(t, err)
	assert.Equal(t, models.StatusToDo, item.Status)
	assert.Equal(t, models.PriorityMedium, item.Priority)

	item, err = f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{Title: "No date", ProjectID: p.ID})
	require.NoError(t, err)
	assert.Nil(t, item.DueDate)

	logs := f.logsFor(t, item.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionCreated, logs[0].Action)
	assert.Equal(t, "WorkItem created", logs[0].Description)
}

func TestWorkItemService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	outsider := f.user(t, "otto", models.RoleDeveloper)
	inactive := f.user(t, "ivan", models.RoleDeveloper)
	inactive.IsActive = false
	require.NoError(t, f.store.Users().Update(ctx, inactive))
	p := f.project(t, m)

	long := make([]byte, MaxWorkItemTitle+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name string
		as   *models.User
		in   CreateWorkItemInput
		kind Kind
	}{
		{"blank title", m, CreateWorkItemInput{Title: "  ", ProjectID: p.ID}, KindValidation},
		{"long title", m, CreateWorkItemInput{Title: string(long), ProjectID: p.ID}, KindValidation},
		{"bad priority", m, CreateWorkItemInput{Title: "t", ProjectID: p.ID, Priority: "Urgent"}, KindValidation},
		{"missing project", m, CreateWorkItemInput{Title: "t", ProjectID: "nope"}, KindNotFound},
		{"unknown assignee", m, CreateWorkItemInput{Title: "t", ProjectID: p.ID, AssignedToID: "ghost"}, KindNotFound},
		{"inactive assignee", m, CreateWorkItemInput{Title: "t", ProjectID: p.ID, AssignedToID: inactive.ID}, KindNotFound},
		{"outsider", outsider, CreateWorkItemInput{Title: "t", ProjectID: p.ID}, KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.workItems.Create(ctx, actorOf(tt.as), tt.in)
			requireKind(t, err, tt.kind)
		})
	}
}

func TestWorkItemService_CreateNotifiesAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	a := f.user(t, "ada", models.RoleDeveloper)
	p := f.project(t, m, a)
	f.pusher.reset()

	item, err := f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{Title: "Build", ProjectID: p.ID, AssignedToID: a.ID})
	require.NoError(t, err)

	got := f.notificationsFor(t, a.ID)
	require.NotEmpty(t, got)
	n := got[0]
	assert.Equal(t, models.NotificationTaskAssigned, n.Type)
	assert.Equal(t, "New WorkItem Assigned", n.Title)
	assert.Equal(t, "You have been assigned to work item: Build by mia Tester", n.Message)
	assert.Equal(t, "/workitems/"+item.ID, n.ActionURL)
	assert.Equal(t, models.EntityWorkItem, n.RelatedEntityType)
	assert.Equal(t, item.ID, n.Metadata["workItemId"])
	assert.Equal(t, m.ID, n.Metadata["assignedById"])

	recv := f.pusher.named(realtime.EventReceiveNotification)
	require.Len(t, recv, 1)
	assert.Equal(t, realtime.UserGroup(a.ID), recv[0].Key)
	counts := f.pusher.named(realtime.EventUnreadNotificationCount)
	require.Len(t, counts, 1)
	assert.Equal(t, int64(2), counts[0].Data, "project-created plus assignment")

	// Self-assignment does not notify.
	before := len(f.notificationsFor(t, m.ID))
	_, err = f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{Title: "Mine", ProjectID: p.ID, AssignedToID: m.ID})
	require.NoError(t, err)
	assert.Len(t, f.notificationsFor(t, m.ID), before)

	f.notifications.Wait()
}

func TestWorkItemService_UpdateIdenticalPayloadHasNoEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	a := f.user(t, "ada", models.RoleDeveloper)
	p := f.project(t, m, a)
	due := time.Now().Add(72 * time.Hour).UTC()
	item, err := f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{
		Title: "Same", Description: "d", ProjectID: p.ID, AssignedToID: a.ID,
		Priority: models.PriorityHigh, DueDate: &due, EstimatedHours: 5, Tags: []string{"x", "y"},
	})
	require.NoError(t, err)
	logsBefore := len(f.logsFor(t, item.ID))
	notesBefore := len(f.notificationsFor(t, a.ID))

	_, err = f.workItems.Update(ctx, actorOf(m), item.ID, UpdateWorkItemInput{
		Title:          ptr("Same"),
		Description:    ptr("d"),
		AssignedToID:   ptr(a.ID),
		Priority:       ptr(models.PriorityHigh),
		DueDate:        &due,
		EstimatedHours: ptr(5),
		ActualHours:    ptr(0),
		Tags:           &[]string{"x", "y"},
	})
	require.NoError(t, err)

	assert.Len(t, f.logsFor(t, item.ID), logsBefore)
	assert.Len(t, f.notificationsFor(t, a.ID), notesBefore)
}

func TestWorkItemService_UpdateWritesOneAuditEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	a := f.user(t, "ada", models.RoleDeveloper)
	b := f.user(t, "bob", models.RoleDeveloper)
	p := f.project(t, m, a, b)
	item, err := f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{Title: "Old", ProjectID: p.ID, AssignedToID: a.ID})
	require.NoError(t, err)

	updated, err := f.workItems.Update(ctx, actorOf(m), item.ID, UpdateWorkItemInput{
		Title:          ptr("New"),
		AssignedToID:   ptr(b.ID),
		Priority:       ptr(models.PriorityCritical),
		EstimatedHours: ptr(8),
		Tags:           &[]string{"backend"},
	})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)
	assert.Equal(t, b.ID, updated.AssignedToID)

	logs := f.logsFor(t, item.ID)
	require.Len(t, logs, 2)
	assert.Equal(t, models.ActionUpdated, logs[0].Action)
	assert.Equal(t,
		"Title changed from 'Old' to 'New', Assignee changed from 'ada Tester' to 'bob Tester', "+
			"Priority changed from 'Medium' to 'Critical', Estimated hours changed from 0 to 8, Tags updated",
		logs[0].Description)

	// The new assignee receives the update notification.
	notes := f.notificationsFor(t, b.ID)
	require.NotEmpty(t, notes)
	assert.Equal(t, models.NotificationTaskUpdated, notes[0].Type)
	assert.Equal(t, "Work item 'New' has been updated by mia Tester", notes[0].Message)
}

func TestWorkItemService_UpdateAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	a := f.user(t, "ada", models.RoleDeveloper)
	p := f.project(t, m, a)
	item, err := f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{Title: "T", ProjectID: p.ID, AssignedToID: a.ID})
	require.NoError(t, err)

	_, err = f.workItems.Update(ctx, actorOf(m), item.ID, UpdateWorkItemInput{AssignedToID: ptr("ghost")})
	requireKind(t, err, KindNotFound)

	updated, err := f.workItems.Update(ctx, actorOf(m), item.ID, UpdateWorkItemInput{AssignedToID: ptr("")})
	require.NoError(t, err)
	assert.Empty(t, updated.AssignedToID)
	assert.Equal(t, "Assignee changed from 'ada Tester' to 'Unassigned'", f.logsFor(t, item.ID)[0].Description)
}

func TestWorkItemService_UpdateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	p := f.project(t, m)
	item, err := f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{Title: "T", ProjectID: p.ID})
	require.NoError(t, err)

	for name, in := range map[string]UpdateWorkItemInput{
		"blank title":     {Title: ptr(" ")},
		"zero estimate":   {EstimatedHours: ptr(0)},
		"negative actual": {ActualHours: ptr(-1)},
		"bad priority":    {Priority: ptr(models.Priority("Urgent"))},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.workItems.Update(ctx, actorOf(m), item.ID, in)
			requireKind(t, err, KindValidation)
		})
	}
}

// UpdateStatus accepts moves the transition graph would reject.
func TestWorkItemService_UpdateStatusIgnoresTransitionGraph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	p := f.project(t, m)
	item, err := f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{Title: "T", ProjectID: p.ID})
	require.NoError(t, err)

	require.Error(t, models.ValidateStatusTransition(models.StatusToDo, models.StatusDone))
	done, err := f.workItems.UpdateStatus(ctx, actorOf(m), item.ID, models.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, done.Status)
	assert.NotNil(t, done.CompletedAt)

	require.Error(t, models.ValidateStatusTransition(models.StatusDone, models.StatusCancelled))
	_, err = f.workItems.UpdateStatus(ctx, actorOf(m), item.ID, models.StatusCancelled)
	require.NoError(t, err)

	_, err = f.workItems.UpdateStatus(ctx, actorOf(m), item.ID, "Blocked")
	requireKind(t, err, KindValidation)
}

func TestWorkItemService_CompletionScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	a := f.user(t, "ada", models.RoleDeveloper)
	b := f.user(t, "bob", models.RoleDeveloper)
	p := f.project(t, m, a, b)

	w, err := f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{Title: "Ship", ProjectID: p.ID, AssignedToID: a.ID})
	require.NoError(t, err)
	aBefore := f.notificationsFor(t, a.ID)

	w, err = f.workItems.UpdateStatus(ctx, actorOf(a), w.ID, models.StatusInProgress)
	require.NoError(t, err)
	assert.Nil(t, w.CompletedAt)
	stored, err := f.store.WorkItems().GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.CompletedAt)

	w, err = f.workItems.UpdateStatus(ctx, actorOf(a), w.ID, models.StatusDone)
	require.NoError(t, err)
	require.NotNil(t, w.CompletedAt)
	stored, err = f.store.WorkItems().GetByID(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CompletedAt)

	var statusLogs []*models.WorkItemLog
	for _, l := range f.logsFor(t, w.ID) {
		if l.Action == models.ActionStatusChanged {
			statusLogs = append(statusLogs, l)
		}
	}
	require.Len(t, statusLogs, 2)
	assert.Equal(t, "Status changed from 'InProgress' to 'Done'", statusLogs[0].Description)
	assert.Equal(t, "Status changed from 'ToDo' to 'InProgress'", statusLogs[1].Description)

	var completed []*models.Notification
	for _, n := range f.notificationsFor(t, m.ID) {
		if n.Type == models.NotificationTaskCompleted {
			completed = append(completed, n)
		}
	}
	require.Len(t, completed, 1)
	assert.Equal(t, "Work item 'Ship' has been completed by ada Tester", completed[0].Message)
	assert.Equal(t, a.ID, completed[0].Metadata["completedById"])

	// The assignee was the actor both times, so nothing new reached A.
	assert.Len(t, f.notificationsFor(t, a.ID), len(aBefore))
	for _, n := range f.notificationsFor(t, b.ID) {
		assert.NotEqual(t, models.NotificationTaskCompleted, n.Type)
	}
}

func TestWorkItemService_AssignCommentDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	a := f.user(t, "ada", models.RoleDeveloper)
	p := f.project(t, m, a)
	item, err := f.workItems.Create(ctx, actorOf(a), CreateWorkItemInput{Title: "T", ProjectID: p.ID})
	require.NoError(t, err)

	_, err = f.workItems.Assign(ctx, actorOf(m), item.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Assignee changed from 'Unassigned' to 'ada Tester'", f.logsFor(t, item.ID)[0].Description)

	c, err := f.workItems.AddComment(ctx, actorOf(a), item.ID, "looks good")
	require.NoError(t, err)
	got, err := f.workItems.Get(ctx, actorOf(a), item.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, c.ID, got.Comments[0].ID)
	assert.Equal(t, models.ActionCommentAdded, f.logsFor(t, item.ID)[0].Action)

	// Developers cannot delete, the project manager can.
	requireKind(t, f.workItems.Delete(ctx, actorOf(a), item.ID), KindForbidden)
	require.NoError(t, f.workItems.Delete(ctx, actorOf(m), item.ID))

	_, err = f.workItems.Get(ctx, actorOf(m), item.ID)
	requireKind(t, err, KindNotFound)
	logs := f.logsFor(t, item.ID)
	require.NotEmpty(t, logs)
	assert.Equal(t, models.ActionDeleted, logs[0].Action)
}

func TestWorkItemService_Queries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.user(t, "mia", models.RoleManager)
	a := f.user(t, "ada", models.RoleDeveloper)
	outsider := f.user(t, "otto", models.RoleDeveloper)
	admin := f.user(t, "root", models.RoleAdmin)
	p := f.project(t, m, a)

	soon := time.Now().Add(24 * time.Hour)
	later := time.Now().Add(10 * 24 * time.Hour)
	i1, err := f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{Title: "Soon", ProjectID: p.ID, AssignedToID: a.ID, DueDate: &soon, Tags: []string{"api"}})
	require.NoError(t, err)
	_, err = f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{Title: "Later", ProjectID: p.ID, DueDate: &later, Priority: models.PriorityHigh})
	require.NoError(t, err)
	overdue, err := f.workItems.Create(ctx, actorOf(m), CreateWorkItemInput{Title: "Overdue", ProjectID: p.ID})
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour).UTC()
	overdue.DueDate = &past
	require.NoError(t, f.store.WorkItems().Update(ctx, overdue))

	mine, err := f.workItems.Mine(ctx, actorOf(a))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, i1.ID, mine[0].ID)

	dueSoon, err := f.workItems.DueSoon(ctx, actorOf(a), 0)
	require.NoError(t, err)
	require.Len(t, dueSoon, 1)
	assert.Equal(t, "Soon", dueSoon[0].Title)

	od, err := f.workItems.Overdue(ctx, actorOf(m))
	require.NoError(t, err)
	require.Len(t, od, 1)
	assert.Equal(t, overdue.ID, od[0].ID)

	tagged, err := f.workItems.List(ctx, actorOf(a), storage.WorkItemFilter{Tag: "api"})
	require.NoError(t, err)
	assert.Len(t, tagged, 1)

	hidden, err := f.workItems.List(ctx, actorOf(outsider), storage.WorkItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, hidden)
	_, err = f.workItems.ByProject(ctx, actorOf(outsider), p.ID)
	requireKind(t, err, KindForbidden)

	stats, err := f.workItems.Stats(ctx, actorOf(a), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(3), stats.ByStatus[models.StatusToDo])
	assert.Equal(t, int64(1), stats.ByPriority[models.PriorityHigh])

	_, err = f.workItems.Stats(ctx, actorOf(a), "")
	requireKind(t, err, KindValidation)
	all, err := f.workItems.Stats(ctx, actorOf(admin), "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
}
