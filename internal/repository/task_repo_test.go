package repository

import (
	"context"
	"testing"

	"eamcrm/internal/apperr"
	"eamcrm/internal/dbtest"
	"eamcrm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskLifecycle(t *testing.T) {
	db := dbtest.Seeded(t)
	ctx := context.Background()
	repo := NewTaskRepository(db)
	t1 := dbtest.Tenant(t, db, "t1")
	t2 := dbtest.Tenant(t, db, "t2")

	staff := models.User{TenantID: &t1.ID, Email: "rm@t1.test"}
	require.NoError(t, NewUserRepository(db).Create(ctx, &staff, "hash", []string{models.RoleTenantUser}))
	outsider := models.User{TenantID: &t2.ID, Email: "rm@t2.test"}
	require.NoError(t, NewUserRepository(db).Create(ctx, &outsider, "hash", []string{models.RoleTenantUser}))
	client := models.Client{FirstName: strPtr("Ada")}
	require.NoError(t, NewClientRepository(db).Create(ctx, t1.ID, &client))

	task := models.Task{TenantID: t1.ID, Title: "Collect passport", ClientID: &client.ID, AssignedToID: &staff.ID}
	require.NoError(t, repo.Create(ctx, &task))
	assert.Equal(t, "general", task.TaskType)
	assert.Equal(t, models.TaskPending, task.Status)

	err := repo.Create(ctx, &models.Task{TenantID: t1.ID})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
	err = repo.Create(ctx, &models.Task{TenantID: t1.ID, Title: "x", TaskType: "party"})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
	err = repo.Create(ctx, &models.Task{TenantID: t2.ID, Title: "x", ClientID: &client.ID})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	err = repo.Create(ctx, &models.Task{TenantID: t1.ID, Title: "x", AssignedToID: &outsider.ID})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = repo.Get(ctx, task.ID, t2.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, repo.Update(ctx, &task, TaskUpdate{Status: strPtr(models.TaskInProgress)}))
	assert.Equal(t, models.TaskInProgress, task.Status)
	assert.Nil(t, task.CompletedAt)

	require.NoError(t, repo.Complete(ctx, &task))
	assert.Equal(t, models.TaskCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, apperr.Is(repo.Complete(ctx, &task), apperr.KindConflict))

	require.NoError(t, repo.Update(ctx, &task, TaskUpdate{Status: strPtr(models.TaskPending), AssignedToID: strPtr("")}))
	assert.Nil(t, task.CompletedAt)
	assert.Nil(t, task.AssignedToID)

	require.NoError(t, repo.Update(ctx, &task, TaskUpdate{Status: strPtr(models.TaskCancelled)}))
	assert.True(t, apperr.Is(repo.Complete(ctx, &task), apperr.KindInvalid))
	assert.True(t, apperr.Is(repo.Update(ctx, &task, TaskUpdate{Status: strPtr("done")}), apperr.KindInvalid))
}

func TestTaskListFilters(t *testing.T) {
	db := dbtest.Seeded(t)
	ctx := context.Background()
	repo := NewTaskRepository(db)
	t1 := dbtest.Tenant(t, db, "t1")
	t2 := dbtest.Tenant(t, db, "t2")
	staff := models.User{TenantID: &t1.ID, Email: "rm@t1.test"}
	require.NoError(t, NewUserRepository(db).Create(ctx, &staff, "hash", []string{models.RoleTenantUser}))

	mine := models.Task{TenantID: t1.ID, Title: "mine", TaskType: "kyc_review", AssignedToID: &staff.ID}
	open := models.Task{TenantID: t1.ID, Title: "open"}
	other := models.Task{TenantID: t2.ID, Title: "other"}
	for _, task := range []*models.Task{&mine, &open, &other} {
		require.NoError(t, repo.Create(ctx, task))
	}
	require.NoError(t, repo.Complete(ctx, &open))

	titles := func(f TaskFilter) []string {
		tasks, err := repo.List(ctx, f)
		require.NoError(t, err)
		out := make([]string, len(tasks))
		for i, task := range tasks {
			out[i] = task.Title
		}
		return out
	}
	assert.ElementsMatch(t, []string{"mine", "open"}, titles(TaskFilter{TenantID: t1.ID}))
	assert.ElementsMatch(t, []string{"mine", "open", "other"}, titles(TaskFilter{}))
	assert.Equal(t, []string{"mine"}, titles(TaskFilter{TenantID: t1.ID, AssignedToID: staff.ID}))
	assert.Equal(t, []string{"open"}, titles(TaskFilter{TenantID: t1.ID, Status: models.TaskCompleted}))
	assert.Equal(t, []string{"mine"}, titles(TaskFilter{TaskType: "kyc_review"}))

	_, err := repo.List(ctx, TaskFilter{ClientID: "42"})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
	_, err = repo.List(ctx, TaskFilter{Status: "done"})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))
}
