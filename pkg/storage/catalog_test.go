package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roosthq/roost/pkg/types"
)

func TestExtensionSlugConflict(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.CreateExtension(&types.Extension{ID: "x1", Slug: "git", Name: "Git", Status: types.ExtensionApproved}))

	err := store.CreateExtension(&types.Extension{ID: "x2", Slug: "git", Name: "Git Again"})
	assert.ErrorIs(t, err, types.ErrConflict)

	ext, err := store.GetExtensionBySlug("git")
	require.NoError(t, err)
	assert.Equal(t, "x1", ext.ID)
}

func TestExtensionInstallationsFilteredByInstance(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.PutExtensionInstallation(&types.ExtensionInstallation{ID: "in1", InstanceID: "i1", Slug: "git"}))
	require.NoError(t, store.PutExtensionInstallation(&types.ExtensionInstallation{ID: "in2", InstanceID: "i1", Slug: "docker"}))
	require.NoError(t, store.PutExtensionInstallation(&types.ExtensionInstallation{ID: "in3", InstanceID: "i2", Slug: "git"}))

	installs, err := store.ListExtensionInstallations("i1")
	require.NoError(t, err)
	assert.Len(t, installs, 2)

	require.NoError(t, store.DeleteExtensionInstallation("in1"))
	installs, err = store.ListExtensionInstallations("i1")
	require.NoError(t, err)
	assert.Len(t, installs, 1)
}

func TestGetTemplateByIdOrSlug(t *testing.T) {
	store := newStore(t)
	tpl := &types.DeploymentTemplate{ID: "t1", Name: "Go API", Slug: "go-api", YAMLContent: "name: go-api"}
	require.NoError(t, store.CreateTemplate(tpl))

	byID, err := store.GetTemplate("t1")
	require.NoError(t, err)
	assert.Equal(t, "go-api", byID.Slug)

	bySlug, err := store.GetTemplate("go-api")
	require.NoError(t, err)
	assert.Equal(t, "t1", bySlug.ID)

	_, err = store.GetTemplate("missing")
	assert.ErrorIs(t, err, types.ErrNotFound)

	err = store.CreateTemplate(&types.DeploymentTemplate{ID: "t2", Name: "Other", Slug: "go-api"})
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestTaskExecutionsNewestFirstWithLimit(t *testing.T) {
	store := newStore(t)
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		exec := &types.TaskExecution{
			ID:        string(rune('a' + i)),
			TaskID:    "task-1",
			Status:    types.ExecSuccess,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.PutTaskExecution(exec))
	}
	require.NoError(t, store.PutTaskExecution(&types.TaskExecution{ID: "z", TaskID: "task-2", StartedAt: base}))

	execs, err := store.ListTaskExecutions("task-1", 2)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, "d", execs[0].ID)
	assert.Equal(t, "c", execs[1].ID)

	all, err := store.ListTaskExecutions("task-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestScheduledTaskUpdateRequiresExisting(t *testing.T) {
	store := newStore(t)
	err := store.UpdateScheduledTask(&types.ScheduledTask{ID: "ghost"})
	assert.ErrorIs(t, err, types.ErrNotFound)

	task := &types.ScheduledTask{ID: "task-1", Name: "backup", CronExpr: "0 3 * * *", Command: "backup.sh", Status: types.TaskActive}
	require.NoError(t, store.CreateScheduledTask(task))

	task.Status = types.TaskPaused
	require.NoError(t, store.UpdateScheduledTask(task))

	got, err := store.GetScheduledTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskPaused, got.Status)
}
