package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

type fakeRunner struct {
	mu       sync.Mutex
	calls    []string
	exitCode int
	block    chan struct{}
}

func (r *fakeRunner) Run(instanceID, command string, timeoutSec int) (int, string, string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, instanceID)
	r.mu.Unlock()
	if r.block != nil {
		<-r.block
	}
	return r.exitCode, "ok\n", "", nil
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestScheduler(t *testing.T, runner Runner) (*Scheduler, *Service, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	service := NewService(store)
	return NewScheduler(store, service, runner), service, store
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		tz    string
		valid bool
	}{
		{"every five minutes", "*/5 * * * *", "", true},
		{"daily at 3", "0 3 * * *", "UTC", true},
		{"with timezone", "0 9 * * 1-5", "Europe/Berlin", true},
		{"six fields", "0 0 3 * * *", "", false},
		{"garbage", "every day", "", false},
		{"bad timezone", "0 3 * * *", "Mars/Olympus", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseSchedule(tt.expr, tt.tz)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				_, ok := types.IsValidation(err)
				assert.True(t, ok)
			}
		})
	}
}

func TestNextRunHonorsTimezone(t *testing.T) {
	task := &types.ScheduledTask{ID: "t1", CronExpr: "0 9 * * *", Timezone: "Europe/Berlin"}
	// 07:00 UTC in March is 08:00 Berlin; next 09:00 Berlin is an hour out
	now := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	next, err := NextRun(task, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour).Unix(), next.Unix())
}

func TestCreateAppliesDefaults(t *testing.T) {
	_, service, store := newTestScheduler(t, &fakeRunner{})

	task := &types.ScheduledTask{
		Name:     "nightly cleanup",
		CronExpr: "0 3 * * *",
		Command:  "rm -rf /tmp/cache",
	}
	require.NoError(t, service.Create(task))

	stored, err := store.GetScheduledTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskActive, stored.Status)
	assert.Equal(t, "UTC", stored.Timezone)
	assert.Equal(t, types.DefaultTaskTimeoutSec, stored.TimeoutSec)
	require.NotNil(t, stored.NextRunAt)
}

func TestCreateValidation(t *testing.T) {
	_, service, _ := newTestScheduler(t, &fakeRunner{})

	err := service.Create(&types.ScheduledTask{Name: "bad", CronExpr: "nope", Command: "true"})
	_, ok := types.IsValidation(err)
	assert.True(t, ok)

	err = service.Create(&types.ScheduledTask{Name: "no command", CronExpr: "* * * * *"})
	_, ok = types.IsValidation(err)
	assert.True(t, ok)
}

func TestPauseClearsNextRun(t *testing.T) {
	_, service, _ := newTestScheduler(t, &fakeRunner{})

	task := &types.ScheduledTask{Name: "t", CronExpr: "* * * * *", Command: "true"}
	require.NoError(t, service.Create(task))

	paused, err := service.Pause(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskPaused, paused.Status)
	assert.Nil(t, paused.NextRunAt)

	activated, err := service.Activate(&types.User{Role: types.RoleOperator}, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskActive, activated.Status)
	assert.NotNil(t, activated.NextRunAt)
}

func TestDisabledNeedsAdmin(t *testing.T) {
	_, service, _ := newTestScheduler(t, &fakeRunner{})

	task := &types.ScheduledTask{Name: "t", CronExpr: "* * * * *", Command: "true"}
	require.NoError(t, service.Create(task))
	_, err := service.Disable(task.ID)
	require.NoError(t, err)

	_, err = service.Activate(&types.User{Role: types.RoleOperator}, task.ID)
	assert.ErrorIs(t, err, types.ErrForbidden)

	activated, err := service.Activate(&types.User{Role: types.RoleAdmin}, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskActive, activated.Status)
}

func TestTickRunsDueTask(t *testing.T) {
	runner := &fakeRunner{}
	scheduler, service, store := newTestScheduler(t, runner)

	task := &types.ScheduledTask{
		Name:             "t",
		CronExpr:         "* * * * *",
		Command:          "uptime",
		TargetInstanceID: "i1",
	}
	require.NoError(t, service.Create(task))

	// Force the task due
	due := time.Now().Add(-time.Minute)
	task.NextRunAt = &due
	require.NoError(t, store.UpdateScheduledTask(task))

	scheduler.Tick()
	scheduler.wg.Wait()

	assert.Equal(t, 1, runner.callCount())

	execs, err := store.ListTaskExecutions(task.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, execs)
	assert.Equal(t, types.ExecSuccess, execs[0].Status)
	assert.Equal(t, types.TriggerScheduler, execs[0].TriggeredBy)

	stored, err := store.GetScheduledTask(task.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastRunAt)
	require.NotNil(t, stored.NextRunAt)
	assert.True(t, stored.NextRunAt.After(due))
}

func TestOverlapRecordsSkipped(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	scheduler, service, store := newTestScheduler(t, runner)

	task := &types.ScheduledTask{
		Name:             "t",
		CronExpr:         "* * * * *",
		Command:          "sleep 60",
		TargetInstanceID: "i1",
	}
	require.NoError(t, service.Create(task))

	scheduler.RunNow(task.ID, types.TriggerManual)
	assert.Eventually(t, func() bool { return runner.callCount() == 1 }, time.Second, 10*time.Millisecond)

	// Second activation while the first still runs
	require.NoError(t, scheduler.RunNow(task.ID, types.TriggerAPI))
	close(runner.block)
	scheduler.wg.Wait()

	execs, err := store.ListTaskExecutions(task.ID, 10)
	require.NoError(t, err)

	var statuses []types.ExecutionStatus
	for _, exec := range execs {
		statuses = append(statuses, exec.Status)
	}
	assert.Contains(t, statuses, types.ExecSkipped)
	assert.Contains(t, statuses, types.ExecSuccess)
	assert.Equal(t, 1, runner.callCount())
}

func TestTimeoutExitCodeRecorded(t *testing.T) {
	runner := &fakeRunner{exitCode: 124}
	scheduler, service, store := newTestScheduler(t, runner)

	task := &types.ScheduledTask{
		Name:             "t",
		CronExpr:         "* * * * *",
		Command:          "sleep 600",
		TargetInstanceID: "i1",
	}
	require.NoError(t, service.Create(task))
	require.NoError(t, scheduler.RunNow(task.ID, types.TriggerManual))
	scheduler.wg.Wait()

	execs, err := store.ListTaskExecutions(task.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, execs)
	assert.Equal(t, types.ExecTimedOut, execs[0].Status)
	assert.Equal(t, 124, execs[0].ExitCode)
}

func TestFleetTargetRunsOnRunningInstances(t *testing.T) {
	runner := &fakeRunner{}
	scheduler, service, store := newTestScheduler(t, runner)

	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i1", Name: "web-1", Provider: types.ProviderFly, Status: types.StatusRunning}))
	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i2", Name: "web-2", Provider: types.ProviderFly, Status: types.StatusStopped}))

	task := &types.ScheduledTask{Name: "t", CronExpr: "* * * * *", Command: "uptime"}
	require.NoError(t, service.Create(task))
	require.NoError(t, scheduler.RunNow(task.ID, types.TriggerManual))
	scheduler.wg.Wait()

	assert.Equal(t, 1, runner.callCount())
}
