package sched

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roosthq/roost/pkg/log"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// DefaultTickInterval is how often the scheduler checks for due tasks
const DefaultTickInterval = 15 * time.Second

// Scheduler runs due tasks on their cron schedule. Overlapping
// activations of the same task are recorded as SKIPPED.
type Scheduler struct {
	store   storage.Store
	service *Service
	runner  Runner
	logger  zerolog.Logger

	tickInterval time.Duration
	nowFunc      func() time.Time

	mu      sync.Mutex
	running map[string]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates the scheduler
func NewScheduler(store storage.Store, service *Service, runner Runner) *Scheduler {
	return &Scheduler{
		store:        store,
		service:      service,
		runner:       runner,
		logger:       log.WithComponent("sched"),
		tickInterval: DefaultTickInterval,
		nowFunc:      time.Now,
		running:      make(map[string]bool),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the tick loop
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info().Msg("Scheduler started")
}

// Stop halts the tick loop; in-flight executions finish on their own
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs every ACTIVE task whose next activation is due
func (s *Scheduler) Tick() {
	tasks, err := s.store.ListScheduledTasks()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list tasks")
		return
	}
	now := s.nowFunc()
	for _, task := range tasks {
		if task.Status != types.TaskActive || task.NextRunAt == nil || task.NextRunAt.After(now) {
			continue
		}
		s.launch(task, types.TriggerScheduler)
	}
}

// RunNow triggers a task outside its schedule
func (s *Scheduler) RunNow(taskID string, trigger types.TriggerSource) error {
	task, err := s.store.GetScheduledTask(taskID)
	if err != nil {
		return err
	}
	s.launch(task, trigger)
	return nil
}

// launch starts one execution unless the prior one is still running, in
// which case a SKIPPED record is written
func (s *Scheduler) launch(task *types.ScheduledTask, trigger types.TriggerSource) {
	now := s.nowFunc()

	s.mu.Lock()
	if s.running[task.ID] {
		s.mu.Unlock()
		s.record(&types.TaskExecution{
			ID:          uuid.New().String(),
			TaskID:      task.ID,
			InstanceID:  task.TargetInstanceID,
			Status:      types.ExecSkipped,
			StartedAt:   now,
			TriggeredBy: trigger,
		})
		if err := s.service.advance(task, now); err != nil {
			s.logger.Error().Err(err).Str("task_id", task.ID).Msg("Failed to advance task")
		}
		return
	}
	s.running[task.ID] = true
	s.mu.Unlock()

	if err := s.service.advance(task, now); err != nil {
		s.logger.Error().Err(err).Str("task_id", task.ID).Msg("Failed to advance task")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, task.ID)
			s.mu.Unlock()
		}()
		s.execute(task, trigger, now)
	}()
}

// execute runs the task against its target, or every instance when the
// target is empty
func (s *Scheduler) execute(task *types.ScheduledTask, trigger types.TriggerSource, startedAt time.Time) {
	targets := []string{task.TargetInstanceID}
	if task.TargetInstanceID == "" {
		instances, err := s.store.ListInstances()
		if err != nil {
			s.logger.Error().Err(err).Str("task_id", task.ID).Msg("Failed to resolve fleet targets")
			return
		}
		targets = targets[:0]
		for _, inst := range instances {
			if inst.Status == types.StatusRunning {
				targets = append(targets, inst.ID)
			}
		}
	}

	for _, instanceID := range targets {
		s.runOnInstance(task, instanceID, trigger, startedAt)
	}
}

func (s *Scheduler) runOnInstance(task *types.ScheduledTask, instanceID string, trigger types.TriggerSource, startedAt time.Time) {
	exec := &types.TaskExecution{
		ID:          uuid.New().String(),
		TaskID:      task.ID,
		InstanceID:  instanceID,
		Status:      types.ExecRunning,
		StartedAt:   startedAt,
		TriggeredBy: trigger,
	}
	s.record(exec)

	var exitCode int
	var stdout, stderr string
	var err error
	for attempt := 0; attempt <= task.MaxRetries; attempt++ {
		exitCode, stdout, stderr, err = s.runner.Run(instanceID, task.Command, task.TimeoutSec)
		if err == nil && exitCode == 0 {
			break
		}
	}

	finished := s.nowFunc()
	exec.FinishedAt = &finished
	exec.DurationMS = finished.Sub(startedAt).Milliseconds()
	exec.Stdout = stdout
	exec.Stderr = stderr

	switch {
	case err != nil:
		exec.Status = types.ExecFailed
		exec.Stderr = err.Error()
	case exitCode == 124:
		exec.Status = types.ExecTimedOut
		exec.ExitCode = exitCode
	case exitCode == 0:
		exec.Status = types.ExecSuccess
	default:
		exec.Status = types.ExecFailed
		exec.ExitCode = exitCode
	}
	s.record(exec)

	if exec.Status != types.ExecSuccess {
		s.logger.Warn().
			Str("task_id", task.ID).
			Str("instance_id", instanceID).
			Str("status", string(exec.Status)).
			Msg("Task execution did not succeed")
	}
}

func (s *Scheduler) record(exec *types.TaskExecution) {
	if err := s.store.PutTaskExecution(exec); err != nil {
		s.logger.Error().Err(err).Str("task_id", exec.TaskID).Msg("Failed to record execution")
	}
}
