package sched

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// Service owns scheduled task administration: creation, pausing,
// reactivation and next-run maintenance.
type Service struct {
	store   storage.Store
	nowFunc func() time.Time
}

// NewService creates the task service
func NewService(store storage.Store) *Service {
	return &Service{store: store, nowFunc: time.Now}
}

// ValidateTask checks a task definition
func ValidateTask(task *types.ScheduledTask) error {
	var details []string
	if task.Name == "" {
		details = append(details, "name must not be empty")
	}
	if task.Command == "" {
		details = append(details, "command must not be empty")
	}
	if task.TimeoutSec < 0 {
		details = append(details, "timeoutSec must be non-negative")
	}
	if task.MaxRetries < 0 {
		details = append(details, "maxRetries must be non-negative")
	}
	if _, _, err := ParseSchedule(task.CronExpr, task.Timezone); err != nil {
		if ve, ok := types.IsValidation(err); ok {
			details = append(details, ve.Details...)
		} else {
			details = append(details, err.Error())
		}
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	return nil
}

// Create stores a new task, applying defaults and computing its first
// activation
func (s *Service) Create(task *types.ScheduledTask) error {
	if task.Timezone == "" {
		task.Timezone = "UTC"
	}
	if task.TimeoutSec == 0 {
		task.TimeoutSec = types.DefaultTaskTimeoutSec
	}
	if task.NotifyPolicy == "" {
		task.NotifyPolicy = types.TaskNotifyOnFailure
	}
	if err := ValidateTask(task); err != nil {
		return err
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = types.TaskActive
	}
	now := s.nowFunc()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == types.TaskActive {
		next, err := NextRun(task, now)
		if err != nil {
			return err
		}
		task.NextRunAt = &next
	}
	return s.store.CreateScheduledTask(task)
}

// Pause stops scheduling and clears the next activation
func (s *Service) Pause(taskID string) (*types.ScheduledTask, error) {
	task, err := s.store.GetScheduledTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == types.TaskDisabled {
		return nil, fmt.Errorf("%w: task is disabled", types.ErrInvalidState)
	}
	task.Status = types.TaskPaused
	task.NextRunAt = nil
	task.UpdatedAt = s.nowFunc()
	return task, s.store.UpdateScheduledTask(task)
}

// Activate resumes a paused task, recomputing its next activation. A
// DISABLED task can only be re-enabled by an ADMIN.
func (s *Service) Activate(actor *types.User, taskID string) (*types.ScheduledTask, error) {
	task, err := s.store.GetScheduledTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == types.TaskDisabled && actor.Role != types.RoleAdmin {
		return nil, fmt.Errorf("%w: re-enabling a disabled task requires ADMIN", types.ErrForbidden)
	}
	task.Status = types.TaskActive
	now := s.nowFunc()
	next, err := NextRun(task, now)
	if err != nil {
		return nil, err
	}
	task.NextRunAt = &next
	task.UpdatedAt = now
	return task, s.store.UpdateScheduledTask(task)
}

// Disable turns a task off until an ADMIN re-enables it
func (s *Service) Disable(taskID string) (*types.ScheduledTask, error) {
	task, err := s.store.GetScheduledTask(taskID)
	if err != nil {
		return nil, err
	}
	task.Status = types.TaskDisabled
	task.NextRunAt = nil
	task.UpdatedAt = s.nowFunc()
	return task, s.store.UpdateScheduledTask(task)
}

// advance records a completed activation and computes the next one
func (s *Service) advance(task *types.ScheduledTask, ranAt time.Time) error {
	task.LastRunAt = &ranAt
	if task.Status == types.TaskActive {
		next, err := NextRun(task, ranAt)
		if err != nil {
			return err
		}
		task.NextRunAt = &next
	}
	task.UpdatedAt = s.nowFunc()
	return s.store.UpdateScheduledTask(task)
}
