package types

import "time"

// TaskStatus is the administrative state of a scheduled task
type TaskStatus string

const (
	TaskActive   TaskStatus = "ACTIVE"
	TaskPaused   TaskStatus = "PAUSED"
	TaskDisabled TaskStatus = "DISABLED"
)

// TaskNotifyPolicy controls when run results are reported
type TaskNotifyPolicy string

const (
	TaskNotifyNever     TaskNotifyPolicy = "NEVER"
	TaskNotifyOnFailure TaskNotifyPolicy = "ON_FAILURE"
	TaskNotifyAlways    TaskNotifyPolicy = "ALWAYS"
)

// Scheduled task defaults
const (
	DefaultTaskTimeoutSec = 300
	DefaultTaskMaxRetries = 0
)

// ScheduledTask runs a command on a cron schedule against one instance or
// the whole fleet (empty TargetInstanceID).
type ScheduledTask struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	CronExpr         string           `json:"cronExpr"`
	Timezone         string           `json:"timezone"`
	Command          string           `json:"command"`
	TargetInstanceID string           `json:"targetInstanceId,omitempty"`
	Status           TaskStatus       `json:"status"`
	TimeoutSec       int              `json:"timeoutSec"`
	MaxRetries       int              `json:"maxRetries"`
	NotifyPolicy     TaskNotifyPolicy `json:"notifyPolicy"`
	LastRunAt        *time.Time       `json:"lastRunAt,omitempty"`
	NextRunAt        *time.Time       `json:"nextRunAt,omitempty"`
	CreatedBy        string           `json:"createdBy"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// ExecutionStatus is the outcome state of one task run
type ExecutionStatus string

const (
	ExecPending  ExecutionStatus = "PENDING"
	ExecRunning  ExecutionStatus = "RUNNING"
	ExecSuccess  ExecutionStatus = "SUCCESS"
	ExecFailed   ExecutionStatus = "FAILED"
	ExecSkipped  ExecutionStatus = "SKIPPED"
	ExecTimedOut ExecutionStatus = "TIMED_OUT"
)

// TriggerSource records what started a task execution
type TriggerSource string

const (
	TriggerScheduler TriggerSource = "scheduler"
	TriggerManual    TriggerSource = "manual"
	TriggerAPI       TriggerSource = "api"
)

// TaskExecution captures one run of a scheduled task
type TaskExecution struct {
	ID          string          `json:"id"`
	TaskID      string          `json:"taskId"`
	InstanceID  string          `json:"instanceId,omitempty"`
	Status      ExecutionStatus `json:"status"`
	ExitCode    int             `json:"exitCode"`
	Stdout      string          `json:"stdout,omitempty"`
	Stderr      string          `json:"stderr,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
	DurationMS  int64           `json:"durationMs"`
	TriggeredBy TriggerSource   `json:"triggeredBy"`
}
