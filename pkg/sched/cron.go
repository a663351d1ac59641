package sched

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/roosthq/roost/pkg/types"
)

// cronParser accepts POSIX 5-field expressions
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a 5-field cron expression in the given timezone.
// An empty timezone defaults to UTC.
func ParseSchedule(expr, timezone string) (cron.Schedule, *time.Location, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, nil, types.Validationf("unknown timezone %q", timezone)
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, nil, types.Validationf("invalid cron expression %q: %v", expr, err)
	}
	return schedule, loc, nil
}

// NextRun computes the next activation of a task after now
func NextRun(task *types.ScheduledTask, now time.Time) (time.Time, error) {
	schedule, loc, err := ParseSchedule(task.CronExpr, task.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("task %s: %w", task.ID, err)
	}
	return schedule.Next(now.In(loc)), nil
}
