package alerting

import (
	"fmt"
	"math"

	"github.com/roosthq/roost/pkg/types"
)

// ValidateRule checks an alert rule before it is stored
func ValidateRule(rule *types.AlertRule) error {
	var details []string

	if rule.Name == "" {
		details = append(details, "name must not be empty")
	}
	if len(rule.Conditions) == 0 {
		details = append(details, "at least one condition is required")
	}
	for i, cond := range rule.Conditions {
		if cond.Metric == "" {
			details = append(details, fmt.Sprintf("condition %d: metric must not be empty", i))
		}
		if !types.ValidAlertOp(cond.Op) {
			details = append(details, fmt.Sprintf("condition %d: unknown op %q", i, cond.Op))
		}
		if math.IsNaN(cond.Threshold) || math.IsInf(cond.Threshold, 0) {
			details = append(details, fmt.Sprintf("condition %d: threshold must be finite", i))
		}
	}
	if len(rule.Conditions) > 1 && rule.Combinator != types.CombinatorAnd && rule.Combinator != types.CombinatorOr {
		details = append(details, fmt.Sprintf("unknown combinator %q", rule.Combinator))
	}
	switch rule.Severity {
	case types.AlertInfo, types.AlertWarning, types.AlertCritical:
	default:
		details = append(details, fmt.Sprintf("unknown severity %q", rule.Severity))
	}
	if rule.WindowSec <= 0 {
		details = append(details, "windowSec must be positive")
	}
	if rule.PendingForSec < 0 {
		details = append(details, "pendingForSec must be non-negative")
	}
	if rule.CooldownSec < 0 {
		details = append(details, "cooldownSec must be non-negative")
	}

	for _, ch := range rule.Notify.Channels {
		switch ch {
		case types.NotifyEmail, types.NotifySlack:
		case types.NotifyWebhook:
			if rule.Notify.WebhookURL == "" {
				details = append(details, "webhook channel requires a url")
			}
		default:
			details = append(details, fmt.Sprintf("unknown notify channel %q", ch))
		}
	}

	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	return nil
}

// conditionMet evaluates one comparison against a window average
func conditionMet(cond types.AlertCondition, value float64) bool {
	switch cond.Op {
	case types.AlertOpGT:
		return value > cond.Threshold
	case types.AlertOpGTE:
		return value >= cond.Threshold
	case types.AlertOpLT:
		return value < cond.Threshold
	case types.AlertOpLTE:
		return value <= cond.Threshold
	case types.AlertOpEQ:
		return value == cond.Threshold
	}
	return false
}
