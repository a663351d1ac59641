package types

import "time"

// AlertOp is a comparison operator in an alert condition
type AlertOp string

const (
	AlertOpGT  AlertOp = "gt"
	AlertOpGTE AlertOp = "gte"
	AlertOpLT  AlertOp = "lt"
	AlertOpLTE AlertOp = "lte"
	AlertOpEQ  AlertOp = "eq"
)

// ValidAlertOp reports whether op is a defined comparison operator
func ValidAlertOp(op AlertOp) bool {
	switch op {
	case AlertOpGT, AlertOpGTE, AlertOpLT, AlertOpLTE, AlertOpEQ:
		return true
	}
	return false
}

// AlertSeverity ranks how urgent a rule is
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// AlertCondition is one metric comparison inside a rule
type AlertCondition struct {
	Metric    string  `json:"metric"`
	Op        AlertOp `json:"op"`
	Threshold float64 `json:"threshold"`
}

// AlertCombinator joins multiple conditions
type AlertCombinator string

const (
	CombinatorAnd AlertCombinator = "AND"
	CombinatorOr  AlertCombinator = "OR"
)

// NotifyChannel is a notification transport for alerts
type NotifyChannel string

const (
	NotifyEmail   NotifyChannel = "email"
	NotifyWebhook NotifyChannel = "webhook"
	NotifySlack   NotifyChannel = "slack"
)

// AlertNotify configures where alert notifications go
type AlertNotify struct {
	Channels        []NotifyChannel `json:"channels"`
	EmailRecipients []string        `json:"emailRecipients,omitempty"`
	WebhookURL      string          `json:"webhookUrl,omitempty"`
	SlackWebhookURL string          `json:"slackWebhookUrl,omitempty"`
}

// AlertRule describes when and how to raise an alert.
// An empty TargetInstanceID means the rule applies fleet-wide.
type AlertRule struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Conditions       []AlertCondition `json:"conditions"`
	Combinator       AlertCombinator  `json:"combinator"`
	Severity         AlertSeverity    `json:"severity"`
	WindowSec        int              `json:"windowSec"`
	PendingForSec    int              `json:"pendingForSec"`
	CooldownSec      int              `json:"cooldownSec"`
	TargetInstanceID string           `json:"targetInstanceId,omitempty"`
	Notify           AlertNotify      `json:"notify"`
	Enabled          bool             `json:"enabled"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// AlertState is the evaluation state of a rule against one instance
type AlertState string

const (
	AlertInactive AlertState = "INACTIVE"
	AlertPending  AlertState = "PENDING"
	AlertFiring   AlertState = "FIRING"
	AlertResolved AlertState = "RESOLVED"
)

// AlertEvent records one firing of a rule against an instance
type AlertEvent struct {
	ID                string        `json:"id"`
	RuleID            string        `json:"ruleId"`
	InstanceID        string        `json:"instanceId"`
	State             AlertState    `json:"state"`
	Severity          AlertSeverity `json:"severity"`
	Metric            string        `json:"metric"`
	Value             float64       `json:"value"`
	Threshold         float64       `json:"threshold"`
	Message           string        `json:"message"`
	FiredAt           time.Time     `json:"firedAt"`
	ResolvedAt        *time.Time    `json:"resolvedAt,omitempty"`
	NotificationsSent int           `json:"notificationsSent"`
	DeliveryErrors    []string      `json:"deliveryErrors,omitempty"`
}
