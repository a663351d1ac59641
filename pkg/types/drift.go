package types

import "time"

// DriftType classifies one mismatch between deployed and desired state
type DriftType string

const (
	DriftMissingExtension  DriftType = "MISSING_EXTENSION"
	DriftConfigHashChange  DriftType = "CONFIG_HASH_CHANGE"
	DriftExtensionMismatch DriftType = "EXTENSION_MISMATCH"
	DriftResourceDrift     DriftType = "RESOURCE_DRIFT"
	DriftVersionMismatch   DriftType = "VERSION_MISMATCH"
	DriftExtraExtension    DriftType = "EXTRA_EXTENSION"
)

// DriftSeverity ranks a drift item
type DriftSeverity string

const (
	DriftCritical DriftSeverity = "CRITICAL"
	DriftHigh     DriftSeverity = "HIGH"
	DriftMedium   DriftSeverity = "MEDIUM"
	DriftLow      DriftSeverity = "LOW"
)

// SeverityForDriftType maps each drift type to its fixed severity
func SeverityForDriftType(t DriftType) DriftSeverity {
	switch t {
	case DriftMissingExtension:
		return DriftCritical
	case DriftConfigHashChange, DriftExtensionMismatch:
		return DriftHigh
	case DriftResourceDrift, DriftVersionMismatch:
		return DriftMedium
	default:
		return DriftLow
	}
}

// driftRank orders severities for report aggregation
var driftRank = map[DriftSeverity]int{
	DriftLow:      1,
	DriftMedium:   2,
	DriftHigh:     3,
	DriftCritical: 4,
}

// MaxDriftSeverity returns the more severe of a and b
func MaxDriftSeverity(a, b DriftSeverity) DriftSeverity {
	if driftRank[b] > driftRank[a] {
		return b
	}
	return a
}

// DriftItem is one detected mismatch
type DriftItem struct {
	DriftType DriftType     `json:"driftType"`
	Severity  DriftSeverity `json:"severity"`
	Expected  string        `json:"expected,omitempty"`
	Actual    string        `json:"actual,omitempty"`
	Detail    string        `json:"detail,omitempty"`
}

// DriftReportStatus is the workflow state of a report
type DriftReportStatus string

const (
	DriftDetected     DriftReportStatus = "DETECTED"
	DriftAcknowledged DriftReportStatus = "ACKNOWLEDGED"
	DriftRemediating  DriftReportStatus = "REMEDIATING"
	DriftResolved     DriftReportStatus = "RESOLVED"
	DriftSuppressed   DriftReportStatus = "SUPPRESSED"
)

// DriftReport aggregates the drift items found on one instance.
// Severity is the highest item severity.
type DriftReport struct {
	ID         string            `json:"id"`
	InstanceID string            `json:"instanceId"`
	Severity   DriftSeverity     `json:"severity"`
	Status     DriftReportStatus `json:"status"`
	Items      []DriftItem       `json:"items"`
	DetectedAt time.Time         `json:"detectedAt"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// DriftSuppressRule silences matching drift. Empty InstanceID matches the
// whole fleet; empty DriftType matches any type. Expired rules are inert.
type DriftSuppressRule struct {
	ID         string     `json:"id"`
	InstanceID string     `json:"instanceId,omitempty"`
	DriftType  DriftType  `json:"driftType,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	CreatedBy  string     `json:"createdBy"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Matches reports whether the rule suppresses drift of type t on instance id
// at the given instant
func (r *DriftSuppressRule) Matches(instanceID string, t DriftType, now time.Time) bool {
	if r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
		return false
	}
	if r.InstanceID != "" && r.InstanceID != instanceID {
		return false
	}
	if r.DriftType != "" && r.DriftType != t {
		return false
	}
	return true
}

// RemediationMode distinguishes operator-driven from automatic remediation
type RemediationMode string

const (
	RemediationManual    RemediationMode = "MANUAL"
	RemediationAutomatic RemediationMode = "AUTOMATIC"
)

// RemediationStatus is the state of a remediation job
type RemediationStatus string

const (
	RemediationPending   RemediationStatus = "PENDING"
	RemediationRunning   RemediationStatus = "RUNNING"
	RemediationSucceeded RemediationStatus = "SUCCEEDED"
	RemediationFailed    RemediationStatus = "FAILED"
)

// RemediationJob records one attempt to bring an instance back in line with
// its declared configuration
type RemediationJob struct {
	ID          string            `json:"id"`
	ReportID    string            `json:"reportId"`
	InstanceID  string            `json:"instanceId"`
	Mode        RemediationMode   `json:"mode"`
	TriggeredBy string            `json:"triggeredBy"`
	Status      RemediationStatus `json:"status"`
	Log         string            `json:"log,omitempty"`
	StartedAt   time.Time         `json:"startedAt"`
	FinishedAt  *time.Time        `json:"finishedAt,omitempty"`
	DurationMS  int64             `json:"durationMs"`
}
