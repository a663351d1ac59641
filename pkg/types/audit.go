package types

import "time"

// AuditAction enumerates the audited operations
type AuditAction string

const (
	AuditCreate           AuditAction = "CREATE"
	AuditUpdate           AuditAction = "UPDATE"
	AuditDelete           AuditAction = "DELETE"
	AuditLogin            AuditAction = "LOGIN"
	AuditLogout           AuditAction = "LOGOUT"
	AuditDeploy           AuditAction = "DEPLOY"
	AuditDestroy          AuditAction = "DESTROY"
	AuditSuspend          AuditAction = "SUSPEND"
	AuditResume           AuditAction = "RESUME"
	AuditExecute          AuditAction = "EXECUTE"
	AuditConnect          AuditAction = "CONNECT"
	AuditDisconnect       AuditAction = "DISCONNECT"
	AuditPermissionChange AuditAction = "PERMISSION_CHANGE"
	AuditTeamAdd          AuditAction = "TEAM_ADD"
	AuditTeamRemove       AuditAction = "TEAM_REMOVE"
)

// AuditOutcome records whether the action was permitted
type AuditOutcome string

const (
	OutcomeAllowed AuditOutcome = "allowed"
	OutcomeDenied  AuditOutcome = "denied"
)

// AuditEntry is an immutable record of one audited action
type AuditEntry struct {
	ID           string         `json:"id"`
	ActorUserID  string         `json:"actorUserId"`
	Action       AuditAction    `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId,omitempty"`
	Outcome      AuditOutcome   `json:"outcome"`
	Before       map[string]any `json:"before,omitempty"`
	After        map[string]any `json:"after,omitempty"`
	IP           string         `json:"ip,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
