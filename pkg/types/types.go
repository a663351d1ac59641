package types

import (
	"time"
)

// User represents an operator account on the Console
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Role defines what a user is allowed to do
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleOperator  Role = "OPERATOR"
	RoleDeveloper Role = "DEVELOPER"
	RoleViewer    Role = "VIEWER"
)

// ValidRole reports whether r is one of the defined roles
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleDeveloper, RoleViewer:
		return true
	}
	return false
}

// ApiKey is a bearer credential owned by a user.
// Only the SHA-256 hex of the raw secret is ever stored.
type ApiKey struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	KeyHash   string     `json:"-"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the key is past its expiry at the given instant
func (k *ApiKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// Team is a logical workspace grouping
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TeamMember links a user to a team with a per-team role
type TeamMember struct {
	TeamID   string    `json:"teamId"`
	UserID   string    `json:"userId"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Provider identifies the platform an instance is provisioned on
type Provider string

const (
	ProviderFly        Provider = "fly"
	ProviderDocker     Provider = "docker"
	ProviderDevpod     Provider = "devpod"
	ProviderE2B        Provider = "e2b"
	ProviderKubernetes Provider = "kubernetes"
)

// ValidProvider reports whether p is a supported provider
func ValidProvider(p Provider) bool {
	switch p {
	case ProviderFly, ProviderDocker, ProviderDevpod, ProviderE2B, ProviderKubernetes:
		return true
	}
	return false
}

// InstanceStatus represents the lifecycle state of an instance
type InstanceStatus string

const (
	StatusDeploying  InstanceStatus = "DEPLOYING"
	StatusRunning    InstanceStatus = "RUNNING"
	StatusSuspended  InstanceStatus = "SUSPENDED"
	StatusStopped    InstanceStatus = "STOPPED"
	StatusDestroying InstanceStatus = "DESTROYING"
	StatusError      InstanceStatus = "ERROR"
	StatusUnknown    InstanceStatus = "UNKNOWN"
)

// Instance is a managed remote workspace
type Instance struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Provider    Provider       `json:"provider"`
	Region      string         `json:"region,omitempty"`
	TeamID      string         `json:"teamId,omitempty"`
	Extensions  []string       `json:"extensions"`
	ConfigHash  string         `json:"configHash"`
	SSHEndpoint string         `json:"sshEndpoint,omitempty"`
	Status      InstanceStatus `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// MaxInstanceExtensions caps the extension list on a single instance
const MaxInstanceExtensions = 200

// Heartbeat is the periodic liveness and resource report from an agent.
// The latest sample per instance is cached for dashboards; history rolls
// into the time series.
type Heartbeat struct {
	InstanceID    string    `json:"instanceId"`
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryUsed    Bytes64   `json:"memoryUsed"`
	MemoryTotal   Bytes64   `json:"memoryTotal"`
	DiskUsed      Bytes64   `json:"diskUsed"`
	DiskTotal     Bytes64   `json:"diskTotal"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
	LoadAvg1      float64   `json:"loadAvg1"`
	LoadAvg5      float64   `json:"loadAvg5"`
	LoadAvg15     float64   `json:"loadAvg15"`
	NetBytesSent  Bytes64   `json:"netBytesSent"`
	NetBytesRecv  Bytes64   `json:"netBytesRecv"`
	ProcessCount  int       `json:"processCount"`
}

// MetricSample is one point of instance telemetry
type MetricSample struct {
	InstanceID    string    `json:"instanceId"`
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryUsed    Bytes64   `json:"memoryUsed"`
	MemoryTotal   Bytes64   `json:"memoryTotal"`
	DiskUsed      Bytes64   `json:"diskUsed"`
	DiskTotal     Bytes64   `json:"diskTotal"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
	LoadAvg1      float64   `json:"loadAvg1"`
	LoadAvg5      float64   `json:"loadAvg5"`
	LoadAvg15     float64   `json:"loadAvg15"`
	NetBytesSent  Bytes64   `json:"netBytesSent"`
	NetBytesRecv  Bytes64   `json:"netBytesRecv"`
}

// Granularity is a supported time-series bucket width
type Granularity string

const (
	GranularityRaw Granularity = "raw"
	Granularity1m  Granularity = "1m"
	Granularity5m  Granularity = "5m"
	Granularity1h  Granularity = "1h"
	Granularity1d  Granularity = "1d"
)

// ValidGranularity reports whether g is one of the defined granularities
func ValidGranularity(g Granularity) bool {
	switch g {
	case GranularityRaw, Granularity1m, Granularity5m, Granularity1h, Granularity1d:
		return true
	}
	return false
}

// LogLevel classifies a log line
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// ValidLogLevel reports whether l is a defined log level
func ValidLogLevel(l LogLevel) bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// LogSource identifies which part of an instance emitted a line
type LogSource string

const (
	LogSourceAgent     LogSource = "AGENT"
	LogSourceExtension LogSource = "EXTENSION"
	LogSourceBuild     LogSource = "BUILD"
	LogSourceApp       LogSource = "APP"
	LogSourceSystem    LogSource = "SYSTEM"
)

// ValidLogSource reports whether s is a defined log source
func ValidLogSource(s LogSource) bool {
	switch s {
	case LogSourceAgent, LogSourceExtension, LogSourceBuild, LogSourceApp, LogSourceSystem:
		return true
	}
	return false
}

// LogEntry is one persisted log line from an instance
type LogEntry struct {
	ID         string         `json:"id"`
	InstanceID string         `json:"instanceId"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      LogLevel       `json:"level"`
	Source     LogSource      `json:"source"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// EventType classifies an instance event
type EventType string

const (
	EventDeploy             EventType = "DEPLOY"
	EventRedeploy           EventType = "REDEPLOY"
	EventConnect            EventType = "CONNECT"
	EventDisconnect         EventType = "DISCONNECT"
	EventBackup             EventType = "BACKUP"
	EventSuspend            EventType = "SUSPEND"
	EventResume             EventType = "RESUME"
	EventError              EventType = "ERROR"
	EventHeartbeatRecovered EventType = "HEARTBEAT_RECOVERED"
	EventClone              EventType = "CLONE"
	EventDestroy            EventType = "DESTROY"
)

// Event is a discrete occurrence on an instance
type Event struct {
	ID         string            `json:"id"`
	InstanceID string            `json:"instanceId"`
	EventType  EventType         `json:"eventType"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SessionStatus represents the state of an interactive terminal session
type SessionStatus string

const (
	SessionConnecting   SessionStatus = "connecting"
	SessionConnected    SessionStatus = "connected"
	SessionDisconnected SessionStatus = "disconnected"
	SessionError        SessionStatus = "error"
	SessionClosed       SessionStatus = "closed"
)

// TerminalSession is the persisted record of an interactive tunnel.
// PTY bytes themselves are never stored; only open/close markers.
type TerminalSession struct {
	ID         string        `json:"id"`
	InstanceID string        `json:"instanceId"`
	UserID     string        `json:"userId"`
	Status     SessionStatus `json:"status"`
	Cols       int           `json:"cols"`
	Rows       int           `json:"rows"`
	CreatedAt  time.Time     `json:"createdAt"`
	ClosedAt   *time.Time    `json:"closedAt,omitempty"`
}

// Minimum terminal dimensions accepted on create and resize
const (
	MinTerminalCols = 10
	MinTerminalRows = 1
)
