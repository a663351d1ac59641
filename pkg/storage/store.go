package storage

import (
	"time"

	"github.com/roosthq/roost/pkg/types"
)

// FieldAgg is the incremental aggregate for one metric field inside a
// rollup bucket. Averages are computed at read time as Sum/Count.
type FieldAgg struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// RollupBucket aggregates raw samples over one granularity bucket
type RollupBucket struct {
	BucketStart time.Time           `json:"bucketStart"`
	Fields      map[string]FieldAgg `json:"fields"`
}

// SeriesPoint is one resolved time-series point. For rollup granularities
// the field values are bucket averages.
type SeriesPoint struct {
	InstanceID string             `json:"instanceId"`
	Timestamp  time.Time          `json:"timestamp"`
	Fields     map[string]float64 `json:"fields"`
}

// Store defines the persistence interface for the Console. The Console
// process is the sole writer of every entity.
type Store interface {
	// Users
	CreateUser(user *types.User) error
	GetUser(id string) (*types.User, error)
	GetUserByEmail(email string) (*types.User, error)
	ListUsers() ([]*types.User, error)
	UpdateUser(user *types.User) error
	DeleteUser(id string) error

	// API keys
	CreateApiKey(key *types.ApiKey) error
	GetApiKey(id string) (*types.ApiKey, error)
	GetApiKeyByHash(hash string) (*types.ApiKey, error)
	ListApiKeysByUser(userID string) ([]*types.ApiKey, error)
	DeleteApiKey(id string) error

	// Teams
	CreateTeam(team *types.Team) error
	GetTeam(id string) (*types.Team, error)
	GetTeamBySlug(slug string) (*types.Team, error)
	ListTeams() ([]*types.Team, error)
	UpdateTeam(team *types.Team) error
	DeleteTeam(id string) error

	// Team members
	PutTeamMember(member *types.TeamMember) error
	GetTeamMember(teamID, userID string) (*types.TeamMember, error)
	ListTeamMembers(teamID string) ([]*types.TeamMember, error)
	ListTeamsByUser(userID string) ([]*types.TeamMember, error)
	DeleteTeamMember(teamID, userID string) error

	// Instances
	CreateInstance(inst *types.Instance) error
	GetInstance(id string) (*types.Instance, error)
	GetInstanceByName(name string) (*types.Instance, error)
	ListInstances() ([]*types.Instance, error)
	UpdateInstance(inst *types.Instance) error
	DeleteInstance(id string) error

	// Latest heartbeats
	PutLatestHeartbeat(hb *types.Heartbeat) error
	GetLatestHeartbeat(instanceID string) (*types.Heartbeat, error)
	ListLatestHeartbeats() (map[string]*types.Heartbeat, error)

	// Time series
	WriteMetricSample(sample *types.MetricSample) error
	ListSeries(instanceID string, g types.Granularity, from, to time.Time) ([]SeriesPoint, error)
	CountBuckets(instanceID string, g types.Granularity, from, to time.Time) (int, error)

	// Logs and events
	AppendLog(entry *types.LogEntry) error
	ListLogs(instanceID string, from, to time.Time, limit int) ([]*types.LogEntry, error)
	AppendEvent(event *types.Event) error
	ListEvents(instanceID string, limit int) ([]*types.Event, error)

	// Terminal sessions
	PutTerminalSession(sess *types.TerminalSession) error
	GetTerminalSession(id string) (*types.TerminalSession, error)
	ListTerminalSessions(instanceID string) ([]*types.TerminalSession, error)

	// Alerting
	CreateAlertRule(rule *types.AlertRule) error
	GetAlertRule(id string) (*types.AlertRule, error)
	ListAlertRules() ([]*types.AlertRule, error)
	UpdateAlertRule(rule *types.AlertRule) error
	DeleteAlertRule(id string) error
	PutAlertEvent(event *types.AlertEvent) error
	GetAlertEvent(id string) (*types.AlertEvent, error)
	ListAlertEvents(ruleID string) ([]*types.AlertEvent, error)

	// Cost
	CreateCostEntry(entry *types.CostEntry) error
	ListCostEntries(instanceID string, from, to time.Time) ([]*types.CostEntry, error)
	CreateBudget(budget *types.Budget) error
	GetBudget(id string) (*types.Budget, error)
	ListBudgets() ([]*types.Budget, error)
	UpdateBudget(budget *types.Budget) error
	DeleteBudget(id string) error
	CreateBudgetAlert(alert *types.BudgetAlert) (bool, error)
	ListBudgetAlerts(budgetID string) ([]*types.BudgetAlert, error)
	CreateCostAnomaly(anomaly *types.CostAnomaly) error
	ListCostAnomalies() ([]*types.CostAnomaly, error)
	PutRecommendation(rec *types.OptimizationRecommendation) error
	ListRecommendations() ([]*types.OptimizationRecommendation, error)

	// Drift
	CreateDriftReport(report *types.DriftReport) error
	GetDriftReport(id string) (*types.DriftReport, error)
	ListDriftReports(instanceID string) ([]*types.DriftReport, error)
	UpdateDriftReport(report *types.DriftReport) error
	CreateSuppressRule(rule *types.DriftSuppressRule) error
	ListSuppressRules() ([]*types.DriftSuppressRule, error)
	DeleteSuppressRule(id string) error
	PutRemediationJob(job *types.RemediationJob) error
	GetRemediationJob(id string) (*types.RemediationJob, error)
	ListRemediationJobs(reportID string) ([]*types.RemediationJob, error)

	// Security
	PutSbom(sbom *types.Sbom) error
	GetSbomByInstance(instanceID string) (*types.Sbom, error)
	ListSboms() ([]*types.Sbom, error)
	PutCve(cve *types.CveVulnerability) error
	GetCve(id string) (*types.CveVulnerability, error)
	ListCves() ([]*types.CveVulnerability, error)
	PutSecretFinding(finding *types.SecretFinding) error
	ListSecretFindings(instanceID string) ([]*types.SecretFinding, error)
	PutSecurityScore(score *types.SecurityScore) error
	GetSecurityScore(instanceID string) (*types.SecurityScore, error)
	ListSecurityScores() ([]*types.SecurityScore, error)

	// Extensions and templates
	CreateExtension(ext *types.Extension) error
	GetExtensionBySlug(slug string) (*types.Extension, error)
	ListExtensions() ([]*types.Extension, error)
	UpdateExtension(ext *types.Extension) error
	PutExtensionInstallation(install *types.ExtensionInstallation) error
	ListExtensionInstallations(instanceID string) ([]*types.ExtensionInstallation, error)
	DeleteExtensionInstallation(id string) error
	CreateTemplate(tpl *types.DeploymentTemplate) error
	GetTemplate(idOrSlug string) (*types.DeploymentTemplate, error)
	ListTemplates() ([]*types.DeploymentTemplate, error)
	DeleteTemplate(id string) error

	// Scheduled tasks
	CreateScheduledTask(task *types.ScheduledTask) error
	GetScheduledTask(id string) (*types.ScheduledTask, error)
	ListScheduledTasks() ([]*types.ScheduledTask, error)
	UpdateScheduledTask(task *types.ScheduledTask) error
	DeleteScheduledTask(id string) error
	PutTaskExecution(exec *types.TaskExecution) error
	ListTaskExecutions(taskID string, limit int) ([]*types.TaskExecution, error)

	// Audit (append-only)
	AppendAudit(entry *types.AuditEntry) error
	ListAudit(limit int) ([]*types.AuditEntry, error)

	Close() error
}
