package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/roosthq/roost/pkg/auth"
	"github.com/roosthq/roost/pkg/cost"
	"github.com/roosthq/roost/pkg/drift"
	"github.com/roosthq/roost/pkg/fleet"
	"github.com/roosthq/roost/pkg/instance"
	"github.com/roosthq/roost/pkg/log"
	"github.com/roosthq/roost/pkg/metrics"
	"github.com/roosthq/roost/pkg/query"
	"github.com/roosthq/roost/pkg/sched"
	"github.com/roosthq/roost/pkg/secscore"
	"github.com/roosthq/roost/pkg/session"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/wizard"
)

// Services bundles the domain services the handlers dispatch to
type Services struct {
	Auth    *auth.Authenticator
	Limiter *auth.RateLimiter
	Scoper  *auth.Scoper
	Audit   *auth.Recorder

	Instances *instance.Service
	Queries   *query.Service
	Fleet     *fleet.Service
	Sessions  *session.Manager
	Tasks     *sched.Service
	Scheduler *sched.Scheduler
	Drift     *drift.Service
	Costs     *cost.Service
	Security  *secscore.Service
	Wizard    *wizard.Service
}

// Server is the Console's HTTP front end
type Server struct {
	store  storage.Store
	logger zerolog.Logger

	auth    *auth.Authenticator
	limiter *auth.RateLimiter
	scoper  *auth.Scoper
	audit   *auth.Recorder

	instances *instance.Service
	queries   *query.Service
	fleet     *fleet.Service
	sessions  *session.Manager
	tasks     *sched.Service
	scheduler *sched.Scheduler
	drift     *drift.Service
	costs     *cost.Service
	security  *secscore.Service
	wizard    *wizard.Service

	httpServer *http.Server
}

// NewServer wires the HTTP surface over the domain services
func NewServer(addr string, store storage.Store, svc Services) *Server {
	s := &Server{
		store:     store,
		logger:    log.WithComponent("api"),
		auth:      svc.Auth,
		limiter:   svc.Limiter,
		scoper:    svc.Scoper,
		audit:     svc.Audit,
		instances: svc.Instances,
		queries:   svc.Queries,
		fleet:     svc.Fleet,
		sessions:  svc.Sessions,
		tasks:     svc.Tasks,
		scheduler: svc.Scheduler,
		drift:     svc.Drift,
		costs:     svc.Costs,
		security:  svc.Security,
		wizard:    svc.Wizard,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the full route table
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(instrument)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// WebSocket endpoints authenticate inside the handler so failures
	// can use the protocol close codes instead of HTTP statuses.
	r.Get("/ws/agent", s.handleAgentSocket)
	r.Get("/ws/terminal/{instanceId}", s.handleTerminalSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate, s.rateLimit)

		r.Get("/fleet/summary", s.requirePerm(auth.PermInstancesRead, s.handleFleetSummary))
		r.Get("/metrics/timeseries", s.requirePerm(auth.PermMetricsRead, s.handleTimeseries))

		r.Route("/instances", func(r chi.Router) {
			r.Post("/", s.requirePerm(auth.PermInstancesDeploy, s.handleRegisterInstance))
			r.Get("/", s.requirePerm(auth.PermInstancesRead, s.handleListInstances))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.requirePerm(auth.PermInstancesRead, s.handleGetInstance))
				r.Delete("/", s.requirePerm(auth.PermInstancesDelete, s.handleDeregisterInstance))

				r.Post("/clone", s.requirePerm(auth.PermInstancesLifecycle, s.handleCloneInstance))
				r.Post("/suspend", s.requirePerm(auth.PermInstancesLifecycle, s.handleSuspendInstance))
				r.Post("/resume", s.requirePerm(auth.PermInstancesLifecycle, s.handleResumeInstance))
				r.Post("/redeploy", s.requirePerm(auth.PermInstancesLifecycle, s.handleRedeployInstance))
				r.Post("/destroy", s.requirePerm(auth.PermInstancesDestroy, s.handleDestroyInstance))

				r.Get("/metrics", s.requirePerm(auth.PermMetricsRead, s.handleInstanceMetrics))
				r.Get("/processes", s.requirePerm(auth.PermInstancesRead, s.handleInstanceProcesses))
				r.Get("/heartbeats", s.requirePerm(auth.PermInstancesRead, s.handleInstanceHeartbeat))
				r.Get("/logs", s.requirePerm(auth.PermInstancesRead, s.handleInstanceLogs))
				r.Get("/events", s.requirePerm(auth.PermInstancesRead, s.handleInstanceEvents))

				r.Get("/extensions", s.requirePerm(auth.PermExtensionsRead, s.handleListInstalledExtensions))
				r.Post("/extensions", s.requirePerm(auth.PermExtensionsInstall, s.handleInstallExtension))
				r.Delete("/extensions/{slug}", s.requirePerm(auth.PermExtensionsRemove, s.handleRemoveExtension))

				r.Post("/commands", s.requirePerm(auth.PermInstancesExecute, s.handleExecuteCommand))
				r.Get("/sessions", s.requirePerm(auth.PermInstancesRead, s.handleListTerminalSessions))

				r.Post("/drift/state", s.requirePerm(auth.PermDriftWrite, s.handleReportDriftState))
				r.Get("/drift", s.requirePerm(auth.PermDriftRead, s.handleInstanceDriftReports))
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.requirePerm(auth.PermUsersRead, s.handleListUsers))
			r.Post("/", s.requirePerm(auth.PermUsersWrite, s.handleCreateUser))
			r.Get("/{id}", s.requirePerm(auth.PermUsersRead, s.handleGetUser))
			r.Patch("/{id}", s.requirePerm(auth.PermUsersWrite, s.handleUpdateUser))
			r.Delete("/{id}", s.requirePerm(auth.PermUsersDelete, s.handleDeleteUser))
		})

		r.Route("/teams", func(r chi.Router) {
			r.Get("/", s.requirePerm(auth.PermTeamsRead, s.handleListTeams))
			r.Post("/", s.requirePerm(auth.PermTeamsWrite, s.handleCreateTeam))
			r.Get("/{id}", s.requirePerm(auth.PermTeamsRead, s.handleGetTeam))
			r.Delete("/{id}", s.requirePerm(auth.PermTeamsWrite, s.handleDeleteTeam))
			r.Get("/{id}/members", s.requirePerm(auth.PermTeamsRead, s.handleListTeamMembers))
			r.Put("/{id}/members/{userId}", s.requirePerm(auth.PermTeamsWrite, s.handlePutTeamMember))
			r.Delete("/{id}/members/{userId}", s.requirePerm(auth.PermTeamsWrite, s.handleDeleteTeamMember))
		})

		r.Route("/api-keys", func(r chi.Router) {
			r.Get("/", s.requirePerm(auth.PermApiKeysManage, s.handleListApiKeys))
			r.Post("/", s.requirePerm(auth.PermApiKeysManage, s.handleCreateApiKey))
			r.Delete("/{id}", s.requirePerm(auth.PermApiKeysManage, s.handleDeleteApiKey))
		})

		r.Route("/extensions", func(r chi.Router) {
			r.Get("/", s.requirePerm(auth.PermExtensionsRead, s.handleListExtensions))
			r.Post("/", s.requirePerm(auth.PermUsersWrite, s.handleCreateExtension))
			r.Patch("/{slug}", s.requirePerm(auth.PermUsersWrite, s.handleUpdateExtension))
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.requirePerm(auth.PermTemplatesRead, s.handleListTemplates))
			r.Post("/", s.requirePerm(auth.PermTemplatesWrite, s.handleCreateTemplate))
			r.Get("/{idOrSlug}", s.requirePerm(auth.PermTemplatesRead, s.handleGetTemplate))
			r.Delete("/{idOrSlug}", s.requirePerm(auth.PermTemplatesWrite, s.handleDeleteTemplate))
		})
		r.Post("/wizard/deploy", s.requirePerm(auth.PermInstancesDeploy, s.handleWizardDeploy))

		r.Route("/alert-rules", func(r chi.Router) {
			r.Get("/", s.requirePerm(auth.PermAlertsRead, s.handleListAlertRules))
			r.Post("/", s.requirePerm(auth.PermAlertsWrite, s.handleCreateAlertRule))
			r.Get("/{id}", s.requirePerm(auth.PermAlertsRead, s.handleGetAlertRule))
			r.Patch("/{id}", s.requirePerm(auth.PermAlertsWrite, s.handleUpdateAlertRule))
			r.Delete("/{id}", s.requirePerm(auth.PermAlertsWrite, s.handleDeleteAlertRule))
			r.Get("/{id}/events", s.requirePerm(auth.PermAlertsRead, s.handleListAlertEvents))
		})

		r.Route("/costs", func(r chi.Router) {
			r.Post("/entries", s.requirePerm(auth.PermBudgetsWrite, s.handleRecordCost))
			r.Get("/totals", s.requirePerm(auth.PermBudgetsRead, s.handleCostTotals))
			r.Get("/anomalies", s.requirePerm(auth.PermBudgetsRead, s.handleListAnomalies))
			r.Get("/recommendations", s.requirePerm(auth.PermBudgetsRead, s.handleListRecommendations))
			r.Post("/recommendations", s.requirePerm(auth.PermBudgetsWrite, s.handleAddRecommendation))
		})

		r.Route("/budgets", func(r chi.Router) {
			r.Get("/", s.requirePerm(auth.PermBudgetsRead, s.handleListBudgets))
			r.Post("/", s.requirePerm(auth.PermBudgetsWrite, s.handleCreateBudget))
			r.Get("/{id}", s.requirePerm(auth.PermBudgetsRead, s.handleGetBudget))
			r.Delete("/{id}", s.requirePerm(auth.PermBudgetsWrite, s.handleDeleteBudget))
			r.Get("/{id}/alerts", s.requirePerm(auth.PermBudgetsRead, s.handleListBudgetAlerts))
		})

		r.Route("/scheduled-tasks", func(r chi.Router) {
			r.Get("/", s.requirePerm(auth.PermTasksRead, s.handleListTasks))
			r.Post("/", s.requirePerm(auth.PermTasksWrite, s.handleCreateTask))
			r.Get("/{id}", s.requirePerm(auth.PermTasksRead, s.handleGetTask))
			r.Delete("/{id}", s.requirePerm(auth.PermTasksWrite, s.handleDeleteTask))
			r.Post("/{id}/pause", s.requirePerm(auth.PermTasksWrite, s.handlePauseTask))
			r.Post("/{id}/activate", s.requirePerm(auth.PermTasksWrite, s.handleActivateTask))
			r.Post("/{id}/disable", s.requirePerm(auth.PermTasksWrite, s.handleDisableTask))
			r.Post("/{id}/run", s.requirePerm(auth.PermTasksWrite, s.handleRunTask))
			r.Get("/{id}/executions", s.requirePerm(auth.PermTasksRead, s.handleListExecutions))
		})

		r.Route("/drift-reports", func(r chi.Router) {
			r.Get("/", s.requirePerm(auth.PermDriftRead, s.handleListDriftReports))
			r.Get("/{id}", s.requirePerm(auth.PermDriftRead, s.handleGetDriftReport))
			r.Post("/{id}/acknowledge", s.requirePerm(auth.PermDriftWrite, s.handleAcknowledgeDrift))
			r.Post("/{id}/resolve", s.requirePerm(auth.PermDriftWrite, s.handleResolveDrift))
			r.Post("/{id}/suppress", s.requirePerm(auth.PermDriftWrite, s.handleSuppressDrift))
			r.Post("/{id}/remediate", s.requirePerm(auth.PermDriftWrite, s.handleRemediateDrift))
			r.Get("/{id}/jobs", s.requirePerm(auth.PermDriftRead, s.handleListRemediationJobs))
		})
		r.Route("/drift-suppressions", func(r chi.Router) {
			r.Get("/", s.requirePerm(auth.PermDriftRead, s.handleListSuppressRules))
			r.Post("/", s.requirePerm(auth.PermDriftWrite, s.handleCreateSuppressRule))
			r.Delete("/{id}", s.requirePerm(auth.PermDriftWrite, s.handleDeleteSuppressRule))
		})

		r.Route("/security", func(r chi.Router) {
			r.Put("/sbom", s.requirePerm(auth.PermSecurityWrite, s.handlePutSbom))
			r.Post("/cves", s.requirePerm(auth.PermSecurityWrite, s.handleAddCve))
			r.Patch("/cves/{id}/status", s.requirePerm(auth.PermSecurityWrite, s.handleSetVulnStatus))
			r.Get("/cves", s.requirePerm(auth.PermSecurityRead, s.handleListCves))
			r.Get("/cves/{id}/affected", s.requirePerm(auth.PermSecurityRead, s.handleAffectedInstances))
			r.Post("/secrets", s.requirePerm(auth.PermSecurityWrite, s.handleRecordSecret))
			r.Get("/scores", s.requirePerm(auth.PermSecurityRead, s.handleListScores))
			r.Get("/scores/fleet", s.requirePerm(auth.PermSecurityRead, s.handleFleetScore))
			r.Post("/scores/{instanceId}", s.requirePerm(auth.PermSecurityWrite, s.handleComputeScore))
		})

		r.Get("/audit", s.requirePerm(auth.PermAuditRead, s.handleListAudit))
	})

	return r
}

// Start begins serving and blocks until the listener fails or Shutdown
// is called
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
