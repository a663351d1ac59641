package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roosthq/roost/pkg/drift"
	"github.com/roosthq/roost/pkg/fleet"
	"github.com/roosthq/roost/pkg/instance"
	"github.com/roosthq/roost/pkg/query"
	"github.com/roosthq/roost/pkg/sched"
	"github.com/roosthq/roost/pkg/types"
)

// scopedInstance loads an instance and enforces the caller's team scope.
// A scope miss is 403, not 404, so admins and members see the same ids.
func (s *Server) scopedInstance(w http.ResponseWriter, r *http.Request, id string) (*types.Instance, bool) {
	inst, err := s.store.GetInstance(id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	ok, err := s.scoper.CanAccessInstance(userFrom(r), inst)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if !ok {
		writeError(w, types.ErrForbidden)
		return nil, false
	}
	return inst, true
}

func (s *Server) handleRegisterInstance(w http.ResponseWriter, r *http.Request) {
	var req instance.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	inst, err := s.instances.Register(userFrom(r).ID, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := s.fleet.List(parseListOptions(r))
	if err != nil {
		writeError(w, err)
		return
	}

	region := q.Get("region")
	user := userFrom(r)
	visible := rows[:0]
	for _, row := range rows {
		if region != "" && row.Instance.Region != region {
			continue
		}
		ok, err := s.scoper.CanAccessInstance(user, row.Instance)
		if err != nil {
			writeError(w, err)
			return
		}
		if ok {
			visible = append(visible, row)
		}
	}
	writePage(w, r, visible)
}

func (s *Server) handleFleetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.fleet.Summarize()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// instanceDetail joins the latest heartbeat into the detail response
type instanceDetail struct {
	Instance  *types.Instance  `json:"instance"`
	Heartbeat *types.Heartbeat `json:"heartbeat,omitempty"`
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.scopedInstance(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	hb, _ := s.store.GetLatestHeartbeat(inst.ID)
	writeJSON(w, http.StatusOK, instanceDetail{Instance: inst, Heartbeat: hb})
}

func (s *Server) handleDeregisterInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.scopedInstance(w, r, id); !ok {
		return
	}
	if err := s.instances.Deregister(userFrom(r).ID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type lifecycleOp func(actorUserID, id string) (*types.Instance, error)

func (s *Server) lifecycle(op lifecycleOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, ok := s.scopedInstance(w, r, id); !ok {
			return
		}
		inst, err := op(userFrom(r).ID, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inst)
	}
}

func (s *Server) handleCloneInstance(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(s.instances.Clone)(w, r)
}

func (s *Server) handleSuspendInstance(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(s.instances.Suspend)(w, r)
}

func (s *Server) handleResumeInstance(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(s.instances.Resume)(w, r)
}

func (s *Server) handleRedeployInstance(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(s.instances.Redeploy)(w, r)
}

func (s *Server) handleDestroyInstance(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(s.instances.Destroy)(w, r)
}

func (s *Server) handleInstanceMetrics(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.scopedInstance(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	params := parseSeriesParams(r)
	params.InstanceID = inst.ID
	points, err := s.queries.Query(params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

func (s *Server) handleInstanceHeartbeat(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.scopedInstance(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	hb, err := s.store.GetLatestHeartbeat(inst.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hb)
}

// Only the process count survives ingestion; the full process table
// lives on the agent side.
func (s *Server) handleInstanceProcesses(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.scopedInstance(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	hb, err := s.store.GetLatestHeartbeat(inst.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instanceId":   inst.ID,
		"processCount": hb.ProcessCount,
		"timestamp":    hb.Timestamp,
	})
}

func (s *Server) handleInstanceLogs(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.scopedInstance(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	from, to := parseWindow(r)
	limit := intQuery(r, "limit", 100)
	entries, err := s.store.ListLogs(inst.ID, from, to, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, entries)
}

func (s *Server) handleInstanceEvents(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.scopedInstance(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	events, err := s.store.ListEvents(inst.ID, intQuery(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, events)
}

func (s *Server) handleListInstalledExtensions(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.scopedInstance(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	installs, err := s.store.ListExtensionInstallations(inst.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, installs)
}

func (s *Server) handleInstallExtension(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.scopedInstance(w, r, id); !ok {
		return
	}
	var body struct {
		Slug string `json:"slug"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	inst, err := s.instances.InstallExtension(userFrom(r).ID, id, body.Slug)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleRemoveExtension(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.scopedInstance(w, r, id); !ok {
		return
	}
	inst, err := s.instances.RemoveExtension(userFrom(r).ID, id, chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.scopedInstance(w, r, id); !ok {
		return
	}
	var body struct {
		Command    string `json:"command"`
		TimeoutSec int    `json:"timeoutSec"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	user := userFrom(r)
	runner := &sched.ManagerRunner{Manager: s.sessions}
	exitCode, stdout, stderr, err := runner.Run(id, body.Command, body.TimeoutSec)
	if err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(user.ID, types.AuditExecute, "instance", id)
	writeJSON(w, http.StatusOK, map[string]any{
		"exitCode": exitCode,
		"stdout":   stdout,
		"stderr":   stderr,
	})
}

func (s *Server) handleListTerminalSessions(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.scopedInstance(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	sessions, err := s.store.ListTerminalSessions(inst.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, sessions)
}

func (s *Server) handleReportDriftState(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.scopedInstance(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var state drift.DeployedState
	if !decodeBody(w, r, &state) {
		return
	}
	report, err := s.drift.Detect(inst.ID, state)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (s *Server) handleInstanceDriftReports(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.scopedInstance(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	reports, err := s.store.ListDriftReports(inst.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, reports)
}

// parseListOptions maps list query parameters onto the fleet view filter
func parseListOptions(r *http.Request) fleet.ListOptions {
	q := r.URL.Query()
	return fleet.ListOptions{
		Search:   q.Get("search"),
		Status:   types.InstanceStatus(q.Get("status")),
		Provider: types.Provider(q.Get("provider")),
		SortBy:   q.Get("sortBy"),
		Desc:     q.Get("order") == "desc",
	}
}

// parseSeriesParams reads either a named range or the explicit window
func parseSeriesParams(r *http.Request) *query.Params {
	q := r.URL.Query()
	params := &query.Params{
		Range:       query.Range(q.Get("range")),
		Granularity: types.Granularity(q.Get("granularity")),
		Fields:      q["field"],
	}
	if params.Range == "" && params.Granularity == "" {
		params.Range = query.Range24h
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.To = t
		}
	}
	return params
}

// parseWindow reads an optional from/to pair, defaulting to all history
// up to now
func parseWindow(r *http.Request) (from, to time.Time) {
	q := r.URL.Query()
	to = time.Now()
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = t
		}
	}
	return from, to
}

func intQuery(r *http.Request, name string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil && v > 0 {
		return v
	}
	return fallback
}
