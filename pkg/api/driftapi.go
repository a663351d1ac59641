package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roosthq/roost/pkg/types"
)

func (s *Server) handleListDriftReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListDriftReports(r.URL.Query().Get("instanceId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, reports)
}

func (s *Server) handleGetDriftReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.GetDriftReport(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAcknowledgeDrift(w http.ResponseWriter, r *http.Request) {
	report, err := s.drift.Acknowledge(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleResolveDrift(w http.ResponseWriter, r *http.Request) {
	report, err := s.drift.Resolve(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSuppressDrift(w http.ResponseWriter, r *http.Request) {
	report, err := s.drift.Suppress(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRemediateDrift(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode types.RemediationMode `json:"mode"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Mode == "" {
		body.Mode = types.RemediationManual
	}
	job, err := s.drift.Remediate(chi.URLParam(r, "id"), body.Mode, userFrom(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListRemediationJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListRemediationJobs(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, jobs)
}

func (s *Server) handleListSuppressRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.ListSuppressRules()
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, rules)
}

func (s *Server) handleCreateSuppressRule(w http.ResponseWriter, r *http.Request) {
	var rule types.DriftSuppressRule
	if !decodeBody(w, r, &rule) {
		return
	}
	rule.CreatedBy = userFrom(r).ID
	if err := s.drift.AddSuppressRule(&rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &rule)
}

func (s *Server) handleDeleteSuppressRule(w http.ResponseWriter, r *http.Request) {
	if err := s.drift.RemoveSuppressRule(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
