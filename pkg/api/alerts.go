package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/roosthq/roost/pkg/alerting"
	"github.com/roosthq/roost/pkg/types"
)

func (s *Server) handleListAlertRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.ListAlertRules()
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, rules)
}

func (s *Server) handleCreateAlertRule(w http.ResponseWriter, r *http.Request) {
	var rule types.AlertRule
	if !decodeBody(w, r, &rule) {
		return
	}
	if err := alerting.ValidateRule(&rule); err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	rule.ID = uuid.New().String()
	rule.Enabled = true
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := s.store.CreateAlertRule(&rule); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditCreate, "alert-rule", rule.ID)
	writeJSON(w, http.StatusCreated, &rule)
}

func (s *Server) handleGetAlertRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.store.GetAlertRule(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleUpdateAlertRule replaces the rule definition; id and creation
// time are preserved
func (s *Server) handleUpdateAlertRule(w http.ResponseWriter, r *http.Request) {
	existing, err := s.store.GetAlertRule(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var rule types.AlertRule
	if !decodeBody(w, r, &rule) {
		return
	}
	if err := alerting.ValidateRule(&rule); err != nil {
		writeError(w, err)
		return
	}

	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	if err := s.store.UpdateAlertRule(&rule); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditUpdate, "alert-rule", rule.ID)
	writeJSON(w, http.StatusOK, &rule)
}

func (s *Server) handleDeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteAlertRule(id); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditDelete, "alert-rule", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListAlertEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListAlertEvents(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, events)
}
