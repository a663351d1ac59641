package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roosthq/roost/pkg/types"
	"github.com/roosthq/roost/pkg/wizard"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.ListTemplates()
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, templates)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl types.DeploymentTemplate
	if !decodeBody(w, r, &tpl) {
		return
	}
	tpl.CreatedBy = userFrom(r).ID
	if err := s.wizard.CreateTemplate(&tpl); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(tpl.CreatedBy, types.AuditCreate, "template", tpl.ID)
	writeJSON(w, http.StatusCreated, &tpl)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.store.GetTemplate(chi.URLParam(r, "idOrSlug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.store.GetTemplate(chi.URLParam(r, "idOrSlug"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteTemplate(tpl.ID); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditDelete, "template", tpl.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleWizardDeploy validates a wizard submission against its template
// and registers the resulting instance
func (s *Server) handleWizardDeploy(w http.ResponseWriter, r *http.Request) {
	var sub wizard.Submission
	if !decodeBody(w, r, &sub) {
		return
	}
	inst, err := s.wizard.Deploy(userFrom(r).ID, &sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}
