package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roosthq/roost/pkg/types"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListScheduledTasks()
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var task types.ScheduledTask
	if !decodeBody(w, r, &task) {
		return
	}
	task.CreatedBy = userFrom(r).ID
	if err := s.tasks.Create(&task); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(task.CreatedBy, types.AuditCreate, "scheduled-task", task.ID)
	writeJSON(w, http.StatusCreated, &task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetScheduledTask(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteScheduledTask(id); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditDelete, "scheduled-task", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handlePauseTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Pause(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleActivateTask re-activates a task. Reviving a DISABLED task is
// checked against the caller's role inside the service.
func (s *Server) handleActivateTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Activate(userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDisableTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Disable(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.scheduler.RunNow(id, types.TriggerManual); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditExecute, "scheduled-task", id)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := s.store.ListTaskExecutions(chi.URLParam(r, "id"), intQuery(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, execs)
}
