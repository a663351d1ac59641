package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roosthq/roost/pkg/cost"
	"github.com/roosthq/roost/pkg/types"
)

func (s *Server) handleRecordCost(w http.ResponseWriter, r *http.Request) {
	var entry types.CostEntry
	if !decodeBody(w, r, &entry) {
		return
	}
	if err := s.costs.Record(&entry); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &entry)
}

func (s *Server) handleCostTotals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rollup := cost.Rollup(q.Get("rollup"))
	if rollup == "" {
		rollup = cost.RollupDaily
	}
	from, to := parseWindow(r)
	totals, err := s.costs.Totals(q.Get("instanceId"), rollup, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"totals": totals})
}

func (s *Server) handleListAnomalies(w http.ResponseWriter, r *http.Request) {
	anomalies, err := s.store.ListCostAnomalies()
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, anomalies)
}

func (s *Server) handleListRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.costs.Recommendations()
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, recs)
}

func (s *Server) handleAddRecommendation(w http.ResponseWriter, r *http.Request) {
	var rec types.OptimizationRecommendation
	if !decodeBody(w, r, &rec) {
		return
	}
	if err := s.costs.AddRecommendation(&rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &rec)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.store.ListBudgets()
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, budgets)
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var budget types.Budget
	if !decodeBody(w, r, &budget) {
		return
	}
	if err := s.costs.CreateBudget(&budget); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditCreate, "budget", budget.ID)
	writeJSON(w, http.StatusCreated, &budget)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	budget, err := s.store.GetBudget(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, budget)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteBudget(id); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditDelete, "budget", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListBudgetAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ListBudgetAlerts(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, alerts)
}
