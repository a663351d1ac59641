package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roosthq/roost/pkg/types"
)

func (s *Server) handlePutSbom(w http.ResponseWriter, r *http.Request) {
	var sbom types.Sbom
	if !decodeBody(w, r, &sbom) {
		return
	}
	if err := s.security.PutSbom(&sbom); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &sbom)
}

func (s *Server) handleAddCve(w http.ResponseWriter, r *http.Request) {
	var cve types.CveVulnerability
	if !decodeBody(w, r, &cve) {
		return
	}
	if err := s.security.AddCve(&cve); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &cve)
}

func (s *Server) handleListCves(w http.ResponseWriter, r *http.Request) {
	cves, err := s.store.ListCves()
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, cves)
}

func (s *Server) handleSetVulnStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status types.VulnStatus `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	cve, err := s.security.SetVulnStatus(chi.URLParam(r, "id"), body.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cve)
}

func (s *Server) handleAffectedInstances(w http.ResponseWriter, r *http.Request) {
	ids, err := s.security.AffectedInstances(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instanceIds": ids})
}

func (s *Server) handleRecordSecret(w http.ResponseWriter, r *http.Request) {
	var finding types.SecretFinding
	if !decodeBody(w, r, &finding) {
		return
	}
	if err := s.security.RecordSecretFinding(&finding); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &finding)
}

func (s *Server) handleListScores(w http.ResponseWriter, r *http.Request) {
	scores, err := s.store.ListSecurityScores()
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, scores)
}

func (s *Server) handleFleetScore(w http.ResponseWriter, r *http.Request) {
	mean, err := s.security.ScoreFleet()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"score": mean,
		"grade": types.GradeForScore(mean),
	})
}

// handleComputeScore recomputes and persists one instance's score
func (s *Server) handleComputeScore(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.scopedInstance(w, r, chi.URLParam(r, "instanceId"))
	if !ok {
		return
	}
	score, err := s.security.Score(inst.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}
