package api

import (
	"net/http"
)

// handleTimeseries serves fleet-wide or single-instance series. An
// instanceId query narrows to one instance; fleet queries return points
// tagged per instance.
func (s *Server) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	params := parseSeriesParams(r)
	params.InstanceID = r.URL.Query().Get("instanceId")

	if params.InstanceID != "" {
		if _, ok := s.scopedInstance(w, r, params.InstanceID); !ok {
			return
		}
	}

	points, err := s.queries.Query(params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}
