package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/roosthq/roost/pkg/types"
)

// errorBody is the JSON shape of every non-2xx response
type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps an error kind to its HTTP status and body
func writeError(w http.ResponseWriter, err error) {
	if ve, ok := types.IsValidation(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:   "validation",
			Message: "validation failed",
			Details: ve.Details,
		})
		return
	}

	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, types.ErrUnauthorized):
		status, kind = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, types.ErrForbidden):
		status, kind = http.StatusForbidden, "forbidden"
	case errors.Is(err, types.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, types.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	case errors.Is(err, types.ErrInvalidState):
		status, kind = http.StatusConflict, "invalid_state"
	case errors.Is(err, types.ErrRateLimited):
		status, kind = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, types.ErrTooManyPoints):
		status, kind = http.StatusUnprocessableEntity, "too_many_points"
	case errors.Is(err, types.ErrMalformedFrame):
		status, kind = http.StatusBadRequest, "malformed"
	}
	writeJSON(w, status, errorBody{Error: kind, Message: err.Error()})
}

// decodeBody parses a JSON request body; failures are 400, not 422
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "malformed",
			Message: "request body is not valid JSON",
		})
		return false
	}
	return true
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

type pagedResponse struct {
	Items      any        `json:"items"`
	Pagination pagination `json:"pagination"`
}

// pageParams reads page and pageSize query parameters with defaults
func pageParams(r *http.Request) (page, pageSize int) {
	page, pageSize = 1, defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && v > 0 {
		pageSize = v
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
	}
	return page, pageSize
}

// writePage slices items for the requested page and wraps them in the
// pagination envelope
func writePage[T any](w http.ResponseWriter, r *http.Request, items []T) {
	page, pageSize := pageParams(r)
	total := len(items)

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	paged := items[start:end]
	if paged == nil {
		paged = []T{}
	}
	writeJSON(w, http.StatusOK, pagedResponse{
		Items:      paged,
		Pagination: pagination{Page: page, PageSize: pageSize, Total: total},
	})
}
