package api

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/roosthq/roost/pkg/auth"
	"github.com/roosthq/roost/pkg/metrics"
	"github.com/roosthq/roost/pkg/types"
)

type contextKey string

const (
	ctxUser   contextKey = "user"
	ctxAPIKey contextKey = "apiKey"
)

// userFrom returns the authenticated user stored on the request context
func userFrom(r *http.Request) *types.User {
	user, _ := r.Context().Value(ctxUser).(*types.User)
	return user
}

func apiKeyFrom(r *http.Request) *types.ApiKey {
	key, _ := r.Context().Value(ctxAPIKey).(*types.ApiKey)
	return key
}

// bearerKey extracts the raw API key from Authorization or X-Api-Key
func bearerKey(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if raw, ok := strings.CutPrefix(header, "Bearer "); ok {
			return raw
		}
	}
	return r.Header.Get("X-Api-Key")
}

// authenticate resolves the API key to its owning user and stores both
// on the context. Missing, invalid and expired keys are 401.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerKey(r)
		if raw == "" {
			writeError(w, types.ErrUnauthorized)
			return
		}
		key, user, err := s.auth.Authenticate(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxUser, user)
		ctx = context.WithValue(ctx, ctxAPIKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit enforces the per-key token buckets and advertises the
// remaining budget. Reads and writes draw from separate buckets.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := apiKeyFrom(r)
		if key == nil {
			next.ServeHTTP(w, r)
			return
		}
		kind := auth.BucketRead
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			kind = auth.BucketWrite
		}
		allowed, remaining, limit := s.limiter.Allow(key.ID, kind)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			writeError(w, types.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// deniedAction maps the verb of a rejected request to its audit action
func deniedAction(method string) types.AuditAction {
	switch method {
	case http.MethodPost:
		return types.AuditCreate
	case http.MethodPut, http.MethodPatch:
		return types.AuditUpdate
	case http.MethodDelete:
		return types.AuditDelete
	default:
		return types.AuditExecute
	}
}

// requirePerm gates a handler on the role matrix. A rejected check leaves
// an audit entry with outcome denied before the 403 goes out.
func (s *Server) requirePerm(perm auth.Permission, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		if user == nil {
			writeError(w, types.ErrUnauthorized)
			return
		}
		if !auth.CanPerform(user.Role, perm) {
			resource, _, _ := strings.Cut(string(perm), ":")
			s.audit.RecordDenied(user.ID, deniedAction(r.Method), resource, r.URL.Path)
			writeError(w, types.ErrForbidden)
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// Hijack forwards to the wrapped writer so WebSocket upgrades work
// through the instrumentation wrapper.
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// instrument records request counts and latency
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
