package api

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/roosthq/roost/pkg/auth"
	"github.com/roosthq/roost/pkg/types"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// validEmail accepts addr@domain with a dot in the domain. Deliverability
// is the mail system's problem.
func validEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers()
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string     `json:"email"`
		Role  types.Role `json:"role"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	var details []string
	if !validEmail(body.Email) {
		details = append(details, "email must be a valid address")
	}
	if !types.ValidRole(body.Role) {
		details = append(details, "role must be one of ADMIN, OPERATOR, DEVELOPER, VIEWER")
	}
	if len(details) > 0 {
		writeError(w, types.NewValidationError(details...))
		return
	}

	now := time.Now()
	user := &types.User{
		ID:        uuid.New().String(),
		Email:     strings.ToLower(body.Email),
		Role:      body.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateUser(user); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditCreate, "user", user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser changes a user's role. Role changes are audited as
// permission changes.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Role types.Role `json:"role"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if !types.ValidRole(body.Role) {
		writeError(w, types.Validationf("role %q is not valid", body.Role))
		return
	}

	before := user.Role
	user.Role = body.Role
	user.UpdatedAt = time.Now()
	if err := s.store.UpdateUser(user); err != nil {
		writeError(w, err)
		return
	}
	s.audit.Record(&types.AuditEntry{
		ActorUserID:  userFrom(r).ID,
		Action:       types.AuditPermissionChange,
		ResourceType: "user",
		ResourceID:   user.ID,
		Before:       map[string]any{"role": before},
		After:        map[string]any{"role": user.Role},
	})
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteUser(id); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditDelete, "user", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.store.ListTeams()
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, teams)
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Slug        string `json:"slug"`
		Description string `json:"description"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	var details []string
	if body.Name == "" {
		details = append(details, "name must not be empty")
	}
	if !slugPattern.MatchString(body.Slug) {
		details = append(details, "slug must match ^[a-z0-9][a-z0-9-]*$")
	}
	if len(details) > 0 {
		writeError(w, types.NewValidationError(details...))
		return
	}

	now := time.Now()
	team := &types.Team{
		ID:          uuid.New().String(),
		Name:        body.Name,
		Slug:        body.Slug,
		Description: body.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTeam(team); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditCreate, "team", team.ID)
	writeJSON(w, http.StatusCreated, team)
}

func (s *Server) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	team, err := s.store.GetTeam(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (s *Server) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteTeam(id); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditDelete, "team", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListTeamMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.store.ListTeamMembers(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, members)
}

func (s *Server) handlePutTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userId")

	// Both referents must exist before the membership does
	if _, err := s.store.GetTeam(teamID); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.GetUser(userID); err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		Role types.Role `json:"role"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if !types.ValidRole(body.Role) {
		writeError(w, types.Validationf("role %q is not valid", body.Role))
		return
	}

	member := &types.TeamMember{
		TeamID:   teamID,
		UserID:   userID,
		Role:     body.Role,
		JoinedAt: time.Now(),
	}
	if err := s.store.PutTeamMember(member); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditTeamAdd, "team", teamID)
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) handleDeleteTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "id")
	if err := s.store.DeleteTeamMember(teamID, chi.URLParam(r, "userId")); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditTeamRemove, "team", teamID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// handleListApiKeys returns the caller's keys; ADMIN may list another
// user's with ?userId=
func (s *Server) handleListApiKeys(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	userID := user.ID
	if v := r.URL.Query().Get("userId"); v != "" && user.Role == types.RoleAdmin {
		userID = v
	}
	keys, err := s.store.ListApiKeysByUser(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, keys)
}

// handleCreateApiKey mints a key for the caller. The raw secret appears
// in this response and nowhere else.
func (s *Server) handleCreateApiKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name      string     `json:"name"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Name == "" {
		writeError(w, types.Validationf("name must not be empty"))
		return
	}

	raw, err := auth.GenerateKey()
	if err != nil {
		writeError(w, err)
		return
	}
	key := &types.ApiKey{
		ID:        uuid.New().String(),
		UserID:    userFrom(r).ID,
		KeyHash:   auth.HashKey(raw),
		Name:      body.Name,
		CreatedAt: time.Now(),
		ExpiresAt: body.ExpiresAt,
	}
	if err := s.store.CreateApiKey(key); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(key.UserID, types.AuditCreate, "api-key", key.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"apiKey": key, "key": raw})
}

// handleDeleteApiKey revokes a key. Non-admins may only revoke their own.
func (s *Server) handleDeleteApiKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key, err := s.store.GetApiKey(id)
	if err != nil {
		writeError(w, err)
		return
	}
	user := userFrom(r)
	if key.UserID != user.ID && user.Role != types.RoleAdmin {
		writeError(w, types.ErrForbidden)
		return
	}
	if err := s.store.DeleteApiKey(id); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(user.ID, types.AuditDelete, "api-key", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func validExtensionStatus(status types.ExtensionStatus) bool {
	switch status {
	case types.ExtensionApproved, types.ExtensionPending, types.ExtensionRejected, types.ExtensionDeprecated:
		return true
	}
	return false
}

func (s *Server) handleListExtensions(w http.ResponseWriter, r *http.Request) {
	exts, err := s.store.ListExtensions()
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, exts)
}

func (s *Server) handleCreateExtension(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Slug        string                `json:"slug"`
		Name        string                `json:"name"`
		Status      types.ExtensionStatus `json:"status"`
		Description string                `json:"description"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	var details []string
	if !slugPattern.MatchString(body.Slug) {
		details = append(details, "slug must match ^[a-z0-9][a-z0-9-]*$")
	}
	if body.Name == "" {
		details = append(details, "name must not be empty")
	}
	if body.Status == "" {
		body.Status = types.ExtensionPending
	} else if !validExtensionStatus(body.Status) {
		details = append(details, "status must be one of APPROVED, PENDING, REJECTED, DEPRECATED")
	}
	if len(details) > 0 {
		writeError(w, types.NewValidationError(details...))
		return
	}

	now := time.Now()
	ext := &types.Extension{
		ID:          uuid.New().String(),
		Slug:        body.Slug,
		Name:        body.Name,
		Status:      body.Status,
		Description: body.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateExtension(ext); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditCreate, "extension", ext.ID)
	writeJSON(w, http.StatusCreated, ext)
}

func (s *Server) handleUpdateExtension(w http.ResponseWriter, r *http.Request) {
	ext, err := s.store.GetExtensionBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Status      types.ExtensionStatus `json:"status"`
		Description *string               `json:"description"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Status != "" {
		if !validExtensionStatus(body.Status) {
			writeError(w, types.Validationf("status %q is not valid", body.Status))
			return
		}
		ext.Status = body.Status
	}
	if body.Description != nil {
		ext.Description = *body.Description
	}
	ext.UpdatedAt = time.Now()
	if err := s.store.UpdateExtension(ext); err != nil {
		writeError(w, err)
		return
	}
	s.audit.RecordAction(userFrom(r).ID, types.AuditUpdate, "extension", ext.ID)
	writeJSON(w, http.StatusOK, ext)
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListAudit(intQuery(r, "limit", 200))
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, entries)
}
