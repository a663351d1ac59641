package instance

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roosthq/roost/pkg/auth"
	"github.com/roosthq/roost/pkg/events"
	"github.com/roosthq/roost/pkg/log"
	"github.com/roosthq/roost/pkg/protocol"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

var (
	nameRegexp       = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	configHashRegexp = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// ValidName reports whether name is a legal instance name
func ValidName(name string) bool {
	return nameRegexp.MatchString(name)
}

// RegisterRequest is the payload an agent posts to register or refresh
// an instance
type RegisterRequest struct {
	Name        string         `json:"name"`
	Provider    types.Provider `json:"provider"`
	Region      string         `json:"region,omitempty"`
	TeamID      string         `json:"teamId,omitempty"`
	Extensions  []string       `json:"extensions"`
	ConfigHash  string         `json:"configHash"`
	SSHEndpoint string         `json:"sshEndpoint,omitempty"`
}

// Service owns instance registration, the status machine and lifecycle
// operations. Every lifecycle operation writes an audit entry and
// publishes an event:instance frame.
type Service struct {
	store  storage.Store
	bus    *events.Bus
	audit  *auth.Recorder
	logger zerolog.Logger
}

// NewService creates the instance service
func NewService(store storage.Store, bus *events.Bus, audit *auth.Recorder) *Service {
	return &Service{
		store:  store,
		bus:    bus,
		audit:  audit,
		logger: log.WithComponent("instance"),
	}
}

func (s *Service) validateRegister(req *RegisterRequest) error {
	var details []string
	if !ValidName(req.Name) {
		details = append(details, "name must match ^[a-z0-9][a-z0-9-]*$")
	}
	if !types.ValidProvider(req.Provider) {
		details = append(details, fmt.Sprintf("unsupported provider %q", req.Provider))
	}
	if len(req.Extensions) > types.MaxInstanceExtensions {
		details = append(details, fmt.Sprintf("extension list exceeds %d entries", types.MaxInstanceExtensions))
	}
	if req.ConfigHash != "" && !configHashRegexp.MatchString(req.ConfigHash) {
		details = append(details, "configHash must match ^[0-9a-f]{64}$")
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	return nil
}

// Register upserts an instance keyed by name. A new name creates the
// instance in DEPLOYING; a known name refreshes extensions, config hash
// and ssh endpoint in place. A known name with a different provider or
// region is a conflict.
func (s *Service) Register(actorUserID string, req *RegisterRequest) (*types.Instance, error) {
	if err := s.validateRegister(req); err != nil {
		return nil, err
	}

	existing, err := s.store.GetInstanceByName(req.Name)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	if existing != nil {
		if existing.Provider != req.Provider || existing.Region != req.Region {
			return nil, fmt.Errorf("%w: instance %q is registered on %s/%s", types.ErrConflict, req.Name, existing.Provider, existing.Region)
		}
		existing.Extensions = req.Extensions
		existing.ConfigHash = req.ConfigHash
		existing.SSHEndpoint = req.SSHEndpoint
		if req.TeamID != "" {
			existing.TeamID = req.TeamID
		}
		existing.UpdatedAt = now
		if err := s.store.UpdateInstance(existing); err != nil {
			return nil, err
		}
		s.audit.RecordAction(actorUserID, types.AuditUpdate, "instance", existing.ID)
		return existing, nil
	}

	inst := &types.Instance{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Provider:    req.Provider,
		Region:      req.Region,
		TeamID:      req.TeamID,
		Extensions:  req.Extensions,
		ConfigHash:  req.ConfigHash,
		SSHEndpoint: req.SSHEndpoint,
		Status:      types.StatusDeploying,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if inst.Extensions == nil {
		inst.Extensions = []string{}
	}
	if err := s.store.CreateInstance(inst); err != nil {
		return nil, err
	}

	s.logger.Info().Str("instance_id", inst.ID).Str("name", inst.Name).Msg("Instance registered")
	s.audit.RecordAction(actorUserID, types.AuditCreate, "instance", inst.ID)
	s.emitEvent(inst.ID, types.EventDeploy, map[string]string{"name": inst.Name})
	return inst, nil
}

// SetStatus applies a status transition, enforcing the transition table
func (s *Service) SetStatus(id string, to types.InstanceStatus) (*types.Instance, error) {
	inst, err := s.store.GetInstance(id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(inst.Status, to); err != nil {
		return nil, err
	}
	inst.Status = to
	inst.UpdatedAt = time.Now()
	if err := s.store.UpdateInstance(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Clone creates a copy of an instance with the source's extensions and
// config hash, a -clone name suffix, status DEPLOYING and no ssh endpoint
func (s *Service) Clone(actorUserID, id string) (*types.Instance, error) {
	src, err := s.store.GetInstance(id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	clone := &types.Instance{
		ID:         uuid.New().String(),
		Name:       src.Name + "-clone",
		Provider:   src.Provider,
		Region:     src.Region,
		TeamID:     src.TeamID,
		Extensions: append([]string(nil), src.Extensions...),
		ConfigHash: src.ConfigHash,
		Status:     types.StatusDeploying,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateInstance(clone); err != nil {
		return nil, err
	}

	s.logger.Info().Str("instance_id", clone.ID).Str("source_id", src.ID).Msg("Instance cloned")
	s.audit.RecordAction(actorUserID, types.AuditCreate, "instance", clone.ID)
	s.emitEvent(clone.ID, types.EventClone, map[string]string{"sourceInstanceId": src.ID})
	return clone, nil
}

// Suspend moves a running instance to SUSPENDED
func (s *Service) Suspend(actorUserID, id string) (*types.Instance, error) {
	inst, err := s.SetStatus(id, types.StatusSuspended)
	if err != nil {
		return nil, err
	}
	s.audit.RecordAction(actorUserID, types.AuditSuspend, "instance", id)
	s.emitEvent(id, types.EventSuspend, nil)
	return inst, nil
}

// Resume returns a suspended instance to RUNNING. Extensions and config
// hash are untouched.
func (s *Service) Resume(actorUserID, id string) (*types.Instance, error) {
	inst, err := s.store.GetInstance(id)
	if err != nil {
		return nil, err
	}
	if inst.Status != types.StatusSuspended {
		return nil, fmt.Errorf("%w: cannot resume from %s", types.ErrInvalidState, inst.Status)
	}
	inst.Status = types.StatusRunning
	inst.UpdatedAt = time.Now()
	if err := s.store.UpdateInstance(inst); err != nil {
		return nil, err
	}
	s.audit.RecordAction(actorUserID, types.AuditResume, "instance", id)
	s.emitEvent(id, types.EventResume, nil)
	return inst, nil
}

// Redeploy moves an instance through DEPLOYING. The agent reports the
// outcome; a failed redeploy ends in ERROR via SetStatus. Redeploy is a
// lifecycle operation, not a table transition, and is permitted from
// every non-terminal state except DESTROYING.
func (s *Service) Redeploy(actorUserID, id string) (*types.Instance, error) {
	inst, err := s.store.GetInstance(id)
	if err != nil {
		return nil, err
	}
	switch inst.Status {
	case types.StatusDestroying, types.StatusUnknown:
		return nil, fmt.Errorf("%w: cannot redeploy from %s", types.ErrInvalidState, inst.Status)
	}
	inst.Status = types.StatusDeploying
	inst.UpdatedAt = time.Now()
	if err := s.store.UpdateInstance(inst); err != nil {
		return nil, err
	}
	s.audit.RecordAction(actorUserID, types.AuditDeploy, "instance", id)
	s.emitEvent(id, types.EventRedeploy, nil)
	return inst, nil
}

// Destroy moves an instance to DESTROYING. The terminal UNKNOWN state is
// reached through MarkDestroyed once teardown is reported complete.
func (s *Service) Destroy(actorUserID, id string) (*types.Instance, error) {
	inst, err := s.SetStatus(id, types.StatusDestroying)
	if err != nil {
		return nil, err
	}
	s.audit.RecordAction(actorUserID, types.AuditDestroy, "instance", id)
	s.emitEvent(id, types.EventDestroy, nil)
	return inst, nil
}

// MarkDestroyed finalizes teardown, DESTROYING -> UNKNOWN
func (s *Service) MarkDestroyed(id string) (*types.Instance, error) {
	return s.SetStatus(id, types.StatusUnknown)
}

// Deregister removes the instance record entirely
func (s *Service) Deregister(actorUserID, id string) error {
	if _, err := s.store.GetInstance(id); err != nil {
		return err
	}
	if err := s.store.DeleteInstance(id); err != nil {
		return err
	}
	s.audit.RecordAction(actorUserID, types.AuditDelete, "instance", id)
	return nil
}

// InstallExtension adds a catalog extension to an instance. Only
// APPROVED extensions may be newly installed; DEPRECATED ones that were
// installed before deprecation remain but cannot be added again.
func (s *Service) InstallExtension(actorUserID, instanceID, slug string) (*types.Instance, error) {
	inst, err := s.store.GetInstance(instanceID)
	if err != nil {
		return nil, err
	}
	ext, err := s.store.GetExtensionBySlug(slug)
	if err != nil {
		return nil, err
	}
	if ext.Status != types.ExtensionApproved {
		return nil, types.Validationf("extension %q is %s and cannot be installed", slug, ext.Status)
	}
	for _, installed := range inst.Extensions {
		if installed == slug {
			return nil, fmt.Errorf("%w: extension %q already installed", types.ErrConflict, slug)
		}
	}
	if len(inst.Extensions) >= types.MaxInstanceExtensions {
		return nil, types.Validationf("extension list exceeds %d entries", types.MaxInstanceExtensions)
	}

	inst.Extensions = append(inst.Extensions, slug)
	inst.UpdatedAt = time.Now()
	if err := s.store.UpdateInstance(inst); err != nil {
		return nil, err
	}
	if err := s.store.PutExtensionInstallation(&types.ExtensionInstallation{
		ID:          uuid.New().String(),
		InstanceID:  instanceID,
		Slug:        slug,
		InstalledBy: actorUserID,
		InstalledAt: time.Now(),
	}); err != nil {
		return nil, err
	}
	s.audit.RecordAction(actorUserID, types.AuditUpdate, "instance", instanceID)
	return inst, nil
}

// RemoveExtension removes an installed extension from an instance
func (s *Service) RemoveExtension(actorUserID, instanceID, slug string) (*types.Instance, error) {
	inst, err := s.store.GetInstance(instanceID)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, installed := range inst.Extensions {
		if installed == slug {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: extension %q is not installed", types.ErrNotFound, slug)
	}

	inst.Extensions = append(inst.Extensions[:idx], inst.Extensions[idx+1:]...)
	inst.UpdatedAt = time.Now()
	if err := s.store.UpdateInstance(inst); err != nil {
		return nil, err
	}

	installs, err := s.store.ListExtensionInstallations(instanceID)
	if err == nil {
		for _, rec := range installs {
			if rec.Slug == slug {
				if err := s.store.DeleteExtensionInstallation(rec.ID); err != nil {
					s.logger.Warn().Err(err).Str("slug", slug).Msg("Failed to remove installation record")
				}
			}
		}
	}
	s.audit.RecordAction(actorUserID, types.AuditUpdate, "instance", instanceID)
	return inst, nil
}

func (s *Service) emitEvent(instanceID string, eventType types.EventType, metadata map[string]string) {
	event := &types.Event{
		ID:         uuid.New().String(),
		InstanceID: instanceID,
		EventType:  eventType,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
	if err := s.store.AppendEvent(event); err != nil {
		s.logger.Error().Err(err).Str("instance_id", instanceID).Msg("Failed to append event")
	}
	s.bus.Publish(instanceID, protocol.NewFrame(protocol.ChannelEvents, protocol.TypeEventInstance, instanceID, &protocol.EventInstance{
		EventType: eventType,
		Metadata:  metadata,
	}))
}
