package auth

import (
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// Scoper answers team-scoping questions. Non-ADMIN users see and act only
// on instances linked to their teams; ADMIN bypasses scoping entirely.
type Scoper struct {
	store storage.Store
}

// NewScoper creates a scoper over the store
func NewScoper(store storage.Store) *Scoper {
	return &Scoper{store: store}
}

// TeamIDs returns the ids of the teams the user belongs to
func (s *Scoper) TeamIDs(userID string) (map[string]bool, error) {
	members, err := s.store.ListTeamsByUser(userID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(members))
	for _, m := range members {
		ids[m.TeamID] = true
	}
	return ids, nil
}

// CanAccessInstance reports whether the user may see or act on the
// instance. Instances without a team are visible to ADMIN only.
func (s *Scoper) CanAccessInstance(user *types.User, inst *types.Instance) (bool, error) {
	if user.Role == types.RoleAdmin {
		return true, nil
	}
	if inst.TeamID == "" {
		return false, nil
	}
	teams, err := s.TeamIDs(user.ID)
	if err != nil {
		return false, err
	}
	return teams[inst.TeamID], nil
}

// FilterInstances returns the subset of instances the user may see,
// preserving order
func (s *Scoper) FilterInstances(user *types.User, instances []*types.Instance) ([]*types.Instance, error) {
	if user.Role == types.RoleAdmin {
		return instances, nil
	}
	teams, err := s.TeamIDs(user.ID)
	if err != nil {
		return nil, err
	}
	var visible []*types.Instance
	for _, inst := range instances {
		if inst.TeamID != "" && teams[inst.TeamID] {
			visible = append(visible, inst)
		}
	}
	return visible, nil
}
