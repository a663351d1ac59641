package instance

import (
	"fmt"

	"github.com/roosthq/roost/pkg/types"
)

// allowedTransitions is the instance status machine. UNKNOWN is terminal
// and reachable only from DESTROYING.
var allowedTransitions = map[types.InstanceStatus][]types.InstanceStatus{
	types.StatusDeploying:  {types.StatusRunning, types.StatusError},
	types.StatusRunning:    {types.StatusSuspended, types.StatusStopped, types.StatusDestroying, types.StatusError},
	types.StatusSuspended:  {types.StatusRunning, types.StatusDestroying},
	types.StatusStopped:    {types.StatusRunning, types.StatusDestroying},
	types.StatusError:      {types.StatusRunning, types.StatusStopped, types.StatusDestroying},
	types.StatusDestroying: {types.StatusUnknown},
	types.StatusUnknown:    nil,
}

// CanTransition reports whether the status machine permits from -> to
func CanTransition(from, to types.InstanceStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition returns ErrInvalidState when from -> to is not permitted
func checkTransition(from, to types.InstanceStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", types.ErrInvalidState, from, to)
	}
	return nil
}
