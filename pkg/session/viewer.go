package session

import (
	"errors"
	"sync"

	"github.com/roosthq/roost/pkg/events"
	"github.com/roosthq/roost/pkg/metrics"
	"github.com/roosthq/roost/pkg/types"
)

// Viewer is a browser client attached to the fan-out bus. Every frame is
// re-authorized at delivery time, so revoking access takes effect within
// one frame.
type Viewer struct {
	manager *Manager
	user    *types.User
	link    Link
	sub     *events.Subscription

	mu        sync.Mutex
	broadcast map[string]bool
	closed    bool
}

// AttachViewer subscribes a viewer to a set of instance ids (none means
// all) and starts delivering matching frames
func (m *Manager) AttachViewer(user *types.User, link Link, instanceIDs ...string) *Viewer {
	v := &Viewer{
		manager:   m,
		user:      user,
		link:      link,
		sub:       m.bus.Subscribe(0, instanceIDs...),
		broadcast: make(map[string]bool),
	}
	metrics.ViewersConnected.Inc()
	go v.deliver()
	return v
}

// DetachViewer tears the viewer down and closes its terminal sessions
// with reason "client gone"
func (m *Manager) DetachViewer(v *Viewer) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	m.bus.Unsubscribe(v.sub)
	metrics.ViewersConnected.Dec()

	m.mu.Lock()
	var affected []*terminalSession
	for _, sess := range m.sessions {
		if sess.viewer == v {
			affected = append(affected, sess)
		}
	}
	m.mu.Unlock()
	for _, sess := range affected {
		m.closeSession(sess, "client gone", types.SessionDisconnected, sideViewer)
	}
}

// SetInstances replaces the viewer's subscription set
func (v *Viewer) SetInstances(instanceIDs ...string) {
	v.sub.SetInstances(instanceIDs...)
}

func (v *Viewer) deliver() {
	for env := range v.sub.C() {
		if env.InstanceID != "" && !v.authorized(env.InstanceID) {
			continue
		}
		if err := v.link.Send(env); err != nil {
			// Delivery failures drop the frame for this viewer only
			v.manager.logger.Debug().Err(err).Str("user_id", v.user.ID).Msg("Viewer delivery failed")
		}
	}
}

// authorized checks the user's effective access at delivery time
func (v *Viewer) authorized(instanceID string) bool {
	inst, err := v.manager.store.GetInstance(instanceID)
	if err != nil {
		return errors.Is(err, types.ErrNotFound) && v.user.Role == types.RoleAdmin
	}
	ok, err := v.manager.scoper.CanAccessInstance(v.user, inst)
	return err == nil && ok
}
