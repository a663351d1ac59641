package session

import (
	"encoding/base64"

	"github.com/roosthq/roost/pkg/protocol"
	"github.com/roosthq/roost/pkg/types"
)

// SetBroadcastGroup marks a set of the viewer's sessions as a broadcast
// group. Input then replicates to every connected member.
func (v *Viewer) SetBroadcastGroup(sessionIDs ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.broadcast = make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		v.broadcast[id] = true
	}
}

// BroadcastInput replicates raw input bytes to every broadcast group
// member whose session is connected. Non-connected members are skipped
// silently. It returns the session ids that received the input.
func (m *Manager) BroadcastInput(v *Viewer, input []byte) []string {
	v.mu.Lock()
	group := make([]string, 0, len(v.broadcast))
	for id := range v.broadcast {
		group = append(group, id)
	}
	v.mu.Unlock()

	encoded := base64.StdEncoding.EncodeToString(input)
	var delivered []string
	for _, sessionID := range group {
		m.mu.Lock()
		sess := m.sessions[sessionID]
		connected := sess != nil && sess.viewer == v && sess.status == types.SessionConnected
		var instanceID string
		if connected {
			instanceID = sess.instanceID
		}
		m.mu.Unlock()
		if !connected {
			continue
		}

		agent := m.agentFor(instanceID)
		if agent == nil {
			continue
		}
		frame := protocol.NewFrame(protocol.ChannelTerminal, protocol.TypeTerminalData, instanceID, &protocol.TerminalData{
			SessionID: sessionID,
			Data:      encoded,
		})
		if err := agent.Send(frame); err != nil {
			m.logger.Debug().Err(err).Str("session_id", sessionID).Msg("Broadcast frame failed")
			continue
		}
		delivered = append(delivered, sessionID)
	}
	return delivered
}
