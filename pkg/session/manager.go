package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roosthq/roost/pkg/auth"
	"github.com/roosthq/roost/pkg/events"
	"github.com/roosthq/roost/pkg/ingest"
	"github.com/roosthq/roost/pkg/log"
	"github.com/roosthq/roost/pkg/metrics"
	"github.com/roosthq/roost/pkg/protocol"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// DefaultOnlineTTL is how long the online flag survives without a
// heartbeat refreshing it
const DefaultOnlineTTL = 90 * time.Second

// Link is one side of a framed transport. Send must not block
// indefinitely; a failed send affects only that link.
type Link interface {
	Send(env *protocol.Envelope) error
}

// LinkFunc adapts a function to the Link interface
type LinkFunc func(env *protocol.Envelope) error

func (f LinkFunc) Send(env *protocol.Envelope) error { return f(env) }

type agentLink struct {
	instanceID  string
	userID      string
	link        Link
	connectedAt time.Time
}

// Manager owns the long-lived links: agent links, viewer links and the
// interactive terminal sessions tunneled between them.
type Manager struct {
	store    storage.Store
	bus      *events.Bus
	pipeline *ingest.Pipeline
	scoper   *auth.Scoper
	logger   zerolog.Logger

	onlineTTL time.Duration
	nowFunc   func() time.Time

	mu          sync.RWMutex
	agents      map[string]*agentLink
	onlineUntil map[string]time.Time
	sessions    map[string]*terminalSession
	commands    map[string]*pendingCommand
}

// NewManager creates the session manager
func NewManager(store storage.Store, bus *events.Bus, pipeline *ingest.Pipeline, scoper *auth.Scoper) *Manager {
	return &Manager{
		store:       store,
		bus:         bus,
		pipeline:    pipeline,
		scoper:      scoper,
		logger:      log.WithComponent("session"),
		onlineTTL:   DefaultOnlineTTL,
		nowFunc:     time.Now,
		agents:      make(map[string]*agentLink),
		onlineUntil: make(map[string]time.Time),
		sessions:    make(map[string]*terminalSession),
		commands:    make(map[string]*pendingCommand),
	}
}

// RegisterAgent binds an agent link to an instance. A duplicate link for
// the same instance replaces the prior one, newer wins, after a
// DISCONNECT event is written for the displaced link.
func (m *Manager) RegisterAgent(instanceID, userID string, link Link) {
	m.mu.Lock()
	prior := m.agents[instanceID]
	m.agents[instanceID] = &agentLink{
		instanceID:  instanceID,
		userID:      userID,
		link:        link,
		connectedAt: m.nowFunc(),
	}
	m.onlineUntil[instanceID] = m.nowFunc().Add(m.onlineTTL)
	m.mu.Unlock()

	if prior == nil {
		metrics.AgentsConnected.Inc()
	}
	if prior != nil {
		m.appendEvent(instanceID, types.EventDisconnect, map[string]string{"reason": "replaced by newer link"})
	}
	m.appendEvent(instanceID, types.EventConnect, nil)
	m.logger.Info().Str("instance_id", instanceID).Msg("Agent link registered")
}

// UnregisterAgent drops the agent link if it is still the current one
// and closes its terminal sessions with reason "instance offline"
func (m *Manager) UnregisterAgent(instanceID string, link Link) {
	m.mu.Lock()
	current, ok := m.agents[instanceID]
	if !ok || current.link != link {
		m.mu.Unlock()
		return
	}
	delete(m.agents, instanceID)
	delete(m.onlineUntil, instanceID)
	var affected []*terminalSession
	for _, sess := range m.sessions {
		if sess.instanceID == instanceID {
			affected = append(affected, sess)
		}
	}
	m.mu.Unlock()

	metrics.AgentsConnected.Dec()
	for _, sess := range affected {
		m.closeSession(sess, "instance offline", types.SessionDisconnected, sideAgent)
	}
	m.appendEvent(instanceID, types.EventDisconnect, nil)
	m.logger.Info().Str("instance_id", instanceID).Msg("Agent link dropped")
}

// Online reports whether the instance has a live agent link whose TTL
// has not lapsed
func (m *Manager) Online(instanceID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	until, ok := m.onlineUntil[instanceID]
	return ok && m.nowFunc().Before(until)
}

func (m *Manager) agentFor(instanceID string) Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.agents[instanceID]; ok {
		return a.link
	}
	return nil
}

// HandleAgentFrame routes one decoded frame arriving on an agent link.
// Telemetry goes through the ingestion pipeline; terminal and command
// frames are relayed to their viewer peers.
func (m *Manager) HandleAgentFrame(instanceID string, env *protocol.Envelope, agent Link) {
	switch env.Channel {
	case protocol.ChannelTerminal:
		m.handleAgentTerminalFrame(instanceID, env, agent)
	case protocol.ChannelCommands:
		m.handleCommandFrame(instanceID, env)
	default:
		if env.Channel == protocol.ChannelHeartbeat {
			m.mu.Lock()
			m.onlineUntil[instanceID] = m.nowFunc().Add(m.onlineTTL)
			m.mu.Unlock()
		}
		m.pipeline.Submit(instanceID, env, func(reply *protocol.Envelope) {
			if err := agent.Send(reply); err != nil {
				m.logger.Debug().Err(err).Str("instance_id", instanceID).Msg("Reply to agent failed")
			}
		})
	}
}

func (m *Manager) appendEvent(instanceID string, eventType types.EventType, metadata map[string]string) {
	event := &types.Event{
		ID:         uuid.New().String(),
		InstanceID: instanceID,
		EventType:  eventType,
		Timestamp:  m.nowFunc(),
		Metadata:   metadata,
	}
	if err := m.store.AppendEvent(event); err != nil {
		m.logger.Error().Err(err).Str("instance_id", instanceID).Msg("Failed to append event")
	}
	m.bus.Publish(instanceID, protocol.NewFrame(protocol.ChannelEvents, protocol.TypeEventInstance, instanceID, &protocol.EventInstance{
		EventType: eventType,
		Metadata:  metadata,
	}))
}
