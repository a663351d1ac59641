package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/roosthq/roost/pkg/protocol"
	"github.com/roosthq/roost/pkg/types"
)

// PreCreateBufferBytes caps how much viewer input may queue before the
// agent confirms terminal:created
const PreCreateBufferBytes = 64 << 10

type peerSide int

const (
	sideViewer peerSide = iota
	sideAgent
)

type terminalSession struct {
	id         string
	instanceID string
	viewer     *Viewer
	status     types.SessionStatus
	cols       int
	rows       int
	createdAt  time.Time

	// Frames buffered before terminal:created
	buf      []*protocol.Envelope
	bufBytes int
}

// OpenTerminal starts an interactive session from a viewer toward an
// instance. The session stays in connecting until the agent confirms.
func (m *Manager) OpenTerminal(v *Viewer, instanceID, sessionID string, cols, rows int) error {
	create := &protocol.TerminalCreate{SessionID: sessionID, Cols: cols, Rows: rows}
	if err := create.Validate(); err != nil {
		return err
	}

	agent := m.agentFor(instanceID)
	if agent == nil {
		return fmt.Errorf("%w: instance offline", types.ErrInvalidState)
	}

	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: session %q already open", types.ErrConflict, sessionID)
	}
	sess := &terminalSession{
		id:         sessionID,
		instanceID: instanceID,
		viewer:     v,
		status:     types.SessionConnecting,
		cols:       cols,
		rows:       rows,
		createdAt:  m.nowFunc(),
	}
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	m.persistSession(sess, nil)
	if err := agent.Send(protocol.NewFrame(protocol.ChannelTerminal, protocol.TypeTerminalCreate, instanceID, create)); err != nil {
		m.closeSession(sess, "agent unreachable", types.SessionError, sideAgent)
		return fmt.Errorf("failed to reach agent: %w", err)
	}
	return nil
}

// HandleViewerTerminalFrame routes terminal data, resize and close
// frames coming from a viewer. Frames ahead of terminal:created are
// buffered up to PreCreateBufferBytes, then dropped with an ERROR frame.
func (m *Manager) HandleViewerTerminalFrame(v *Viewer, env *protocol.Envelope) {
	payload, err := protocol.ParsePayload(env)
	if err != nil {
		m.sendError(v.link, env, err)
		return
	}

	var sessionID string
	switch typed := payload.(type) {
	case *protocol.TerminalCreate:
		if err := m.OpenTerminal(v, env.InstanceID, typed.SessionID, typed.Cols, typed.Rows); err != nil {
			m.sendError(v.link, env, err)
		}
		return
	case *protocol.TerminalData:
		sessionID = typed.SessionID
	case *protocol.TerminalResize:
		sessionID = typed.SessionID
	case *protocol.TerminalClose:
		m.mu.Lock()
		sess := m.sessions[typed.SessionID]
		m.mu.Unlock()
		if sess != nil {
			m.closeSession(sess, typed.Reason, types.SessionClosed, sideViewer)
		}
		return
	default:
		m.sendError(v.link, env, types.Validationf("unexpected terminal frame %q", env.Type))
		return
	}

	m.mu.Lock()
	sess := m.sessions[sessionID]
	if sess == nil || sess.viewer != v {
		m.mu.Unlock()
		m.sendError(v.link, env, fmt.Errorf("%w: session %q", types.ErrNotFound, sessionID))
		return
	}
	if resize, ok := payload.(*protocol.TerminalResize); ok {
		sess.cols, sess.rows = resize.Cols, resize.Rows
	}
	if sess.status == types.SessionConnecting {
		if sess.bufBytes+len(env.Data) > PreCreateBufferBytes {
			m.mu.Unlock()
			m.sendError(v.link, env, types.Validationf("session %q buffer exceeded before create", sessionID))
			return
		}
		sess.buf = append(sess.buf, env)
		sess.bufBytes += len(env.Data)
		m.mu.Unlock()
		return
	}
	instanceID := sess.instanceID
	m.mu.Unlock()

	if agent := m.agentFor(instanceID); agent != nil {
		if err := agent.Send(env); err != nil {
			m.logger.Debug().Err(err).Str("session_id", sessionID).Msg("Terminal frame to agent failed")
		}
	}
}

func (m *Manager) handleAgentTerminalFrame(instanceID string, env *protocol.Envelope, agent Link) {
	payload, err := protocol.ParsePayload(env)
	if err != nil {
		m.sendError(agent, env, err)
		return
	}

	switch typed := payload.(type) {
	case *protocol.TerminalCreated:
		m.mu.Lock()
		sess := m.sessions[typed.SessionID]
		var flush []*protocol.Envelope
		if sess != nil && sess.status == types.SessionConnecting {
			sess.status = types.SessionConnected
			flush = sess.buf
			sess.buf = nil
			sess.bufBytes = 0
		}
		m.mu.Unlock()
		if sess == nil {
			return
		}
		m.persistSession(sess, nil)
		for _, buffered := range flush {
			if err := agent.Send(buffered); err != nil {
				m.logger.Debug().Err(err).Str("session_id", sess.id).Msg("Buffered frame to agent failed")
			}
		}
		m.sendToViewer(sess, env)

	case *protocol.TerminalData:
		m.mu.Lock()
		sess := m.sessions[typed.SessionID]
		m.mu.Unlock()
		if sess != nil {
			m.sendToViewer(sess, env)
		}

	case *protocol.TerminalClose:
		m.mu.Lock()
		sess := m.sessions[typed.SessionID]
		m.mu.Unlock()
		if sess != nil {
			m.closeSession(sess, typed.Reason, types.SessionClosed, sideAgent)
		}
	}
}

// closeSession moves a session to its end state, persists it and sends
// the final terminal:close to the peer of the side that initiated
func (m *Manager) closeSession(sess *terminalSession, reason string, status types.SessionStatus, initiator peerSide) {
	m.mu.Lock()
	if _, open := m.sessions[sess.id]; !open {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, sess.id)
	sess.status = status
	m.mu.Unlock()

	now := m.nowFunc()
	m.persistSession(sess, &now)

	closeFrame := protocol.NewFrame(protocol.ChannelTerminal, protocol.TypeTerminalClose, sess.instanceID, &protocol.TerminalClose{
		SessionID: sess.id,
		Reason:    reason,
	})
	if initiator != sideAgent {
		if agent := m.agentFor(sess.instanceID); agent != nil {
			if err := agent.Send(closeFrame); err != nil {
				m.logger.Debug().Err(err).Str("session_id", sess.id).Msg("Close frame to agent failed")
			}
		}
	}
	if initiator != sideViewer {
		m.sendToViewer(sess, closeFrame)
	}
	m.logger.Info().Str("session_id", sess.id).Str("reason", reason).Msg("Terminal session closed")
}

func (m *Manager) persistSession(sess *terminalSession, closedAt *time.Time) {
	record := &types.TerminalSession{
		ID:         sess.id,
		InstanceID: sess.instanceID,
		UserID:     sess.viewer.user.ID,
		Status:     sess.status,
		Cols:       sess.cols,
		Rows:       sess.rows,
		CreatedAt:  sess.createdAt,
		ClosedAt:   closedAt,
	}
	if err := m.store.PutTerminalSession(record); err != nil {
		m.logger.Error().Err(err).Str("session_id", sess.id).Msg("Failed to persist session")
	}
}

func (m *Manager) sendToViewer(sess *terminalSession, env *protocol.Envelope) {
	if err := sess.viewer.link.Send(env); err != nil {
		m.logger.Debug().Err(err).Str("session_id", sess.id).Msg("Terminal frame to viewer failed")
	}
}

func (m *Manager) sendError(link Link, cause *protocol.Envelope, err error) {
	code := protocol.CodeInternal
	var details []string
	if ve, ok := types.IsValidation(err); ok {
		code = protocol.CodeValidation
		details = ve.Details
	} else {
		switch {
		case errors.Is(err, types.ErrMalformedFrame):
			code = protocol.CodeMalformed
		case errors.Is(err, types.ErrNotFound):
			code = protocol.CodeNotFound
		case errors.Is(err, types.ErrInvalidState), errors.Is(err, types.ErrConflict):
			code = protocol.CodeValidation
		}
	}
	if sendErr := link.Send(protocol.NewError(cause.Channel, code, err.Error(), details, cause.CorrelationID)); sendErr != nil {
		m.logger.Debug().Err(sendErr).Msg("Error frame delivery failed")
	}
}
