package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/roosthq/roost/pkg/auth"
	"github.com/roosthq/roost/pkg/protocol"
	"github.com/roosthq/roost/pkg/types"
)

// WebSocket close codes for authentication failures. 1008 is the
// standard policy-violation code; 4001 and 4003 are application codes
// clients can tell apart.
const (
	closeUnauthorized = websocket.ClosePolicyViolation
	closeInvalidKey   = 4001
	closeRoleDenied   = 4003
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Agents and browser viewers connect cross-origin
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsLink adapts a websocket connection to the session manager's Link.
// gorilla allows one concurrent writer, so sends serialize on a mutex.
type wsLink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (l *wsLink) Send(env *protocol.Envelope) error {
	raw, err := env.Encode()
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(websocket.TextMessage, raw)
}

func (l *wsLink) closeWith(code int, reason string) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	l.mu.Lock()
	_ = l.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	l.mu.Unlock()
	_ = l.conn.Close()
}

// handleAgentSocket is the agent side of the frame transport. The agent
// identifies itself with X-API-Key and X-Instance-ID headers; failures
// after the upgrade close the socket with a distinguishing code.
func (s *Server) handleAgentSocket(w http.ResponseWriter, r *http.Request) {
	rawKey := r.Header.Get("X-API-Key")
	instanceID := r.Header.Get("X-Instance-ID")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	link := &wsLink{conn: conn}

	if rawKey == "" || instanceID == "" {
		link.closeWith(closeUnauthorized, "missing credentials")
		return
	}
	_, user, err := s.auth.Authenticate(rawKey)
	if err != nil {
		link.closeWith(closeInvalidKey, "invalid key")
		return
	}
	if !auth.CanPerform(user.Role, auth.PermInstancesConnect) {
		link.closeWith(closeRoleDenied, "role denied")
		return
	}
	if _, err := s.store.GetInstance(instanceID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			link.closeWith(closeUnauthorized, "unknown instance")
			return
		}
		link.closeWith(websocket.CloseInternalServerErr, "store unavailable")
		return
	}

	s.sessions.RegisterAgent(instanceID, user.ID, link)
	defer s.sessions.UnregisterAgent(instanceID, link)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			// Malformed frames are reported back; the link stays open
			errFrame := protocol.NewError("", protocol.CodeMalformed, err.Error(), nil, "")
			if sendErr := link.Send(errFrame); sendErr != nil {
				return
			}
			continue
		}
		s.sessions.HandleAgentFrame(instanceID, env, link)
	}
}

// handleTerminalSocket is the viewer side. The bearer key arrives in the
// usual Authorization header; the instance comes from the path.
func (s *Server) handleTerminalSocket(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceId")
	rawKey := bearerKey(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	link := &wsLink{conn: conn}

	if rawKey == "" {
		link.closeWith(closeUnauthorized, "missing credentials")
		return
	}
	_, user, err := s.auth.Authenticate(rawKey)
	if err != nil {
		link.closeWith(closeInvalidKey, "invalid key")
		return
	}
	if !auth.CanPerform(user.Role, auth.PermInstancesConnect) {
		link.closeWith(closeRoleDenied, "role denied")
		return
	}
	inst, err := s.store.GetInstance(instanceID)
	if err != nil {
		link.closeWith(closeUnauthorized, "unknown instance")
		return
	}
	if ok, err := s.scoper.CanAccessInstance(user, inst); err != nil || !ok {
		link.closeWith(closeRoleDenied, "team scope denied")
		return
	}

	viewer := s.sessions.AttachViewer(user, link, instanceID)
	defer s.sessions.DetachViewer(viewer)
	s.audit.RecordAction(user.ID, types.AuditConnect, "instance", instanceID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			errFrame := protocol.NewError("", protocol.CodeMalformed, err.Error(), nil, "")
			if sendErr := link.Send(errFrame); sendErr != nil {
				return
			}
			continue
		}
		switch env.Channel {
		case protocol.ChannelTerminal:
			s.sessions.HandleViewerTerminalFrame(viewer, env)
		case protocol.ChannelHeartbeat:
			if err := link.Send(protocol.NewPong(env.CorrelationID)); err != nil {
				return
			}
		}
	}
}
