package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roosthq/roost/pkg/auth"
	"github.com/roosthq/roost/pkg/events"
	"github.com/roosthq/roost/pkg/ingest"
	"github.com/roosthq/roost/pkg/protocol"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

type fakeLink struct {
	mu     sync.Mutex
	frames []*protocol.Envelope
	fail   bool
}

func (l *fakeLink) Send(env *protocol.Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return errors.New("link down")
	}
	l.frames = append(l.frames, env)
	return nil
}

func (l *fakeLink) all() []*protocol.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*protocol.Envelope(nil), l.frames...)
}

func (l *fakeLink) lastType() string {
	frames := l.all()
	if len(frames) == 0 {
		return ""
	}
	return frames[len(frames)-1].Type
}

func newTestManager(t *testing.T) (*Manager, storage.Store, *ingest.Pipeline) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	bus := events.NewBus()
	pipeline := ingest.New(store, bus, 0)
	m := NewManager(store, bus, pipeline, auth.NewScoper(store))
	return m, store, pipeline
}

func adminViewer(m *Manager, link Link) *Viewer {
	return m.AttachViewer(&types.User{ID: "u1", Role: types.RoleAdmin}, link)
}

func terminalFrame(t *testing.T, typ, instanceID string, payload any) *protocol.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &protocol.Envelope{
		Channel:    protocol.ChannelTerminal,
		Type:       typ,
		TS:         protocol.NowMillis(),
		Data:       data,
		InstanceID: instanceID,
	}
}

func TestRegisterAgentDuplicateReplaces(t *testing.T) {
	m, store, _ := newTestManager(t)

	first := &fakeLink{}
	second := &fakeLink{}
	m.RegisterAgent("i1", "u1", first)
	m.RegisterAgent("i1", "u1", second)

	assert.True(t, m.Online("i1"))
	assert.Equal(t, Link(second), m.agentFor("i1"))

	evs, err := store.ListEvents("i1", 10)
	require.NoError(t, err)
	// connect, disconnect (displaced), connect; latest first
	require.Len(t, evs, 3)
	assert.Equal(t, types.EventDisconnect, evs[1].EventType)
}

func TestUnregisterAgentIgnoresStaleLink(t *testing.T) {
	m, _, _ := newTestManager(t)

	old := &fakeLink{}
	current := &fakeLink{}
	m.RegisterAgent("i1", "u1", old)
	m.RegisterAgent("i1", "u1", current)

	// The displaced link disconnecting must not tear down the newer one
	m.UnregisterAgent("i1", old)
	assert.True(t, m.Online("i1"))

	m.UnregisterAgent("i1", current)
	assert.False(t, m.Online("i1"))
}

func TestOnlineTTLExpires(t *testing.T) {
	m, _, _ := newTestManager(t)

	now := time.Now()
	m.nowFunc = func() time.Time { return now }
	m.RegisterAgent("i1", "u1", &fakeLink{})
	assert.True(t, m.Online("i1"))

	now = now.Add(DefaultOnlineTTL + time.Second)
	assert.False(t, m.Online("i1"))
}

func TestHeartbeatRefreshesOnlineTTL(t *testing.T) {
	m, _, pipeline := newTestManager(t)

	now := time.Now()
	m.nowFunc = func() time.Time { return now }
	agent := &fakeLink{}
	m.RegisterAgent("i1", "u1", agent)

	now = now.Add(DefaultOnlineTTL - time.Second)
	data, err := json.Marshal(&protocol.HeartbeatPing{Uptime: 10})
	require.NoError(t, err)
	m.HandleAgentFrame("i1", &protocol.Envelope{
		Channel: protocol.ChannelHeartbeat,
		Type:    protocol.TypeHeartbeatPing,
		TS:      protocol.NowMillis(),
		Data:    data,
	}, agent)
	pipeline.Stop()

	now = now.Add(DefaultOnlineTTL - time.Second)
	assert.True(t, m.Online("i1"))
	assert.Equal(t, protocol.TypeHeartbeatPong, agent.lastType())
}

func TestTerminalLifecycle(t *testing.T) {
	m, store, _ := newTestManager(t)

	agent := &fakeLink{}
	viewerLink := &fakeLink{}
	m.RegisterAgent("i1", "u1", agent)
	v := adminViewer(m, viewerLink)
	defer m.DetachViewer(v)

	require.NoError(t, m.OpenTerminal(v, "i1", "s1", 80, 24))
	assert.Equal(t, protocol.TypeTerminalCreate, agent.lastType())

	sess, err := store.GetTerminalSession("s1")
	require.NoError(t, err)
	assert.Equal(t, types.SessionConnecting, sess.Status)

	// Input ahead of terminal:created is buffered, not forwarded
	input := terminalFrame(t, protocol.TypeTerminalData, "i1", &protocol.TerminalData{
		SessionID: "s1",
		Data:      base64.StdEncoding.EncodeToString([]byte("ls\n")),
	})
	m.HandleViewerTerminalFrame(v, input)
	assert.Len(t, agent.all(), 1)

	// Agent confirms; the buffer flushes and the viewer sees created
	m.handleAgentTerminalFrame("i1", terminalFrame(t, protocol.TypeTerminalCreated, "i1", &protocol.TerminalCreated{SessionID: "s1"}), agent)
	frames := agent.all()
	require.Len(t, frames, 2)
	assert.Equal(t, protocol.TypeTerminalData, frames[1].Type)
	assert.Equal(t, protocol.TypeTerminalCreated, viewerLink.lastType())

	sess, err = store.GetTerminalSession("s1")
	require.NoError(t, err)
	assert.Equal(t, types.SessionConnected, sess.Status)

	// PTY output flows to the viewer
	m.handleAgentTerminalFrame("i1", terminalFrame(t, protocol.TypeTerminalData, "i1", &protocol.TerminalData{
		SessionID: "s1",
		Data:      base64.StdEncoding.EncodeToString([]byte("bin\n")),
	}), agent)
	assert.Equal(t, protocol.TypeTerminalData, viewerLink.lastType())

	// Viewer closes; the agent gets the final close and the end state is
	// persisted
	m.HandleViewerTerminalFrame(v, terminalFrame(t, protocol.TypeTerminalClose, "i1", &protocol.TerminalClose{SessionID: "s1"}))
	assert.Equal(t, protocol.TypeTerminalClose, agent.lastType())

	sess, err = store.GetTerminalSession("s1")
	require.NoError(t, err)
	assert.Equal(t, types.SessionClosed, sess.Status)
	assert.NotNil(t, sess.ClosedAt)
}

func TestOpenTerminalValidation(t *testing.T) {
	m, _, _ := newTestManager(t)
	v := adminViewer(m, &fakeLink{})
	defer m.DetachViewer(v)

	// Too narrow
	err := m.OpenTerminal(v, "i1", "s1", 5, 1)
	_, ok := types.IsValidation(err)
	assert.True(t, ok)

	// No agent link
	err = m.OpenTerminal(v, "i1", "s1", 80, 24)
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestPreCreateBufferOverflow(t *testing.T) {
	m, _, _ := newTestManager(t)

	agent := &fakeLink{}
	viewerLink := &fakeLink{}
	m.RegisterAgent("i1", "u1", agent)
	v := adminViewer(m, viewerLink)
	defer m.DetachViewer(v)

	require.NoError(t, m.OpenTerminal(v, "i1", "s1", 80, 24))

	big := base64.StdEncoding.EncodeToString(make([]byte, PreCreateBufferBytes))
	overflow := terminalFrame(t, protocol.TypeTerminalData, "i1", &protocol.TerminalData{SessionID: "s1", Data: big})
	m.HandleViewerTerminalFrame(v, overflow)

	assert.Equal(t, protocol.TypeError, viewerLink.lastType())
}

func TestAgentLossClosesSessions(t *testing.T) {
	m, store, _ := newTestManager(t)

	agent := &fakeLink{}
	viewerLink := &fakeLink{}
	m.RegisterAgent("i1", "u1", agent)
	v := adminViewer(m, viewerLink)
	defer m.DetachViewer(v)

	require.NoError(t, m.OpenTerminal(v, "i1", "s1", 80, 24))
	m.UnregisterAgent("i1", agent)

	sess, err := store.GetTerminalSession("s1")
	require.NoError(t, err)
	assert.Equal(t, types.SessionDisconnected, sess.Status)

	// The viewer peer received the final close with the offline reason
	frames := viewerLink.all()
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, protocol.TypeTerminalClose, last.Type)
	var closePayload protocol.TerminalClose
	require.NoError(t, json.Unmarshal(last.Data, &closePayload))
	assert.Equal(t, "instance offline", closePayload.Reason)
}

func TestViewerLossClosesSessions(t *testing.T) {
	m, store, _ := newTestManager(t)

	agent := &fakeLink{}
	m.RegisterAgent("i1", "u1", agent)
	v := adminViewer(m, &fakeLink{})

	require.NoError(t, m.OpenTerminal(v, "i1", "s1", 80, 24))
	m.DetachViewer(v)

	sess, err := store.GetTerminalSession("s1")
	require.NoError(t, err)
	assert.Equal(t, types.SessionDisconnected, sess.Status)

	frames := agent.all()
	last := frames[len(frames)-1]
	assert.Equal(t, protocol.TypeTerminalClose, last.Type)
	var closePayload protocol.TerminalClose
	require.NoError(t, json.Unmarshal(last.Data, &closePayload))
	assert.Equal(t, "client gone", closePayload.Reason)
}

func TestBroadcastSkipsNonConnected(t *testing.T) {
	m, _, _ := newTestManager(t)

	agent := &fakeLink{}
	m.RegisterAgent("i1", "u1", agent)
	v := adminViewer(m, &fakeLink{})
	defer m.DetachViewer(v)

	require.NoError(t, m.OpenTerminal(v, "i1", "s1", 80, 24))
	require.NoError(t, m.OpenTerminal(v, "i1", "s2", 80, 24))

	// Only s1 reaches connected
	m.handleAgentTerminalFrame("i1", terminalFrame(t, protocol.TypeTerminalCreated, "i1", &protocol.TerminalCreated{SessionID: "s1"}), agent)

	v.SetBroadcastGroup("s1", "s2")
	delivered := m.BroadcastInput(v, []byte("uptime\n"))
	assert.Equal(t, []string{"s1"}, delivered)
}

func TestCommandRelay(t *testing.T) {
	m, _, _ := newTestManager(t)

	agent := &fakeLink{}
	initiator := &fakeLink{}
	m.RegisterAgent("i1", "u1", agent)

	commandID, err := m.ExecuteCommand(initiator, "i1", "uptime", 60)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeCommandExecute, agent.lastType())

	// Output streams back to the initiator
	outData, err := json.Marshal(&protocol.CommandOutput{
		CommandID: commandID,
		Stream:    "stdout",
		Data:      base64.StdEncoding.EncodeToString([]byte("up 3 days\n")),
	})
	require.NoError(t, err)
	m.handleCommandFrame("i1", &protocol.Envelope{
		Channel: protocol.ChannelCommands, Type: protocol.TypeCommandOutput,
		TS: protocol.NowMillis(), Data: outData,
	})
	assert.Equal(t, protocol.TypeCommandOutput, initiator.lastType())

	// Completion finishes the relay
	doneData, err := json.Marshal(&protocol.CommandComplete{CommandID: commandID, ExitCode: 0})
	require.NoError(t, err)
	m.handleCommandFrame("i1", &protocol.Envelope{
		Channel: protocol.ChannelCommands, Type: protocol.TypeCommandComplete,
		TS: protocol.NowMillis(), Data: doneData,
	})
	assert.Equal(t, protocol.TypeCommandComplete, initiator.lastType())

	// The command is gone; cancel now reports not found
	assert.ErrorIs(t, m.CancelCommand(commandID), types.ErrNotFound)
}

func TestCommandTimeout(t *testing.T) {
	m, _, _ := newTestManager(t)

	agent := &fakeLink{}
	initiator := &fakeLink{}
	m.RegisterAgent("i1", "u1", agent)

	commandID, err := m.ExecuteCommand(initiator, "i1", "sleep 600", 3600)
	require.NoError(t, err)

	m.expireCommand(commandID)

	assert.Equal(t, protocol.TypeCommandCancel, agent.lastType())
	frames := initiator.all()
	require.Len(t, frames, 1)
	var complete protocol.CommandComplete
	require.NoError(t, json.Unmarshal(frames[0].Data, &complete))
	assert.Equal(t, protocol.ExitCodeTimeout, complete.ExitCode)
}

func TestCommandCancel(t *testing.T) {
	m, _, _ := newTestManager(t)

	agent := &fakeLink{}
	initiator := &fakeLink{}
	m.RegisterAgent("i1", "u1", agent)

	commandID, err := m.ExecuteCommand(initiator, "i1", "sleep 600", 0)
	require.NoError(t, err)
	require.NoError(t, m.CancelCommand(commandID))

	frames := initiator.all()
	require.Len(t, frames, 1)
	var complete protocol.CommandComplete
	require.NoError(t, json.Unmarshal(frames[0].Data, &complete))
	assert.Equal(t, protocol.ExitCodeCanceled, complete.ExitCode)
}

func TestExecuteCommandRejectsExcessTimeout(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.RegisterAgent("i1", "u1", &fakeLink{})

	_, err := m.ExecuteCommand(&fakeLink{}, "i1", "uptime", protocol.MaxCommandTimeoutSec+1)
	_, ok := types.IsValidation(err)
	assert.True(t, ok)
}

func TestViewerDeliveryAuthorization(t *testing.T) {
	m, store, _ := newTestManager(t)

	require.NoError(t, store.CreateUser(&types.User{ID: "u1", Email: "dev@example.com", Role: types.RoleDeveloper}))
	require.NoError(t, store.CreateTeam(&types.Team{ID: "t1", Name: "Platform", Slug: "platform"}))
	require.NoError(t, store.PutTeamMember(&types.TeamMember{TeamID: "t1", UserID: "u1", Role: types.RoleDeveloper}))
	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i1", Name: "web-1", TeamID: "t1", Provider: types.ProviderFly, Status: types.StatusRunning}))
	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i2", Name: "web-2", TeamID: "t2", Provider: types.ProviderFly, Status: types.StatusRunning}))

	viewerLink := &fakeLink{}
	v := m.AttachViewer(&types.User{ID: "u1", Role: types.RoleDeveloper}, viewerLink)
	defer m.DetachViewer(v)

	allowed := protocol.NewFrame(protocol.ChannelEvents, protocol.TypeEventInstance, "i1", &protocol.EventInstance{EventType: types.EventConnect})
	denied := protocol.NewFrame(protocol.ChannelEvents, protocol.TypeEventInstance, "i2", &protocol.EventInstance{EventType: types.EventConnect})
	m.bus.Publish("i1", allowed)
	m.bus.Publish("i2", denied)

	assert.Eventually(t, func() bool {
		frames := viewerLink.all()
		return len(frames) == 1 && frames[0].InstanceID == "i1"
	}, time.Second, 10*time.Millisecond)

	// Give the denied frame a chance to arrive; it must not
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, viewerLink.all(), 1)
}
