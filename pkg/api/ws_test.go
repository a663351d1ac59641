package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roosthq/roost/pkg/protocol"
	"github.com/roosthq/roost/pkg/types"
)

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

// errorFrame is the wire shape read back in tests. Error replies to
// undecodable frames carry no channel, so protocol.Decode does not apply.
type errorFrame struct {
	Type string `json:"type"`
	Data struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"data"`
}

func (e *testEnv) registerInstance(name string) *types.Instance {
	e.t.Helper()
	resp, raw := e.do(http.MethodPost, "/api/v1/instances", e.adminKey, registerBody(name))
	require.Equal(e.t, http.StatusCreated, resp.StatusCode)
	var inst types.Instance
	require.NoError(e.t, json.Unmarshal(raw, &inst))
	return &inst
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	return raw
}

func TestAgentSocketAnswersMalformedFramesAndStaysOpen(t *testing.T) {
	env := newTestEnv(t)
	inst := env.registerInstance("ws-agent")

	header := http.Header{}
	header.Set("X-API-Key", env.adminKey)
	header.Set("X-Instance-ID", inst.ID)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(env.server.URL, "/ws/agent"), header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	var frame errorFrame
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &frame))
	assert.Equal(t, protocol.TypeError, frame.Type)
	assert.Equal(t, protocol.CodeMalformed, frame.Data.Code)

	// The link survives: a second bad frame gets a second reply instead
	// of a close
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":7}`)))
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &frame))
	assert.Equal(t, protocol.CodeMalformed, frame.Data.Code)
}

func TestTerminalSocketAnswersMalformedFrames(t *testing.T) {
	env := newTestEnv(t)
	inst := env.registerInstance("ws-term")

	header := http.Header{}
	header.Set("Authorization", "Bearer "+env.adminKey)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(env.server.URL, "/ws/terminal/"+inst.ID), header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))

	var frame errorFrame
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &frame))
	assert.Equal(t, protocol.TypeError, frame.Type)
	assert.Equal(t, protocol.CodeMalformed, frame.Data.Code)
}
