package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roosthq/roost/pkg/types"
)

func TestDecodeStructuralRules(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		valid bool
	}{
		{"valid frame", `{"channel":"metrics","type":"metrics:sample","ts":1700000000000,"data":{}}`, true},
		{"not json", `{"channel":`, false},
		{"missing channel", `{"type":"metrics:sample","ts":1,"data":{}}`, false},
		{"numeric channel", `{"channel":7,"type":"metrics:sample","ts":1,"data":{}}`, false},
		{"empty channel", `{"channel":"","type":"metrics:sample","ts":1,"data":{}}`, false},
		{"unknown channel", `{"channel":"video","type":"x","ts":1,"data":{}}`, false},
		{"missing type", `{"channel":"metrics","ts":1,"data":{}}`, false},
		{"string ts", `{"channel":"metrics","type":"metrics:sample","ts":"now","data":{}}`, false},
		{"missing ts", `{"channel":"metrics","type":"metrics:sample","data":{}}`, false},
		{"missing data", `{"channel":"metrics","type":"metrics:sample","ts":1}`, false},
		{"null data", `{"channel":"metrics","type":"metrics:sample","ts":1,"data":null}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.raw))
			if tt.valid {
				require.NoError(t, err)
				assert.Equal(t, ChannelMetrics, env.Channel)
			} else {
				assert.ErrorIs(t, err, types.ErrMalformedFrame)
			}
		})
	}
}

func TestDecodeCarriesCorrelation(t *testing.T) {
	raw := `{"channel":"heartbeat","type":"heartbeat:ping","ts":1700000000000,"data":{"agentVersion":"1.2.0","uptime":30},"instanceId":"i1","correlationId":"c-42"}`
	env, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "i1", env.InstanceID)
	assert.Equal(t, "c-42", env.CorrelationID)
	assert.Equal(t, int64(1700000000000), env.TS)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env := NewPong("c-1")
	raw, err := env.Encode()
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, ChannelHeartbeat, got.Channel)
	assert.Equal(t, TypeHeartbeatPong, got.Type)
	assert.Equal(t, "c-1", got.CorrelationID)
}

func TestParsePayloadValidates(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{
			"valid sample",
			`{"channel":"metrics","type":"metrics:sample","ts":1,"data":{"cpuPercent":50,"memoryTotal":"4096","diskTotal":"8192"}}`,
			true,
		},
		{
			"cpu out of range",
			`{"channel":"metrics","type":"metrics:sample","ts":1,"data":{"cpuPercent":140,"memoryTotal":"4096","diskTotal":"8192"}}`,
			false,
		},
		{
			"zero memory total",
			`{"channel":"metrics","type":"metrics:sample","ts":1,"data":{"cpuPercent":50,"memoryTotal":"0","diskTotal":"8192"}}`,
			false,
		},
		{
			"unknown type for channel",
			`{"channel":"metrics","type":"metrics:bogus","ts":1,"data":{}}`,
			false,
		},
		{
			"log line missing message",
			`{"channel":"logs","type":"log:line","ts":1,"data":{"level":"INFO","source":"AGENT","message":""}}`,
			false,
		},
		{
			"valid log batch",
			`{"channel":"logs","type":"log:batch","ts":1,"data":{"lines":[{"level":"INFO","source":"AGENT","message":"up"}]}}`,
			true,
		},
		{
			"terminal create below minimum",
			`{"channel":"terminal","type":"terminal:create","ts":1,"data":{"sessionId":"s1","cols":5,"rows":1}}`,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			_, err = ParsePayload(env)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRepliesEchoCorrelation(t *testing.T) {
	errFrame := NewError(ChannelLogs, "QUEUE_FULL", "backpressure", []string{"retry later"}, "c-9")
	assert.Equal(t, TypeError, errFrame.Type)
	assert.Equal(t, "c-9", errFrame.CorrelationID)

	ack := NewAck(ChannelCommands, "c-10")
	assert.Equal(t, TypeAck, ack.Type)
	assert.Equal(t, "c-10", ack.CorrelationID)

	pause := NewPause("ingest queue full")
	assert.Equal(t, TypePause, pause.Type)
}
