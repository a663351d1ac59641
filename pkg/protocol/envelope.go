package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/roosthq/roost/pkg/types"
)

// Channel identifies the logical stream an envelope belongs to
type Channel string

const (
	ChannelHeartbeat Channel = "heartbeat"
	ChannelMetrics   Channel = "metrics"
	ChannelLogs      Channel = "logs"
	ChannelTerminal  Channel = "terminal"
	ChannelEvents    Channel = "events"
	ChannelCommands  Channel = "commands"
)

// ValidChannel reports whether c is a defined channel
func ValidChannel(c Channel) bool {
	switch c {
	case ChannelHeartbeat, ChannelMetrics, ChannelLogs, ChannelTerminal, ChannelEvents, ChannelCommands:
		return true
	}
	return false
}

// Frame type strings, enumerated per channel
const (
	TypeHeartbeatPing = "heartbeat:ping"
	TypeHeartbeatPong = "heartbeat:pong"

	TypeMetricsSample = "metrics:sample"

	TypeLogLine    = "log:line"
	TypeLogBatch   = "log:batch"
	TypeLogDropped = "log:dropped"

	TypeTerminalCreate  = "terminal:create"
	TypeTerminalCreated = "terminal:created"
	TypeTerminalData    = "terminal:data"
	TypeTerminalResize  = "terminal:resize"
	TypeTerminalClose   = "terminal:close"

	TypeEventInstance = "event:instance"

	TypeCommandExecute  = "command:execute"
	TypeCommandOutput   = "command:output"
	TypeCommandComplete = "command:complete"
	TypeCommandCancel   = "command:cancel"

	TypeAck   = "ack"
	TypeError = "error"
	TypePause = "pause"
)

// Envelope is the self-describing frame exchanged on every bidirectional
// link. Data is left raw until the (channel, type) pair selects a payload
// schema; payloads are parsed exactly once.
type Envelope struct {
	Channel       Channel         `json:"channel"`
	Type          string          `json:"type"`
	TS            int64           `json:"ts"`
	Data          json.RawMessage `json:"data"`
	InstanceID    string          `json:"instanceId,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// envelopeWire defers type checking of the structural fields so a frame
// with a numeric channel or string ts is reported as malformed rather
// than failing deep inside encoding/json.
type envelopeWire struct {
	Channel       json.RawMessage `json:"channel"`
	Type          json.RawMessage `json:"type"`
	TS            json.RawMessage `json:"ts"`
	Data          json.RawMessage `json:"data"`
	InstanceID    string          `json:"instanceId"`
	CorrelationID string          `json:"correlationId"`
}

func wireString(raw json.RawMessage, field string) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: missing %s", types.ErrMalformedFrame, field)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s is not a string", types.ErrMalformedFrame, field)
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty %s", types.ErrMalformedFrame, field)
	}
	return s, nil
}

// Decode parses raw bytes into an Envelope, enforcing the structural rules:
// channel and type must be non-empty strings, ts must be a finite number,
// and data must be present.
func Decode(raw []byte) (*Envelope, error) {
	var w envelopeWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedFrame, err)
	}

	ch, err := wireString(w.Channel, "channel")
	if err != nil {
		return nil, err
	}
	typ, err := wireString(w.Type, "type")
	if err != nil {
		return nil, err
	}
	if !ValidChannel(Channel(ch)) {
		return nil, fmt.Errorf("%w: unknown channel %q", types.ErrMalformedFrame, ch)
	}

	if len(w.TS) == 0 {
		return nil, fmt.Errorf("%w: missing ts", types.ErrMalformedFrame)
	}
	var ts float64
	if err := json.Unmarshal(w.TS, &ts); err != nil {
		return nil, fmt.Errorf("%w: ts is not a number", types.ErrMalformedFrame)
	}
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		return nil, fmt.Errorf("%w: ts is not finite", types.ErrMalformedFrame)
	}

	if len(w.Data) == 0 || string(w.Data) == "null" {
		return nil, fmt.Errorf("%w: missing data", types.ErrMalformedFrame)
	}

	return &Envelope{
		Channel:       Channel(ch),
		Type:          typ,
		TS:            int64(ts),
		Data:          w.Data,
		InstanceID:    w.InstanceID,
		CorrelationID: w.CorrelationID,
	}, nil
}

// Encode serializes an envelope to wire bytes
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Time converts the sender ts (ms since epoch) to a UTC instant
func (e *Envelope) Time() time.Time {
	return time.UnixMilli(e.TS).UTC()
}

// NowMillis returns the current time as a wire timestamp
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
