package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/roosthq/roost/pkg/types"
)

// Payload is implemented by every typed frame payload
type Payload interface {
	Validate() error
}

// HeartbeatStats carries the resource snapshot inside a heartbeat ping
type HeartbeatStats struct {
	CPUPercent    float64       `json:"cpuPercent"`
	MemoryUsed    types.Bytes64 `json:"memoryUsed"`
	MemoryTotal   types.Bytes64 `json:"memoryTotal"`
	DiskUsed      types.Bytes64 `json:"diskUsed"`
	DiskTotal     types.Bytes64 `json:"diskTotal"`
	LoadAvg1      float64       `json:"loadAvg1"`
	LoadAvg5      float64       `json:"loadAvg5"`
	LoadAvg15     float64       `json:"loadAvg15"`
	NetBytesSent  types.Bytes64 `json:"netBytesSent"`
	NetBytesRecv  types.Bytes64 `json:"netBytesRecv"`
	ProcessCount  int           `json:"processCount"`
	UptimeSeconds int64         `json:"uptimeSeconds"`
}

// HeartbeatPing is the agent liveness report. Stats is optional: a bare
// ping still refreshes the online flag.
type HeartbeatPing struct {
	AgentVersion string          `json:"agentVersion"`
	Uptime       int64           `json:"uptime"`
	Stats        *HeartbeatStats `json:"stats,omitempty"`
}

func (p *HeartbeatPing) Validate() error {
	var details []string
	if p.Uptime < 0 {
		details = append(details, "uptime must be non-negative")
	}
	if p.Stats != nil {
		if p.Stats.CPUPercent < 0 || p.Stats.CPUPercent > 100 {
			details = append(details, "cpuPercent out of range")
		}
		if p.Stats.MemoryTotal == 0 {
			details = append(details, "memoryTotal must be positive")
		}
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	return nil
}

// HeartbeatPong is the server reply carrying its own ts in the envelope
type HeartbeatPong struct{}

func (p *HeartbeatPong) Validate() error { return nil }

// MetricsSample is one telemetry point from an agent
type MetricsSample struct {
	CPUPercent    float64       `json:"cpuPercent"`
	MemoryUsed    types.Bytes64 `json:"memoryUsed"`
	MemoryTotal   types.Bytes64 `json:"memoryTotal"`
	DiskUsed      types.Bytes64 `json:"diskUsed"`
	DiskTotal     types.Bytes64 `json:"diskTotal"`
	LoadAvg1      float64       `json:"loadAvg1"`
	LoadAvg5      float64       `json:"loadAvg5"`
	LoadAvg15     float64       `json:"loadAvg15"`
	NetBytesSent  types.Bytes64 `json:"netBytesSent"`
	NetBytesRecv  types.Bytes64 `json:"netBytesRecv"`
	UptimeSeconds int64         `json:"uptimeSeconds"`
}

func (p *MetricsSample) Validate() error {
	var details []string
	if p.CPUPercent < 0 || p.CPUPercent > 100 {
		details = append(details, "cpuPercent out of range")
	}
	if p.MemoryTotal == 0 {
		details = append(details, "memoryTotal must be positive")
	}
	if p.DiskTotal == 0 {
		details = append(details, "diskTotal must be positive")
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	return nil
}

// LogLine is a single log line
type LogLine struct {
	Level    types.LogLevel  `json:"level"`
	Source   types.LogSource `json:"source"`
	Message  string          `json:"message"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

func (p *LogLine) Validate() error {
	var details []string
	if !types.ValidLogLevel(p.Level) {
		details = append(details, fmt.Sprintf("unknown log level %q", p.Level))
	}
	if !types.ValidLogSource(p.Source) {
		details = append(details, fmt.Sprintf("unknown log source %q", p.Source))
	}
	if p.Message == "" {
		details = append(details, "message must not be empty")
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	return nil
}

// MaxLogBatchLines caps a single log:batch frame
const MaxLogBatchLines = 1000

// LogBatch carries up to MaxLogBatchLines lines in one frame
type LogBatch struct {
	Lines []LogLine `json:"lines"`
}

func (p *LogBatch) Validate() error {
	if len(p.Lines) == 0 {
		return types.NewValidationError("batch must contain at least one line")
	}
	if len(p.Lines) > MaxLogBatchLines {
		return types.Validationf("batch exceeds %d lines", MaxLogBatchLines)
	}
	for i := range p.Lines {
		if err := p.Lines[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LogDropped is the sentinel appended after a slow viewer overflows
type LogDropped struct {
	Count int `json:"count"`
}

func (p *LogDropped) Validate() error { return nil }

// TerminalCreate opens an interactive session
type TerminalCreate struct {
	SessionID string `json:"sessionId"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
}

func (p *TerminalCreate) Validate() error {
	var details []string
	if p.SessionID == "" {
		details = append(details, "sessionId must not be empty")
	}
	if p.Cols < types.MinTerminalCols {
		details = append(details, fmt.Sprintf("cols must be at least %d", types.MinTerminalCols))
	}
	if p.Rows < types.MinTerminalRows {
		details = append(details, fmt.Sprintf("rows must be at least %d", types.MinTerminalRows))
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	return nil
}

// TerminalCreated confirms a session is live on the agent side
type TerminalCreated struct {
	SessionID string `json:"sessionId"`
}

func (p *TerminalCreated) Validate() error {
	if p.SessionID == "" {
		return types.NewValidationError("sessionId must not be empty")
	}
	return nil
}

// TerminalData carries opaque PTY bytes, base64-encoded
type TerminalData struct {
	SessionID string `json:"sessionId"`
	Data      string `json:"data"`
}

func (p *TerminalData) Validate() error {
	if p.SessionID == "" {
		return types.NewValidationError("sessionId must not be empty")
	}
	if _, err := base64.StdEncoding.DecodeString(p.Data); err != nil {
		return types.NewValidationError("data is not valid base64")
	}
	return nil
}

// Bytes decodes the base64 payload
func (p *TerminalData) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Data)
}

// TerminalResize changes the PTY dimensions
type TerminalResize struct {
	SessionID string `json:"sessionId"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
}

func (p *TerminalResize) Validate() error {
	var details []string
	if p.SessionID == "" {
		details = append(details, "sessionId must not be empty")
	}
	if p.Cols < types.MinTerminalCols {
		details = append(details, fmt.Sprintf("cols must be at least %d", types.MinTerminalCols))
	}
	if p.Rows < types.MinTerminalRows {
		details = append(details, fmt.Sprintf("rows must be at least %d", types.MinTerminalRows))
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	return nil
}

// TerminalClose ends a session from either side
type TerminalClose struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

func (p *TerminalClose) Validate() error {
	if p.SessionID == "" {
		return types.NewValidationError("sessionId must not be empty")
	}
	return nil
}

// EventInstance reports a discrete occurrence on an instance
type EventInstance struct {
	EventType types.EventType   `json:"eventType"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventInstance) Validate() error {
	if p.EventType == "" {
		return types.NewValidationError("eventType must not be empty")
	}
	return nil
}

// Command execution timeout bounds (seconds)
const (
	DefaultCommandTimeoutSec = 30
	MaxCommandTimeoutSec     = 3600
)

// Command exit codes for abnormal terminations
const (
	ExitCodeTimeout  = 124
	ExitCodeCanceled = -1
)

// CommandExecute asks the agent to run a command
type CommandExecute struct {
	CommandID  string `json:"commandId"`
	Command    string `json:"command"`
	TimeoutSec int    `json:"timeoutSec,omitempty"`
}

func (p *CommandExecute) Validate() error {
	var details []string
	if p.CommandID == "" {
		details = append(details, "commandId must not be empty")
	}
	if p.Command == "" {
		details = append(details, "command must not be empty")
	}
	if p.TimeoutSec < 0 || p.TimeoutSec > MaxCommandTimeoutSec {
		details = append(details, fmt.Sprintf("timeoutSec must be between 0 and %d", MaxCommandTimeoutSec))
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	return nil
}

// CommandOutput streams command stdout/stderr back, base64-encoded
type CommandOutput struct {
	CommandID string `json:"commandId"`
	Stream    string `json:"stream"`
	Data      string `json:"data"`
}

func (p *CommandOutput) Validate() error {
	var details []string
	if p.CommandID == "" {
		details = append(details, "commandId must not be empty")
	}
	if p.Stream != "stdout" && p.Stream != "stderr" {
		details = append(details, "stream must be stdout or stderr")
	}
	if _, err := base64.StdEncoding.DecodeString(p.Data); err != nil {
		details = append(details, "data is not valid base64")
	}
	if len(details) > 0 {
		return types.NewValidationError(details...)
	}
	return nil
}

// CommandComplete reports the final exit code
type CommandComplete struct {
	CommandID string `json:"commandId"`
	ExitCode  int    `json:"exitCode"`
}

func (p *CommandComplete) Validate() error {
	if p.CommandID == "" {
		return types.NewValidationError("commandId must not be empty")
	}
	return nil
}

// CommandCancel aborts a running command
type CommandCancel struct {
	CommandID string `json:"commandId"`
}

func (p *CommandCancel) Validate() error {
	if p.CommandID == "" {
		return types.NewValidationError("commandId must not be empty")
	}
	return nil
}

// ErrorPayload is the data of an error envelope
type ErrorPayload struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (p *ErrorPayload) Validate() error { return nil }

// AckPayload confirms a persistent write for a correlated frame
type AckPayload struct{}

func (p *AckPayload) Validate() error { return nil }

// PausePayload hints the agent to back off under ingest pressure
type PausePayload struct {
	Reason string `json:"reason,omitempty"`
}

func (p *PausePayload) Validate() error { return nil }

// ParsePayload decodes and validates the envelope data against the schema
// selected by (channel, type). It is the single parse point: callers keep
// the returned value and never re-decode Data.
func ParsePayload(env *Envelope) (Payload, error) {
	p, err := newPayload(env.Channel, env.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(env.Data, p); err != nil {
		return nil, fmt.Errorf("%w: bad %s payload: %v", types.ErrMalformedFrame, env.Type, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func newPayload(ch Channel, typ string) (Payload, error) {
	switch typ {
	case TypeAck:
		return &AckPayload{}, nil
	case TypeError:
		return &ErrorPayload{}, nil
	case TypePause:
		return &PausePayload{}, nil
	}

	switch ch {
	case ChannelHeartbeat:
		switch typ {
		case TypeHeartbeatPing:
			return &HeartbeatPing{}, nil
		case TypeHeartbeatPong:
			return &HeartbeatPong{}, nil
		}
	case ChannelMetrics:
		if typ == TypeMetricsSample {
			return &MetricsSample{}, nil
		}
	case ChannelLogs:
		switch typ {
		case TypeLogLine:
			return &LogLine{}, nil
		case TypeLogBatch:
			return &LogBatch{}, nil
		case TypeLogDropped:
			return &LogDropped{}, nil
		}
	case ChannelTerminal:
		switch typ {
		case TypeTerminalCreate:
			return &TerminalCreate{}, nil
		case TypeTerminalCreated:
			return &TerminalCreated{}, nil
		case TypeTerminalData:
			return &TerminalData{}, nil
		case TypeTerminalResize:
			return &TerminalResize{}, nil
		case TypeTerminalClose:
			return &TerminalClose{}, nil
		}
	case ChannelEvents:
		if typ == TypeEventInstance {
			return &EventInstance{}, nil
		}
	case ChannelCommands:
		switch typ {
		case TypeCommandExecute:
			return &CommandExecute{}, nil
		case TypeCommandOutput:
			return &CommandOutput{}, nil
		case TypeCommandComplete:
			return &CommandComplete{}, nil
		case TypeCommandCancel:
			return &CommandCancel{}, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown type %q on channel %q", types.ErrMalformedFrame, typ, ch)
}
