package protocol

import "encoding/json"

// Frame error codes carried in ErrorPayload.Code
const (
	CodeMalformed    = "MALFORMED"
	CodeValidation   = "VALIDATION"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL"
)

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// All reply payloads are plain structs; marshal cannot fail.
		panic(err)
	}
	return data
}

// NewError builds an error envelope in reply to a frame on the given
// channel, echoing the correlation id when present
func NewError(ch Channel, code, message string, details []string, correlationID string) *Envelope {
	return &Envelope{
		Channel:       ch,
		Type:          TypeError,
		TS:            NowMillis(),
		Data:          mustMarshal(&ErrorPayload{Code: code, Message: message, Details: details}),
		CorrelationID: correlationID,
	}
}

// NewAck builds an ack envelope confirming a persistent write
func NewAck(ch Channel, correlationID string) *Envelope {
	return &Envelope{
		Channel:       ch,
		Type:          TypeAck,
		TS:            NowMillis(),
		Data:          mustMarshal(&AckPayload{}),
		CorrelationID: correlationID,
	}
}

// NewPong builds the heartbeat reply, echoing the correlation id when the
// sender set one
func NewPong(correlationID string) *Envelope {
	return &Envelope{
		Channel:       ChannelHeartbeat,
		Type:          TypeHeartbeatPong,
		TS:            NowMillis(),
		Data:          mustMarshal(&HeartbeatPong{}),
		CorrelationID: correlationID,
	}
}

// NewPause builds the backpressure hint sent to an agent
func NewPause(reason string) *Envelope {
	return &Envelope{
		Channel: ChannelMetrics,
		Type:    TypePause,
		TS:      NowMillis(),
		Data:    mustMarshal(&PausePayload{Reason: reason}),
	}
}

// NewFrame builds an envelope from a typed payload
func NewFrame(ch Channel, typ string, instanceID string, p Payload) *Envelope {
	return &Envelope{
		Channel:    ch,
		Type:       typ,
		TS:         NowMillis(),
		Data:       mustMarshal(p),
		InstanceID: instanceID,
	}
}
