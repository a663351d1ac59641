/*
Package protocol implements the framed message protocol spoken on every
bidirectional Console link (agent and viewer alike).

Each frame is a self-describing envelope with a channel, a channel:verb
type string, a millisecond sender timestamp, an opaque data payload, and
optional instanceId and correlationId fields. Decode enforces the
structural rules and ParsePayload performs the single typed decode of the
data object for the (channel, type) pair, including numeric bounds
(cpuPercent within [0,100], cols at least 10, rows at least 1) and base64
checks on terminal bytes.

The protocol is symmetric: the Console builds outbound frames with the
same constructors agents use. Error replies never close the link; the
sender stays connected and is told what was wrong via an error envelope
with a code (MALFORMED, VALIDATION, ...) and optional details.
*/
package protocol
