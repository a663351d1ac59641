/*
Package instance implements registration, the instance status machine
and the lifecycle operations (clone, suspend, resume, redeploy,
destroy).

Registration is an upsert keyed by name. Status changes go through a
fixed transition table; anything outside it fails with ErrInvalidState
and mutates nothing. Every lifecycle operation writes an audit entry and
publishes an event:instance frame on the fan-out bus.
*/
package instance
