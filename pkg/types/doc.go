/*
Package types defines the core data structures used throughout the Roost
Console.

This package contains all fundamental types that represent the Console's
domain model: operator accounts, teams, managed instances, telemetry,
interactive sessions, alerting, scheduled tasks, drift, cost tracking,
security posture, extensions, and the audit log. All other packages build
on these types for persistence, API serialization, and derivation logic.

# Conventions

  - Identifiers are opaque strings (UUIDs in practice).
  - Timestamps are UTC time.Time values; they serialize to ISO-8601 on the
    wire via encoding/json.
  - Byte counts use the Bytes64 type, which marshals to a JSON string so
    values above 2^53 survive JavaScript consumers.
  - Enumerations are string constants in uppercase wire form (statuses,
    roles, severities) or lowercase where the protocol requires it
    (session states, notification channels).
  - Wire field names are camelCase via struct tags.

# Error Kinds

errors.go defines the sentinel errors shared by the REST surface and the
frame protocol (ErrNotFound, ErrConflict, ErrInvalidState, ...) plus
ValidationError, which carries one detail message per violated rule. The
API layer maps these to HTTP statuses; the session layer maps them to
error envelopes.
*/
package types
