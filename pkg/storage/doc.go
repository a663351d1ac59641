/*
Package storage provides the persistence layer for the Console.

The Store interface covers every persisted entity: operator accounts, API
keys, teams, instances, the latest-heartbeat cache, the metric time
series with its rollups, logs, events, terminal session markers, alert
rules and events, cost tracking, drift, security posture, the extension
catalog, deployment templates, scheduled tasks, and the append-only audit
log. The Console process is the sole writer.

# BoltDB Implementation

BoltStore keeps one bucket per entity kind with JSON-encoded values keyed
by id. Time-ordered data (logs, events, audit, time series) uses nested
per-instance buckets with zero-padded nanosecond keys so cursor range
scans return chronological order for free.

The time series is stored at five granularities. Raw samples are written
verbatim; on the same transaction the containing bucket of each coarser
granularity (1m, 5m, 1h, 1d) is updated incrementally with per-field
count, sum, min and max. Averages are computed at read time as
sum/count, so a rollup write is a single read-modify-write per
granularity regardless of bucket population.

Uniqueness constraints (user email, team slug, instance name, template
slug, API key hash, budget alert period keys) are enforced inside the
write transaction and surface as types.ErrConflict.
*/
package storage
