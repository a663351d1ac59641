/*
Package ingest is the write path for agent telemetry.

Frames are queued per instance (bounded, default 10000) and processed in
arrival order by one worker per instance. Heartbeats refresh the latest
row, roll into the time series and answer with a pong; metric samples
are validated, persisted with their rollups and fanned out; log lines
are deduplicated over a five second window; events are persisted and
fanned out untouched.

Under overflow the oldest queued log frames go first, then metric
samples are thinned to one per minute, then the agent receives a PAUSE
hint. Heartbeats and events are never dropped.
*/
package ingest
