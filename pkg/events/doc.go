/*
Package events implements the fan-out bus between the ingestion pipeline
and viewer subscriptions.

Every ingested telemetry frame is published to the bus keyed by instance
id. Subscriptions watch a set of instances (or all of them) and receive
matching frames in publication order per instance; there is no global
ordering across instances.

A slow subscriber is bounded: once its buffer (default 1000 frames)
overflows, the oldest frames are discarded and a single log:dropped
sentinel carrying the drop count is delivered ahead of the surviving
frames. Delivery failures affect only the subscription concerned.
*/
package events
