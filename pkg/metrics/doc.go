/*
Package metrics defines and registers the Console's Prometheus metrics.

All metrics use the roost_ prefix and register against the default
registry at package init. Counters are incremented at the point of work
(API middleware, ingest pipeline, session manager); fleet gauges are
refreshed from the store by the Collector every 15 seconds. The /metrics
endpoint serves the standard promhttp handler.
*/
package metrics
