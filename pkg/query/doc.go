/*
Package query is the read side of the telemetry time series.

Named ranges (1h, 6h, 24h, 7d, 30d) map deterministically to a window
and granularity; explicit from/to/granularity is also accepted. Results
are chronologically ordered and capped at 500 points; queries implying
more fail with ErrTooManyPoints. Fleet-wide queries return per-instance
tagged points and never aggregate across instances.
*/
package query
