/*
Package fleet derives the fleet view and instance dashboard banners.

The fleet summary joins the instance list with the latest heartbeats on
demand: per-status and per-provider counts, utilisation averages over
the instances that have reported, per-metric maxima, and the stale set
(RUNNING instances silent for over five minutes). Banners apply fixed
cutoffs to the latest heartbeat values.
*/
package fleet
