/*
Package sched runs scheduled tasks on POSIX 5-field cron expressions
with per-task timezones.

next_run_at is recomputed on every state change and after each run;
pausing clears it and re-activating restores it. A DISABLED task needs
an ADMIN to re-enable it. When an activation comes due while the prior
run is still going, the new one is recorded SKIPPED. Runs are killed at
their timeout and recorded TIMED_OUT. Commands dispatch through the
session manager's relay.
*/
package sched
