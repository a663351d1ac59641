/*
Package drift detects configuration drift between what an instance
declares and what is actually deployed on it.

Each mismatch carries a fixed severity by type; a report's severity is
its worst item. Reports move DETECTED, ACKNOWLEDGED, REMEDIATING,
RESOLVED, and can be SUPPRESSED from any state. Suppression rules match
by instance (empty means fleet-wide) and drift type (empty means any),
with optional expiry. Remediation jobs record who triggered them and how
they ended; a succeeded job resolves its report.
*/
package drift
