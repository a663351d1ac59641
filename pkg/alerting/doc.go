/*
Package alerting evaluates alert rules against incoming metric samples.

Each (rule, instance) pair walks INACTIVE, PENDING, FIRING, RESOLVED
over window averages: a rule fires once its conditions have persisted
pendingForSec and resolves after one clear evaluation. Notifications go
out per channel with three delivery retries (1s, 4s, 16s); a channel
never receives more than one notification per cooldown.
*/
package alerting
