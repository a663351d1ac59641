/*
Package auth implements API key authentication, the role permission
matrix, per-key rate limiting and team scoping.

Raw API keys carry an rk_ prefix and are shown exactly once at creation;
only SHA-256 hashes are persisted. Roles form a fixed hierarchy (VIEWER,
DEVELOPER, OPERATOR, ADMIN) checked through CanPerform. Every key holds
two token buckets, one for mutating requests and one for reads, refilled
continuously. Non-ADMIN users are scoped to the instances of the teams
they belong to.
*/
package auth
