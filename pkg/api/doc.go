// Package api is the Console's HTTP surface: the versioned REST API
// under /api/v1, the agent and terminal WebSocket endpoints, the
// Prometheus scrape endpoint and the liveness probe.
//
// Every /api/v1 route authenticates a bearer API key, draws from the
// key's read or write rate bucket and checks the role matrix. Handlers
// translate between JSON and the domain services; they hold no state of
// their own.
package api
