// Package server provides the MCP server context, health checks, and the
// OAuth-protected HTTP transport for the graphmcp application.
//
// # Key Components
//
// ServerContext holds the shared dependencies of tool handlers: the Entra
// ID app configuration, the On-Behalf-Of token provider, per-caller Graph
// clients, the fixture mailbox store, and instrumentation.
//
// OAuthHTTPServer wraps an MCP server with OAuth 2.1 resource-server
// behavior:
//   - Protected Resource Metadata (RFC 9728)
//   - Bearer token validation against Entra ID signing keys
//   - Token revocation endpoint
//   - Rate limiting per IP
//   - Security headers on all HTTP responses
//
// MetricsServer exposes Prometheus metrics on a dedicated port, and
// HealthChecker serves liveness and readiness probes.
package server
