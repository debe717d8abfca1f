package oauth

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds the OAuth resource-server configuration
type Config struct {
	// Resource is the MCP server resource identifier for RFC 8707
	// This should be the base URL of the MCP server
	Resource string

	// TenantID is the Entra ID tenant tokens must be issued from
	TenantID string

	// Audience is the expected token audience, normally the application
	// (client) ID of the app registration
	Audience string

	// SupportedScopes are the delegated Graph scopes this server uses
	SupportedScopes []string

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// CleanupInterval is how often to cleanup expired cached tokens
	// Default: 1 minute
	CleanupInterval time.Duration

	// JWKSURL overrides the tenant's JWKS endpoint. Used by tests.
	JWKSURL string

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// HTTPClient is a custom HTTP client for JWKS requests
	// If not provided, uses a default client with a timeout
	HTTPClient *http.Client
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Rate is the number of requests per second allowed per IP (0 = no limit)
	Rate int

	// Burst is the maximum burst size allowed per IP
	Burst int

	// CleanupInterval is how often to cleanup inactive rate limiters
	// Default: 5 minutes
	CleanupInterval time.Duration

	// TrustProxy indicates whether to trust X-Forwarded-For and X-Real-IP headers
	// Only set to true if the server is behind a trusted proxy
	// Default: false (secure by default)
	TrustProxy bool
}
